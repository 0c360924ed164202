package kafka

import (
	"context"
	"errors"
	"time"

	segkafka "github.com/segmentio/kafka-go"
)

// Deliveries are single small records; the kafka-go default of one second
// would delay every timer message.
const writerBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...segkafka.Message) error
	Close() error
}

// Writer publishes to any topic named per call. Records with the same key
// land on the same partition.
type Writer struct {
	w messageWriter
}

func NewWriter(cfg Config) (*Writer, error) {
	if err := cfg.ValidateDeliveries(); err != nil {
		return nil, err
	}
	return &Writer{w: &segkafka.Writer{
		Addr:         segkafka.TCP(cfg.Brokers...),
		Balancer:     &segkafka.Hash{},
		RequiredAcks: segkafka.RequireOne,
		BatchTimeout: writerBatchTimeout,
		Transport:    &segkafka.Transport{ClientID: cfg.ClientID},
	}}, nil
}

func (p *Writer) Publish(ctx context.Context, topic string, msg Message) error {
	if p == nil || p.w == nil {
		return errors.New("kafka writer not configured")
	}
	out := segkafka.Message{
		Topic: topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		out.Headers = append(out.Headers, segkafka.Header{Key: k, Value: []byte(v)})
	}
	return p.w.WriteMessages(ctx, out)
}

func (p *Writer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

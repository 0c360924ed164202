package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"autodrop/internal/kafka"
	"autodrop/internal/store"
)

// Delivery is the record published for every message sent to an identity.
type Delivery struct {
	Recipient int64     `json:"recipient"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// Sender publishes deliveries keyed by recipient so one identity's messages
// stay ordered within a partition.
type Sender struct {
	topic    string
	producer kafka.Producer
	now      func() time.Time
}

func New(cfg kafka.Config, producer kafka.Producer) (*Sender, error) {
	if err := cfg.ValidateDeliveries(); err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	return &Sender{topic: cfg.DeliveriesTopic, producer: producer, now: time.Now}, nil
}

func (s *Sender) SendText(ctx context.Context, recipient int64, text string) error {
	value, err := json.Marshal(Delivery{Recipient: recipient, Text: text, SentAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrDelivery, err)
	}
	msg := kafka.Message{
		Key:     strconv.FormatInt(recipient, 10),
		Value:   value,
		Headers: map[string]string{"content-type": "application/json"},
	}
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		return fmt.Errorf("%w: %v", store.ErrDelivery, err)
	}
	return nil
}

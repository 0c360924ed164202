package kafka

import (
	"context"
	"sync"
	"time"

	segkafka "github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (segkafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...segkafka.Message) error
	Close() error
}

type offsetKey struct {
	partition int
	offset    int64
}

// Reader consumes the items topic as a group member. Offsets are committed
// only when the caller hands the message back to Commit.
type Reader struct {
	r       messageReader
	mu      sync.Mutex
	pending map[offsetKey]segkafka.Message
}

func NewReader(cfg Config) (*Reader, error) {
	if err := cfg.ValidateIngest(); err != nil {
		return nil, err
	}
	return newReader(segkafka.NewReader(segkafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.ItemsTopic,
		GroupID:     cfg.GroupID,
		StartOffset: segkafka.FirstOffset,
		MaxWait:     time.Second,
		Dialer:      &segkafka.Dialer{ClientID: cfg.ClientID, Timeout: 10 * time.Second},
	})), nil
}

func newReader(r messageReader) *Reader {
	return &Reader{r: r, pending: make(map[offsetKey]segkafka.Message)}
}

func (c *Reader) Poll(ctx context.Context) (Message, error) {
	raw, err := c.r.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		Key:       string(raw.Key),
		Value:     raw.Value,
		Partition: raw.Partition,
		Offset:    raw.Offset,
	}
	if len(raw.Headers) > 0 {
		msg.Headers = make(map[string]string, len(raw.Headers))
		for _, h := range raw.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	c.mu.Lock()
	c.pending[offsetKey{raw.Partition, raw.Offset}] = raw
	c.mu.Unlock()
	return msg, nil
}

// Commit is a no-op for messages this reader did not return or already committed.
func (c *Reader) Commit(ctx context.Context, msg Message) error {
	k := offsetKey{msg.Partition, msg.Offset}
	c.mu.Lock()
	raw, ok := c.pending[k]
	delete(c.pending, k)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.r.CommitMessages(ctx, raw)
}

func (c *Reader) Close() error {
	if c == nil || c.r == nil {
		return nil
	}
	return c.r.Close()
}

package kafka

import (
	"context"
	"fmt"
	"strings"
)

type Config struct {
	Brokers         []string `yaml:"brokers"`
	DeliveriesTopic string   `yaml:"deliveries_topic"`
	ItemsTopic      string   `yaml:"items_topic"`
	GroupID         string   `yaml:"group_id"`
	ClientID        string   `yaml:"client_id"`
}

func (c Config) validateBrokers() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	return nil
}

// ValidateDeliveries checks what the delivery transport needs.
func (c Config) ValidateDeliveries() error {
	if err := c.validateBrokers(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DeliveriesTopic) == "" {
		return fmt.Errorf("kafka.deliveries_topic is required")
	}
	return nil
}

// ValidateIngest checks what the item ingest worker needs.
func (c Config) ValidateIngest() error {
	if err := c.validateBrokers(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ItemsTopic) == "" {
		return fmt.Errorf("kafka.items_topic is required")
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return fmt.Errorf("kafka.group_id is required")
	}
	return nil
}

// Message is the broker-neutral record. Partition and Offset are set on
// messages returned by Poll and identify them for Commit.
type Message struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

type Consumer interface {
	Poll(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}

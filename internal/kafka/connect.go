package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	segkafka "github.com/segmentio/kafka-go"
)

const probeTimeout = 2 * time.Second

type metadataConn interface {
	ReadPartitions(topics ...string) ([]segkafka.Partition, error)
	Close() error
}

type dialFunc func(ctx context.Context, address string) (metadataConn, error)

// Probe connects to the first reachable broker and checks that every topic
// named in cfg has partitions.
func Probe(ctx context.Context, cfg Config) error {
	return probe(ctx, cfg.Brokers, cfg.topics(), dialBroker(cfg.ClientID))
}

func (c Config) topics() []string {
	var out []string
	for _, t := range []string{c.DeliveriesTopic, c.ItemsTopic} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func probe(ctx context.Context, brokers, topics []string, dial dialFunc) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}
	var errs []error
	for _, broker := range brokers {
		conn, err := dial(ctx, broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		defer conn.Close()
		return checkTopics(conn, topics)
	}
	return errors.Join(errs...)
}

func checkTopics(conn metadataConn, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	partitions, err := conn.ReadPartitions(topics...)
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	seen := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		seen[p.Topic] = true
	}
	var missing []error
	for _, t := range topics {
		if !seen[t] {
			missing = append(missing, fmt.Errorf("topic %q has no partitions", t))
		}
	}
	return errors.Join(missing...)
}

func dialBroker(clientID string) dialFunc {
	dialer := &segkafka.Dialer{ClientID: clientID, Timeout: probeTimeout}
	return func(ctx context.Context, address string) (metadataConn, error) {
		return dialer.DialContext(ctx, "tcp", address)
	}
}

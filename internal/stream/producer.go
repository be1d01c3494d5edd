package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const producerBatchTimeout = 50 * time.Millisecond

// Producer publishes events to the main topic. Messages are keyed by user id
// and hashed onto partitions, so all events for one user land on the same
// partition and are consumed in order.
type Producer struct {
	writer    *kafka.Writer
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewProducer creates a producer for the configured event topic. Writes
// require acknowledgment from all in-sync replicas; an accepted event that
// the API reported as published must survive a broker failure.
func NewProducer(cfg *Config, logger *slog.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           producerBatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}, nil
}

// Publish writes one message keyed by the given user id.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.writer.Topic, err)
	}

	return nil
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Close flushes and closes the writer. Safe to call multiple times.
func (p *Producer) Close() error {
	var err error

	p.closeOnce.Do(func() {
		err = p.writer.Close()
	})

	return err
}

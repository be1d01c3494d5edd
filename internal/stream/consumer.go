package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Reader fetch bounds.
const (
	consumerMinBytes = 1
	consumerMaxBytes = 10 << 20 // 10 MiB
)

// Consumer wraps a group reader with explicit commits. The worker fetches a
// message, carries it to a terminal disposition (scored, duplicate, or
// dead-lettered), and only then commits the offset. A crash before the
// commit redelivers the message; the processed_events table absorbs the
// replay.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a group consumer for the configured event topic.
func NewConsumer(cfg *Config, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: consumerMinBytes,
		MaxBytes: consumerMaxBytes,
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}, nil
}

// Fetch blocks until a message is available or the context is canceled. It
// does not advance the committed offset.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}

	return msg, nil
}

// Commit marks the message as consumed for the group.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
	}

	return nil
}

// Lag returns the reader's current lag behind the head of its partition.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

// Topic returns the consumed topic.
func (c *Consumer) Topic() string {
	return c.reader.Config().Topic
}

// Group returns the consumer group id.
func (c *Consumer) Group() string {
	return c.reader.Config().GroupID
}

// Close closes the reader. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error

	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})

	return err
}

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQ header keys. The original key and value pass through untouched; the
// headers carry what post-mortem analysis needs.
const (
	headerError       = "error"
	headerOriginTopic = "origin-topic"
	headerTimestamp   = "timestamp"
)

// DLQProducer forwards failed messages to the dead-letter topic, preserving
// the original key and payload.
type DLQProducer struct {
	writer    *kafka.Writer
	origin    string
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewDLQProducer creates a producer for the configured dead-letter topic.
// origin is recorded in each forwarded message's headers.
func NewDLQProducer(cfg *Config, logger *slog.Logger) (*DLQProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.DLQTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           producerBatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return &DLQProducer{
		writer: writer,
		origin: cfg.Topic,
		logger: logger,
	}, nil
}

// Forward sends the original message to the dead-letter topic with failure
// diagnostics in the headers. The source key and value are never mutated.
func (p *DLQProducer) Forward(ctx context.Context, src kafka.Message, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}

	msg := kafka.Message{
		Key:   src.Key,
		Value: src.Value,
		Headers: append(src.Headers,
			kafka.Header{Key: headerError, Value: []byte(reason)},
			kafka.Header{Key: headerOriginTopic, Value: []byte(p.origin)},
			kafka.Header{Key: headerTimestamp, Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
		),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to forward to DLQ topic %s: %w", p.writer.Topic, err)
	}

	p.logger.Warn("message forwarded to DLQ",
		slog.String("dlq_topic", p.writer.Topic),
		slog.String("origin_topic", p.origin),
		slog.String("reason", reason))

	return nil
}

// Close flushes and closes the writer. Safe to call multiple times.
func (p *DLQProducer) Close() error {
	var err error

	p.closeOnce.Do(func() {
		err = p.writer.Close()
	})

	return err
}

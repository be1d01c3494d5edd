// Package stream is the Kafka transport layer. The API publishes accepted
// events through a Producer keyed by user id, the worker consumes them
// through a Consumer with explicit offset commits, and terminal failures go
// to a dead-letter topic through a DLQProducer.
package stream

import (
	"errors"
	"fmt"

	"github.com/riskflow-io/riskflow/internal/config"
)

// Default connection settings.
const (
	DefaultBrokers       = "localhost:9092"
	DefaultTopic         = "risk.events"
	DefaultDLQTopic      = "risk.events.dlq"
	DefaultConsumerGroup = "risk-scorer"
)

// Configuration validation errors.
var (
	ErrNoBrokers     = errors.New("at least one Kafka broker is required")
	ErrTopicEmpty    = errors.New("topic must not be empty")
	ErrDLQTopicEmpty = errors.New("DLQ topic must not be empty")
	ErrGroupEmpty    = errors.New("consumer group must not be empty")
)

// Config holds Kafka connection settings shared by producer and consumer.
type Config struct {
	// Brokers are the bootstrap addresses.
	Brokers []string

	// Topic is the event topic, partitioned by user id.
	Topic string

	// DLQTopic receives events that failed terminally.
	DLQTopic string

	// GroupID is the worker consumer group.
	GroupID string
}

// LoadConfig reads Kafka settings from environment variables:
//   - KAFKA_BROKERS: comma-separated broker list (default "localhost:9092")
//   - KAFKA_TOPIC: event topic (default "risk.events")
//   - DLQ_TOPIC: dead-letter topic (default "risk.events.dlq")
//   - CONSUMER_GROUP: worker group id (default "risk-scorer")
func LoadConfig() *Config {
	return &Config{
		Brokers:  config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", DefaultBrokers)),
		Topic:    config.GetEnvStr("KAFKA_TOPIC", DefaultTopic),
		DLQTopic: config.GetEnvStr("DLQ_TOPIC", DefaultDLQTopic),
		GroupID:  config.GetEnvStr("CONSUMER_GROUP", DefaultConsumerGroup),
	}
}

// Validate checks the configuration for missing settings.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return ErrTopicEmpty
	}

	if c.DLQTopic == "" {
		return ErrDLQTopicEmpty
	}

	if c.GroupID == "" {
		return ErrGroupEmpty
	}

	return nil
}

// String returns a loggable description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Brokers: %v, Topic: %s, DLQTopic: %s, GroupID: %s}",
		c.Brokers, c.Topic, c.DLQTopic, c.GroupID)
}

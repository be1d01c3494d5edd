// Package worker consumes events from the stream, computes features, scores
// them, and persists the result exactly once per event. Failures retry with
// exponential backoff; events that cannot be processed go to the dead-letter
// queue in both Kafka and Postgres.
package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/riskflow-io/riskflow/internal/config"
)

// Default retry and metrics settings.
const (
	DefaultMaxRetries  = 3
	DefaultBaseDelayMS = 100
	DefaultMetricsPort = 9100
)

// Configuration validation errors.
var (
	ErrInvalidMaxRetries  = errors.New("MAX_RETRIES must not be negative")
	ErrInvalidBaseDelay   = errors.New("RETRY_BASE_DELAY_MS must be positive")
	ErrInvalidMetricsPort = errors.New("WORKER_METRICS_PORT must be between 1 and 65535")
)

// Config holds worker runtime settings.
type Config struct {
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles per retry.
	BaseDelay time.Duration

	// MetricsPort serves the worker's Prometheus endpoint.
	MetricsPort int
}

// LoadConfig reads worker settings from environment variables:
//   - MAX_RETRIES: retries after the first attempt (default 3)
//   - RETRY_BASE_DELAY_MS: initial backoff in milliseconds (default 100)
//   - WORKER_METRICS_PORT: metrics listen port (default 9100)
func LoadConfig() *Config {
	return &Config{
		MaxRetries:  config.GetEnvInt("MAX_RETRIES", DefaultMaxRetries),
		BaseDelay:   time.Duration(config.GetEnvInt("RETRY_BASE_DELAY_MS", DefaultBaseDelayMS)) * time.Millisecond,
		MetricsPort: config.GetEnvInt("WORKER_METRICS_PORT", DefaultMetricsPort),
	}
}

// Validate checks the configuration for out-of-range settings.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.BaseDelay <= 0 {
		return ErrInvalidBaseDelay
	}

	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return ErrInvalidMetricsPort
	}

	return nil
}

// String returns a loggable description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{MaxRetries: %d, BaseDelay: %s, MetricsPort: %d}",
		c.MaxRetries, c.BaseDelay, c.MetricsPort)
}

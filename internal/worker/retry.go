package worker

import (
	"context"
	"time"

	"github.com/riskflow-io/riskflow/internal/schema"
	"github.com/riskflow-io/riskflow/internal/storage"
)

// Policy controls how processing failures are retried.
type Policy struct {
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
}

// Backoff returns the delay before retry number attempt (zero-based). The
// delay doubles per attempt: base, 2*base, 4*base.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt) // #nosec G115 -- attempt is bounded by MaxRetries
}

// Wait sleeps for the backoff of the given attempt, returning early with the
// context error if the worker is shutting down.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Backoff(attempt)):
		return nil
	}
}

// retryable reports whether a processing error is worth another attempt.
//
// Validation failures and constraint violations will fail identically on
// every replay, so retrying them only delays the dead letter. Transient
// database errors are retried, and so is anything unclassified: wrongly
// retrying a permanent error costs a few hundred milliseconds, wrongly
// dead-lettering a transient one loses a score.
func retryable(err error) bool {
	switch {
	case schema.IsValidationError(err):
		return false
	case storage.IsConstraintViolation(err):
		return false
	case storage.IsTransient(err):
		return true
	default:
		return true
	}
}

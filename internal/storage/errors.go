package storage

import (
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors for storage operations.
var (
	// ErrEventNotFound is returned when an event lookup matches no row.
	ErrEventNotFound = errors.New("event not found")

	// ErrScoreNotFound is returned when a user has no risk score yet.
	ErrScoreNotFound = errors.New("no risk score found for user")

	// ErrDLQEntryNotFound is returned when a DLQ lookup matches no row.
	ErrDLQEntryNotFound = errors.New("dlq entry not found")

	// ErrConstraintViolation is returned for integrity failures that will
	// never succeed on retry (bad FK, check constraint, oversized value).
	ErrConstraintViolation = errors.New("database constraint violation")
)

// PostgreSQL error classes and codes used for classification.
const (
	pqClassConnectionException = "08"    // connection exceptions (class 08)
	pqCodeSerializationFailure = "40001" // serialization_failure
	pqCodeDeadlockDetected     = "40P01" // deadlock_detected
	pqClassIntegrityViolation  = "23"    // integrity constraint violations (class 23)
)

// IsTransient reports whether err is a transient database failure that a
// retry with backoff may resolve: connection loss, serialization failures,
// and deadlocks. Constraint violations are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == pqClassConnectionException {
			return true
		}

		if string(pqErr.Code) == pqCodeSerializationFailure || string(pqErr.Code) == pqCodeDeadlockDetected {
			return true
		}
	}

	return false
}

// IsConstraintViolation reports whether err is a permanent integrity failure.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConstraintViolation) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == pqClassIntegrityViolation
	}

	return false
}

// Package storage provides PostgreSQL-backed persistence for the risk
// pipeline: the durable event log, computed risk scores, the processed-event
// dedup gate, the model registry, and the dead letter queue.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/riskflow-io/riskflow/internal/config"
)

type (
	// Store implements all persistence operations over a shared Connection.
	//
	// Write paths are idempotent by construction: events and processed
	// markers insert with ON CONFLICT DO NOTHING on their primary key, so
	// redelivery and concurrent workers cannot produce duplicate rows.
	Store struct {
		conn    *Connection
		logger  *slog.Logger
		observe DurationObserver
	}

	// DurationObserver receives per-operation query latencies. Wired to the
	// db_query_duration_seconds histogram; nil disables observation.
	DurationObserver func(operation string, seconds float64)

	// StoreOption configures optional Store behavior.
	StoreOption func(*Store)
)

// WithQueryObserver sets the query latency observer.
func WithQueryObserver(observe DurationObserver) StoreOption {
	return func(s *Store) {
		s.observe = observe
	}
}

// NewStore creates a PostgreSQL-backed store. Returns ErrNoDatabaseConnection
// if conn is nil.
func NewStore(conn *Connection, opts ...StoreOption) (*Store, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &Store{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// timed returns a func that records the elapsed time for one operation.
//
// Usage: defer s.timed("insert_event")().
func (s *Store) timed(operation string) func() {
	if s.observe == nil {
		return func() {}
	}

	start := time.Now()

	return func() {
		s.observe(operation, time.Since(start).Seconds())
	}
}

// InsertEventIfAbsent stores an event keyed by event_id, doing nothing when
// the id already exists.
//
// Returns (inserted, existing, error):
//   - (true, nil, nil)       → event newly stored
//   - (false, existing, nil) → duplicate event_id; existing is the stored row
//   - (false, nil, err)      → storage failure
//
// The duplicate path returns the stored row so the ingest handler can see
// whether publish completed (PublishedAt) and repair an interrupted ingest.
func (s *Store) InsertEventIfAbsent(ctx context.Context, record *EventRecord) (bool, *EventRecord, error) {
	defer s.timed("insert_event")()

	const insertQuery = `
		INSERT INTO events (event_id, user_id, event_type, ts, schema_version,
			payload_json, raw_payload_hash, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (event_id) DO NOTHING`

	result, err := s.conn.ExecContext(ctx, insertQuery,
		record.EventID, record.UserID, record.EventType, record.TS,
		record.SchemaVersion, []byte(record.PayloadJSON), record.RawPayloadHash,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to insert event %s: %w", record.EventID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to read insert result for event %s: %w", record.EventID, err)
	}

	if rows == 1 {
		return true, nil, nil
	}

	existing, err := s.GetEvent(ctx, record.EventID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load duplicate event %s: %w", record.EventID, err)
	}

	return false, existing, nil
}

// GetEvent loads a stored event by id. Returns ErrEventNotFound when absent.
func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (*EventRecord, error) {
	defer s.timed("get_event")()

	const query = `
		SELECT event_id, user_id, event_type, ts, schema_version,
			payload_json, raw_payload_hash, accepted_at, published_at
		FROM events
		WHERE event_id = $1`

	var (
		record      EventRecord
		payload     []byte
		publishedAt sql.NullTime
	)

	err := s.conn.QueryRowContext(ctx, query, eventID).Scan(
		&record.EventID, &record.UserID, &record.EventType, &record.TS,
		&record.SchemaVersion, &payload, &record.RawPayloadHash,
		&record.AcceptedAt, &publishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}

		return nil, fmt.Errorf("failed to query event %s: %w", eventID, err)
	}

	record.PayloadJSON = payload
	if publishedAt.Valid {
		t := publishedAt.Time
		record.PublishedAt = &t
	}

	return &record, nil
}

// MarkPublished records the publish time for an event, only if it has not
// been marked already. Safe to call from concurrent repair paths.
func (s *Store) MarkPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	defer s.timed("mark_published")()

	const query = `
		UPDATE events
		SET published_at = $2
		WHERE event_id = $1 AND published_at IS NULL`

	if _, err := s.conn.ExecContext(ctx, query, eventID, at.UTC()); err != nil {
		return fmt.Errorf("failed to mark event %s published: %w", eventID, err)
	}

	return nil
}

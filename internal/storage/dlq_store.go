package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// AppendDLQ writes a dead-letter row. The raw payload is sanitized to valid
// UTF-8 first: dead letters frequently carry the exact bytes that failed to
// decode, and a text column must never reject the record that explains a
// failure.
func (s *Store) AppendDLQ(ctx context.Context, record *DLQRecord) (int64, error) {
	defer s.timed("append_dlq")()

	const query = `
		INSERT INTO dlq_events (event_id, raw_payload, failure_reason, created_at, retry_count)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING id`

	var eventID interface{}
	if record.EventID != nil {
		eventID = *record.EventID
	}

	var id int64

	err := s.conn.QueryRowContext(ctx, query,
		eventID,
		SanitizeUTF8(record.RawPayload),
		record.FailureReason,
		record.RetryCount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append dlq entry: %w", err)
	}

	s.logger.Warn("event dead-lettered",
		slog.Int64("dlq_id", id),
		slog.String("reason", record.FailureReason),
		slog.Int("retry_count", record.RetryCount),
	)

	return id, nil
}

// ListDLQ returns a page of dead-letter entries, newest first, along with the
// total row count for pagination.
func (s *Store) ListDLQ(ctx context.Context, limit, offset int) ([]DLQRecord, int, error) {
	defer s.timed("list_dlq")()

	const countQuery = `SELECT COUNT(*) FROM dlq_events`

	var total int
	if err := s.conn.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dlq entries: %w", err)
	}

	const listQuery = `
		SELECT id, event_id, raw_payload, failure_reason, created_at, retry_count
		FROM dlq_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.conn.QueryContext(ctx, listQuery, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dlq entries: %w", err)
	}
	defer rows.Close()

	var records []DLQRecord

	for rows.Next() {
		record, err := scanDLQ(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dlq row: %w", err)
		}

		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate dlq entries: %w", err)
	}

	return records, total, nil
}

// GetDLQ loads a single dead-letter entry by row id.
// Returns ErrDLQEntryNotFound when absent.
func (s *Store) GetDLQ(ctx context.Context, id int64) (*DLQRecord, error) {
	defer s.timed("get_dlq")()

	const query = `
		SELECT id, event_id, raw_payload, failure_reason, created_at, retry_count
		FROM dlq_events
		WHERE id = $1`

	record, err := scanDLQ(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDLQEntryNotFound, id)
		}

		return nil, fmt.Errorf("failed to query dlq entry %d: %w", id, err)
	}

	return record, nil
}

func scanDLQ(row rowScanner) (*DLQRecord, error) {
	var (
		record  DLQRecord
		eventID sql.NullString
	)

	err := row.Scan(&record.ID, &eventID, &record.RawPayload,
		&record.FailureReason, &record.CreatedAt, &record.RetryCount)
	if err != nil {
		return nil, err
	}

	if eventID.Valid {
		uid, err := uuid.Parse(eventID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid event_id in dlq row %d: %w", record.ID, err)
		}

		record.EventID = &uid
	}

	return &record, nil
}

// SanitizeUTF8 replaces invalid UTF-8 sequences with the replacement
// character so arbitrary bytes can be stored in a text column.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

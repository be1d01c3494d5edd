package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrAlreadyProcessed is returned by SaveScore when another worker won the
// processed-event gate first. The caller should treat the message as a
// duplicate and commit its offset without writing a score.
var ErrAlreadyProcessed = errors.New("event already processed")

// IsProcessed reports whether an event has already reached a terminal
// disposition. This is a cheap pre-check only: the authoritative decision is
// the atomic insert inside SaveScore and MarkFailed, which wins races this
// probe cannot see.
func (s *Store) IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	defer s.timed("is_processed")()

	const query = `SELECT 1 FROM processed_events WHERE event_id = $1`

	var one int

	err := s.conn.QueryRowContext(ctx, query, eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("failed to probe processed_events for %s: %w", eventID, err)
	}

	return true, nil
}

// SaveScore persists a computed risk score and the processed marker for its
// event in one transaction. The processed insert uses ON CONFLICT DO NOTHING
// on the event id; if no row was inserted some other delivery already
// finished this event, the transaction rolls back, and ErrAlreadyProcessed is
// returned. At most one score row can ever exist per processed event.
func (s *Store) SaveScore(ctx context.Context, score *ScoreRecord, eventID uuid.UUID) error {
	defer s.timed("save_score")()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin score transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	const markQuery = `
		INSERT INTO processed_events (event_id, processed_at, status)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (event_id) DO NOTHING`

	result, err := tx.ExecContext(ctx, markQuery, eventID, string(ProcessedStatusScored))
	if err != nil {
		return fmt.Errorf("failed to insert processed marker for %s: %w", eventID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read processed marker result for %s: %w", eventID, err)
	}

	if rows == 0 {
		// Lost the race: a concurrent delivery already finished this event.
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, eventID)
	}

	const insertScore = `
		INSERT INTO risk_scores (user_id, score, band, computed_at, top_features_json, model_version)
		VALUES ($1, $2, $3, NOW(), $4, $5)`

	topFeatures := nullableBytes(score.TopFeatures)
	modelVersion := nullableString(score.ModelVersion)

	if _, err := tx.ExecContext(ctx, insertScore,
		score.UserID, score.Score, score.Band, topFeatures, modelVersion,
	); err != nil {
		return fmt.Errorf("failed to insert risk score for user %s: %w", score.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit score transaction for %s: %w", eventID, err)
	}

	s.logger.Debug("risk score saved",
		slog.String("event_id", eventID.String()),
		slog.String("user_id", score.UserID),
		slog.Float64("score", score.Score),
		slog.String("band", score.Band),
	)

	return nil
}

// MarkFailed records a terminal failure disposition for an event so that a
// redelivery after crash or rebalance does not dead-letter it twice.
// Idempotent: returns (false, nil) if a disposition already exists.
func (s *Store) MarkFailed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	defer s.timed("mark_failed")()

	const query = `
		INSERT INTO processed_events (event_id, processed_at, status)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (event_id) DO NOTHING`

	result, err := s.conn.ExecContext(ctx, query, eventID, string(ProcessedStatusFailed))
	if err != nil {
		return false, fmt.Errorf("failed to insert failed marker for %s: %w", eventID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read failed marker result for %s: %w", eventID, err)
	}

	return rows == 1, nil
}

// LatestScore returns the most recent risk score for a user.
// Returns ErrScoreNotFound when the user has never been scored.
func (s *Store) LatestScore(ctx context.Context, userID string) (*ScoreRecord, error) {
	defer s.timed("latest_score")()

	const query = `
		SELECT id, user_id, score, band, computed_at, top_features_json, model_version
		FROM risk_scores
		WHERE user_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1`

	record, err := scanScore(s.conn.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrScoreNotFound, userID)
		}

		return nil, fmt.Errorf("failed to query latest score for user %s: %w", userID, err)
	}

	return record, nil
}

// ScoreHistory returns up to limit scores for a user, newest first.
func (s *Store) ScoreHistory(ctx context.Context, userID string, limit int) ([]ScoreRecord, error) {
	defer s.timed("score_history")()

	const query = `
		SELECT id, user_id, score, band, computed_at, top_features_json, model_version
		FROM risk_scores
		WHERE user_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2`

	rows, err := s.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var records []ScoreRecord

	for rows.Next() {
		record, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score row for user %s: %w", userID, err)
		}

		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score history for user %s: %w", userID, err)
	}

	return records, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScore(row rowScanner) (*ScoreRecord, error) {
	var (
		record       ScoreRecord
		topFeatures  []byte
		modelVersion sql.NullString
	)

	err := row.Scan(&record.ID, &record.UserID, &record.Score, &record.Band,
		&record.ComputedAt, &topFeatures, &modelVersion)
	if err != nil {
		return nil, err
	}

	record.TopFeatures = topFeatures
	if modelVersion.Valid {
		record.ModelVersion = modelVersion.String
	}

	return &record, nil
}

// nullableBytes converts empty byte slices to NULL for jsonb columns.
func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}

	return []byte(b)
}

// nullableString converts empty strings to NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}

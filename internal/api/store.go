package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/riskflow-io/riskflow/internal/storage"
)

type (
	// Store is the persistence surface the handlers need. Satisfied by
	// *storage.Store; narrowed here so handler tests can run against fakes.
	Store interface {
		HealthCheck(ctx context.Context) error
		InsertEventIfAbsent(ctx context.Context, record *storage.EventRecord) (bool, *storage.EventRecord, error)
		MarkPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error
		LatestScore(ctx context.Context, userID string) (*storage.ScoreRecord, error)
		ScoreHistory(ctx context.Context, userID string, limit int) ([]storage.ScoreRecord, error)
		ListDLQ(ctx context.Context, limit, offset int) ([]storage.DLQRecord, int, error)
		GetDLQ(ctx context.Context, id int64) (*storage.DLQRecord, error)
	}

	// Producer publishes accepted events to the stream, keyed by user id.
	Producer interface {
		Publish(ctx context.Context, key string, value []byte) error
	}
)

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/metrics"
	"github.com/riskflow-io/riskflow/internal/schema"
	"github.com/riskflow-io/riskflow/internal/scoring"
	"github.com/riskflow-io/riskflow/internal/storage"
)

type (
	// Consumer is the stream surface the worker reads from. Offsets commit
	// only after a message reaches a terminal disposition.
	Consumer interface {
		Fetch(ctx context.Context) (kafka.Message, error)
		Commit(ctx context.Context, msg kafka.Message) error
		Lag() int64
		Topic() string
		Group() string
	}

	// DeadLetterer forwards irrecoverable messages to the DLQ topic.
	DeadLetterer interface {
		Forward(ctx context.Context, msg kafka.Message, cause error) error
	}

	// ScoreStore is the persistence surface the worker writes through.
	ScoreStore interface {
		IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)
		SaveScore(ctx context.Context, score *storage.ScoreRecord, eventID uuid.UUID) error
		MarkFailed(ctx context.Context, eventID uuid.UUID) (bool, error)
		AppendDLQ(ctx context.Context, record *storage.DLQRecord) (int64, error)
	}

	// FeatureSource computes the feature vector for a user at a point in
	// time.
	FeatureSource interface {
		Compute(ctx context.Context, userID string, asOf time.Time) (features.Features, error)
	}

	// Worker runs the consume-score-persist loop.
	Worker struct {
		consumer Consumer
		store    ScoreStore
		source   FeatureSource
		scorer   scoring.Scorer
		dlq      DeadLetterer
		policy   Policy
		metrics  *metrics.Metrics
		logger   *slog.Logger
	}
)

// NewWorker wires the processing loop. All dependencies are required except
// metrics and logger.
func NewWorker(
	cfg *Config,
	consumer Consumer,
	store ScoreStore,
	source FeatureSource,
	scorer scoring.Scorer,
	dlq DeadLetterer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		consumer: consumer,
		store:    store,
		source:   source,
		scorer:   scorer,
		dlq:      dlq,
		policy:   Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay},
		metrics:  m,
		logger:   logger,
	}
}

// Run consumes until the context is canceled. Every fetched message reaches
// a terminal disposition before its offset commits, so a crash mid-message
// redelivers it and the processed_events gate absorbs the replay.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		slog.String("topic", w.consumer.Topic()),
		slog.String("group", w.consumer.Group()),
		slog.String("model_version", w.scorer.Version()))

	for {
		msg, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")

				return nil
			}

			w.logger.Error("failed to fetch message", slog.String("error", err.Error()))

			continue
		}

		if w.metrics != nil {
			w.metrics.ConsumerLag.WithLabelValues(w.consumer.Topic(), w.consumer.Group()).Set(float64(w.consumer.Lag()))
		}

		w.process(ctx, msg)

		if err := w.consumer.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			w.logger.Error("failed to commit offset",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
		}
	}
}

// process carries one message to a terminal disposition: scored, skipped as
// a duplicate, or dead-lettered. It never blocks the commit; whatever
// happens here, the offset advances.
func (w *Worker) process(ctx context.Context, msg kafka.Message) {
	event, err := schema.Decode(msg.Value)
	if err != nil {
		w.logger.Warn("rejecting undecodable message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()))

		w.deadLetter(ctx, msg, nil, "unknown", err, 0)

		return
	}

	eventType := string(event.EventType)

	// Cheap probe; the SaveScore insert gate is the real dedup authority.
	processed, err := w.store.IsProcessed(ctx, event.EventID)
	if err != nil {
		w.logger.Warn("processed probe failed, continuing",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()))
	} else if processed {
		w.skip(event, eventType)

		return
	}

	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = w.scoreOnce(ctx, event)
		if lastErr == nil {
			w.observeProcessed(eventType, metrics.StatusScored)

			return
		}

		if errors.Is(lastErr, storage.ErrAlreadyProcessed) {
			w.skip(event, eventType)

			return
		}

		if !retryable(lastErr) || attempt >= w.policy.MaxRetries {
			break
		}

		w.logger.Warn("scoring failed, retrying",
			slog.String("event_id", event.EventID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", w.policy.Backoff(attempt)),
			slog.String("error", lastErr.Error()))

		if w.metrics != nil {
			w.metrics.RetryAttempts.WithLabelValues("scoring").Inc()
		}

		if err := w.policy.Wait(ctx, attempt); err != nil {
			// Shutting down mid-retry: leave the offset uncommitted so the
			// message is redelivered.
			return
		}
	}

	w.logger.Error("scoring failed terminally",
		slog.String("event_id", event.EventID.String()),
		slog.String("user_id", event.UserID),
		slog.String("error", lastErr.Error()))

	w.deadLetter(ctx, msg, &event.EventID, eventType, lastErr, w.policy.MaxRetries)

	if _, err := w.store.MarkFailed(ctx, event.EventID); err != nil {
		w.logger.Error("failed to mark event failed",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()))
	}
}

// scoreOnce runs one feature-extraction and scoring attempt.
func (w *Worker) scoreOnce(ctx context.Context, event *schema.Event) error {
	start := time.Now()

	featureSet, err := w.source.Compute(ctx, event.UserID, event.TS)
	if err != nil {
		return err
	}

	prediction, err := w.scorer.Predict(scoring.Request{
		UserID:    event.UserID,
		EventType: event.EventType,
		Features:  featureSet,
	})
	if err != nil {
		return err
	}

	topFeatures, err := json.Marshal(prediction.TopFeatures)
	if err != nil {
		return err
	}

	record := &storage.ScoreRecord{
		UserID:       event.UserID,
		Score:        prediction.Score,
		Band:         string(prediction.Band),
		ComputedAt:   time.Now().UTC(),
		TopFeatures:  topFeatures,
		ModelVersion: prediction.ModelVersion,
	}

	if err := w.store.SaveScore(ctx, record, event.EventID); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	}

	w.logger.Info("event scored",
		slog.String("event_id", event.EventID.String()),
		slog.String("user_id", event.UserID),
		slog.Float64("score", prediction.Score),
		slog.String("band", string(prediction.Band)),
		slog.String("model_version", prediction.ModelVersion))

	return nil
}

// deadLetter records the failure in the dlq_events table and forwards the
// original message to the DLQ topic. Both writes are best effort; a DLQ
// failure must not wedge the partition.
func (w *Worker) deadLetter(ctx context.Context, msg kafka.Message, eventID *uuid.UUID, eventType string, cause error, retries int) {
	record := &storage.DLQRecord{
		EventID:       eventID,
		RawPayload:    string(msg.Value),
		FailureReason: cause.Error(),
		RetryCount:    retries,
	}

	if _, err := w.store.AppendDLQ(ctx, record); err != nil {
		w.logger.Error("failed to append DLQ record", slog.String("error", err.Error()))
	}

	if w.dlq != nil {
		if err := w.dlq.Forward(ctx, msg, cause); err != nil {
			w.logger.Error("failed to forward to DLQ topic", slog.String("error", err.Error()))
		}
	}

	if w.metrics != nil {
		w.metrics.DLQEvents.WithLabelValues(dlqReason(cause)).Inc()
		w.metrics.EventsProcessed.WithLabelValues(eventType, metrics.StatusFailed).Inc()
	}
}

func (w *Worker) skip(event *schema.Event, eventType string) {
	w.logger.Debug("skipping already processed event",
		slog.String("event_id", event.EventID.String()))

	w.observeProcessed(eventType, metrics.StatusSkipped)
}

func (w *Worker) observeProcessed(eventType, status string) {
	if w.metrics != nil {
		w.metrics.EventsProcessed.WithLabelValues(eventType, status).Inc()
	}
}

func dlqReason(err error) string {
	switch {
	case schema.IsValidationError(err):
		return "validation"
	case storage.IsConstraintViolation(err):
		return "constraint"
	case storage.IsTransient(err):
		return "transient_exhausted"
	default:
		return "processing"
	}
}

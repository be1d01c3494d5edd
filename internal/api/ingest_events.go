package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/riskflow-io/riskflow/internal/api/middleware"
	"github.com/riskflow-io/riskflow/internal/metrics"
	"github.com/riskflow-io/riskflow/internal/schema"
	"github.com/riskflow-io/riskflow/internal/storage"
)

// handleIngestEvent handles event ingestion.
// POST /events - accept one event, persist it durably, publish it to the
// stream.
//
// Request validation (returns 4xx):
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: request body exceeds MaxRequestSize
//   - 400 Bad Request: empty body, malformed JSON, or schema validation
//     failure
//
// Success response:
//   - 202 Accepted: event persisted (fresh or duplicate, the caller cannot
//     tell). The row commits before the publish, so an event acknowledged
//     here survives a crash; an interrupted publish is repaired when the
//     producer retries the same event_id.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		WriteErrorResponse(w, r, s.logger, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		))

		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger, PayloadTooLarge(
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
			))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Failed to read request body"))

		return
	}

	if len(body) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("Request body cannot be empty"))

		return
	}

	event, err := schema.Decode(body)
	if err != nil {
		s.observeIngest("unknown", metrics.StatusInvalid)

		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	record, problem := buildEventRecord(event, body)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	inserted, existing, err := s.store.InsertEventIfAbsent(r.Context(), record)
	if err != nil {
		s.logger.Error("Failed to persist event",
			slog.String("correlation_id", correlationID),
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to persist event"))

		return
	}

	status := metrics.StatusAccepted

	switch {
	case inserted:
		s.publishEvent(r, event)
	case existing.PublishedAt == nil:
		// A previous ingest persisted the row but crashed before the
		// publish. The replayed POST completes the interrupted handoff.
		status = metrics.StatusDuplicate

		s.logger.Info("Repairing unpublished duplicate",
			slog.String("correlation_id", correlationID),
			slog.String("event_id", event.EventID.String()),
		)

		s.publishEvent(r, event)
	default:
		status = metrics.StatusDuplicate
	}

	s.observeIngest(string(event.EventType), status)

	s.logger.Info("Event ingested",
		slog.String("correlation_id", correlationID),
		slog.String("event_id", event.EventID.String()),
		slog.String("user_id", event.UserID),
		slog.String("event_type", string(event.EventType)),
		slog.String("status", status),
		slog.Duration("duration", time.Since(startTime)),
	)

	s.writeJSON(w, r, http.StatusAccepted, IngestResponse{
		EventID: event.EventID.String(),
		Status:  "accepted",
	})
}

// buildEventRecord converts a validated event into its persisted form. The
// hash covers the canonical form of the posted body, not the re-marshaled
// struct, so number literals survive verbatim and a replay with drifted
// content is detectable against the stored digest.
func buildEventRecord(event *schema.Event, body []byte) (*storage.EventRecord, *ProblemDetail) {
	payloadJSON, err := schema.PayloadJSON(event)
	if err != nil {
		return nil, InternalServerError("Failed to canonicalize event payload")
	}

	hash, err := schema.PayloadHash(body)
	if err != nil {
		return nil, InternalServerError("Failed to hash event payload")
	}

	return &storage.EventRecord{
		EventID:        event.EventID,
		UserID:         event.UserID,
		EventType:      string(event.EventType),
		TS:             event.TS,
		SchemaVersion:  event.SchemaVersion,
		PayloadJSON:    payloadJSON,
		RawPayloadHash: hash,
		AcceptedAt:     time.Now().UTC(),
	}, nil
}

// publishEvent hands the event to the stream and stamps published_at. Both
// steps are best effort: a failure leaves published_at NULL, which the next
// duplicate POST repairs, and the client still gets its 202 because the row
// is durable.
func (s *Server) publishEvent(r *http.Request, event *schema.Event) {
	if s.producer == nil {
		return
	}

	value, err := schema.Encode(event)
	if err != nil {
		s.logger.Error("Failed to encode event for publishing",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)

		return
	}

	if err := s.producer.Publish(r.Context(), event.UserID, value); err != nil {
		s.logger.Error("Failed to publish event",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)

		return
	}

	if err := s.store.MarkPublished(r.Context(), event.EventID, time.Now().UTC()); err != nil {
		s.logger.Error("Failed to mark event published",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) observeIngest(eventType, status string) {
	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(eventType, status).Inc()
	}
}

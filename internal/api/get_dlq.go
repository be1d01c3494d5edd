package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/riskflow-io/riskflow/internal/storage"
)

// handleListDLQ pages through dead-lettered events, newest first.
// GET /dlq?limit=N&offset=M
//
// The limit defaults to 100 and is capped at 1000; offset defaults to 0.
// The total count is returned alongside the page so operators can gauge
// backlog size without walking every page.
func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	limit, problem := parseLimitParam(r, defaultHistoryLimit)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	offset, problem := parseOffsetParam(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	records, total, err := s.store.ListDLQ(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("Failed to list dlq entries",
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to list dead-letter entries"))

		return
	}

	entries := make([]DLQEntry, 0, len(records))
	for i := range records {
		entries = append(entries, toDLQEntry(&records[i]))
	}

	s.writeJSON(w, r, http.StatusOK, DLQListResponse{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Entries: entries,
	})
}

// handleGetDLQ returns one dead-lettered event by its numeric id.
// GET /dlq/{id}
//
// Response codes:
//   - 200 OK: the entry
//   - 400 Bad Request: id is not a positive integer
//   - 404 Not Found: no entry with that id
func (s *Server) handleGetDLQ(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		WriteErrorResponse(w, r, s.logger, BadRequest("id must be a positive integer"))

		return
	}

	record, err := s.store.GetDLQ(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrDLQEntryNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound(
				fmt.Sprintf("No dead-letter entry with id %d", id),
			))

			return
		}

		s.logger.Error("Failed to query dlq entry",
			slog.Int64("dlq_id", id),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query dead-letter entry"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, toDLQEntry(record))
}

func toDLQEntry(record *storage.DLQRecord) DLQEntry {
	entry := DLQEntry{
		ID:            record.ID,
		RawPayload:    record.RawPayload,
		FailureReason: record.FailureReason,
		CreatedAt:     record.CreatedAt,
		RetryCount:    record.RetryCount,
	}

	if record.EventID != nil {
		entry.EventID = record.EventID.String()
	}

	return entry
}

func parseOffsetParam(r *http.Request) (int, *ProblemDetail) {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, BadRequest("offset must be a non-negative integer")
	}

	return offset, nil
}

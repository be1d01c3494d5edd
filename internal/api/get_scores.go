package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/riskflow-io/riskflow/internal/storage"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// handleGetScore returns the most recent risk score for a user.
// GET /score/{user_id}
//
// Response codes:
//   - 200 OK: latest score
//   - 404 Not Found: the user has never been scored
func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	record, err := s.store.LatestScore(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrScoreNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound(
				fmt.Sprintf("No risk score found for user %s", userID),
			))

			return
		}

		s.logger.Error("Failed to query latest score",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query risk score"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, toScoreResponse(record))
}

// handleGetScoreHistory returns up to limit scores for a user, newest first.
// GET /score/{user_id}/history?limit=N
//
// The limit defaults to 100 and is capped at 1000. A user with no scores
// gets an empty list, not a 404.
func (s *Server) handleGetScoreHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit, problem := parseLimitParam(r, defaultHistoryLimit)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	records, err := s.store.ScoreHistory(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("Failed to query score history",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query score history"))

		return
	}

	scores := make([]ScoreResponse, 0, len(records))
	for i := range records {
		scores = append(scores, toScoreResponse(&records[i]))
	}

	s.writeJSON(w, r, http.StatusOK, ScoreHistoryResponse{
		UserID: userID,
		Scores: scores,
	})
}

func toScoreResponse(record *storage.ScoreRecord) ScoreResponse {
	return ScoreResponse{
		UserID:       record.UserID,
		Score:        record.Score,
		Band:         record.Band,
		ComputedAt:   record.ComputedAt,
		TopFeatures:  record.TopFeatures,
		ModelVersion: record.ModelVersion,
	}
}

// parseLimitParam reads the limit query parameter, returning fallback when
// absent. Values outside [1, 1000] are rejected.
func parseLimitParam(r *http.Request, fallback int) (int, *ProblemDetail) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return 0, BadRequest(
			fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit),
		)
	}

	return limit, nil
}

package api

import (
	"encoding/json"
	"time"
)

type (
	// IngestResponse acknowledges an accepted event. Duplicates are
	// acknowledged identically; the caller cannot distinguish a replayed
	// POST from the first.
	IngestResponse struct {
		EventID string `json:"event_id"`
		Status  string `json:"status"`
	}

	// ScoreResponse is one computed risk score.
	ScoreResponse struct {
		UserID       string          `json:"user_id"`
		Score        float64         `json:"score"`
		Band         string          `json:"band"`
		ComputedAt   time.Time       `json:"computed_at"`
		TopFeatures  json.RawMessage `json:"top_features,omitempty"`
		ModelVersion string          `json:"model_version,omitempty"`
	}

	// ScoreHistoryResponse lists a user's scores, newest first.
	ScoreHistoryResponse struct {
		UserID string          `json:"user_id"`
		Scores []ScoreResponse `json:"scores"`
	}

	// DLQEntry is one dead-lettered event.
	DLQEntry struct {
		ID            int64     `json:"id"`
		EventID       string    `json:"event_id,omitempty"`
		RawPayload    string    `json:"raw_payload"`
		FailureReason string    `json:"failure_reason"`
		CreatedAt     time.Time `json:"created_at"`
		RetryCount    int       `json:"retry_count"`
	}

	// DLQListResponse pages through dead-lettered events, newest first.
	DLQListResponse struct {
		Total   int        `json:"total"`
		Limit   int        `json:"limit"`
		Offset  int        `json:"offset"`
		Entries []DLQEntry `json:"entries"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string            `json:"status"`
		ServiceName string            `json:"serviceName"`
		Version     string            `json:"version"`
		Uptime      string            `json:"uptime,omitempty"`
		Checks      map[string]string `json:"checks,omitempty"`
	}
)

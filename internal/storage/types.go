package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	// EventRecord is the persisted form of an ingested event.
	EventRecord struct {
		EventID        uuid.UUID
		UserID         string
		EventType      string
		TS             time.Time
		SchemaVersion  int
		PayloadJSON    json.RawMessage
		RawPayloadHash string
		AcceptedAt     time.Time

		// PublishedAt is nil until the event has been handed to the bus.
		// A stored row with a nil PublishedAt marks an interrupted ingest
		// that the next duplicate POST repairs.
		PublishedAt *time.Time
	}

	// ScoreRecord is one computed risk score for a user.
	ScoreRecord struct {
		ID           int64
		UserID       string
		Score        float64
		Band         string
		ComputedAt   time.Time
		TopFeatures  json.RawMessage // nullable; at most 3 signed contributions keyed by feature name
		ModelVersion string          // empty for legacy rows scored before model registration
	}

	// DLQRecord is a dead-lettered message with its failure context.
	DLQRecord struct {
		ID            int64
		EventID       *uuid.UUID // nil when the payload never decoded
		RawPayload    string
		FailureReason string
		CreatedAt     time.Time
		RetryCount    int
	}

	// ModelVersionRecord registers a loaded model artifact.
	ModelVersionRecord struct {
		ModelVersion string
		CreatedAt    time.Time
		ParamsHash   string
		MetadataJSON json.RawMessage
	}

	// ProcessedStatus is the terminal disposition recorded in processed_events.
	ProcessedStatus string
)

// Terminal dispositions for processed events.
const (
	ProcessedStatusScored ProcessedStatus = "scored"
	ProcessedStatusFailed ProcessedStatus = "failed"
)

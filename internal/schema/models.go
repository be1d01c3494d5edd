// Package schema provides the versioned event envelope, per-type payload
// contracts, strict decoding, and canonical payload hashing for the risk
// pipeline.
//
// Every event enters the system exactly once through Decode, both on the HTTP
// ingest path and on the consumer side of the bus. Anything Decode rejects is
// permanently invalid: the same bytes will never decode on a later attempt,
// so downstream classification treats schema failures as non-retryable.
package schema

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Event is the validated ingest envelope - Domain Model.
	//
	// Timestamps are normalized to UTC at decode time regardless of the
	// offset the producer sent.
	Event struct {
		// EventID is the client-generated UUID identifying this event.
		// It is the idempotency key for both storage and processing.
		EventID uuid.UUID

		// UserID identifies the subject of the event (1..255 chars).
		UserID string

		// EventType selects the payload variant: signup, login, or transaction.
		EventType EventType

		// TS is the producer-side occurrence time, normalized to UTC.
		TS time.Time

		// SchemaVersion is the envelope contract version (>= 1).
		SchemaVersion int

		// Payload is the typed per-event-type body.
		Payload Payload
	}

	// EventType enumerates the supported event variants.
	EventType string

	// Payload is implemented by all event payload variants.
	Payload interface {
		eventPayload()
	}

	// SignupPayload is the body of a signup event.
	SignupPayload struct {
		// EmailDomain is the domain part of the signup email (1..255 chars).
		EmailDomain string `json:"email_domain"`

		// Country is an ISO 3166-1 alpha-2 code.
		Country string `json:"country"`

		// DeviceID identifies the signup device (1..255 chars).
		DeviceID string `json:"device_id"`
	}

	// LoginPayload is the body of a login event.
	LoginPayload struct {
		// IP is the textual client address, v4 or v6 (7..45 chars).
		IP string `json:"ip"`

		// Success reports whether the login attempt succeeded.
		Success bool `json:"success"`

		// DeviceID identifies the login device (1..255 chars).
		DeviceID string `json:"device_id"`
	}

	// TransactionPayload is the body of a transaction event.
	TransactionPayload struct {
		// Amount is the transaction amount, strictly positive.
		Amount float64 `json:"amount"`

		// Currency is an ISO 4217 alpha-3 code.
		Currency string `json:"currency"`

		// Merchant names the counterparty (1..255 chars).
		Merchant string `json:"merchant"`

		// Country is an ISO 3166-1 alpha-2 code.
		Country string `json:"country"`
	}
)

// Supported event types.
const (
	EventTypeSignup      EventType = "signup"
	EventTypeLogin       EventType = "login"
	EventTypeTransaction EventType = "transaction"
)

// DefaultSchemaVersion applies when the envelope omits schema_version.
const DefaultSchemaVersion = 1

// IsValid reports whether the event type is one of the supported variants.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeSignup, EventTypeLogin, EventTypeTransaction:
		return true
	default:
		return false
	}
}

func (SignupPayload) eventPayload()      {}
func (LoginPayload) eventPayload()       {}
func (TransactionPayload) eventPayload() {}

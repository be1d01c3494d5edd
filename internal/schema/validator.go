package schema

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrValidation is the root of every schema validation failure. All sentinel
// errors in this package wrap it, so callers can classify any decode or
// validation failure with a single errors.Is check.
var ErrValidation = errors.New("event validation failed")

// Sentinel errors for envelope and payload validation failures.
var (
	ErrNilEvent             = fmt.Errorf("%w: event cannot be nil", ErrValidation)
	ErrMalformedJSON        = fmt.Errorf("%w: malformed JSON", ErrValidation)
	ErrUnknownField         = fmt.Errorf("%w: unknown field", ErrValidation)
	ErrMissingEventID       = fmt.Errorf("%w: event_id is required", ErrValidation)
	ErrInvalidEventID       = fmt.Errorf("%w: event_id must be a valid UUID", ErrValidation)
	ErrInvalidUserID        = fmt.Errorf("%w: user_id must be 1..255 characters", ErrValidation)
	ErrInvalidEventType     = fmt.Errorf("%w: invalid event_type", ErrValidation)
	ErrMissingTimestamp     = fmt.Errorf("%w: ts is required", ErrValidation)
	ErrInvalidTimestamp     = fmt.Errorf("%w: ts must be an ISO-8601 timestamp", ErrValidation)
	ErrInvalidSchemaVersion = fmt.Errorf("%w: schema_version must be >= 1", ErrValidation)
	ErrMissingPayload       = fmt.Errorf("%w: payload is required", ErrValidation)
	ErrInvalidPayload       = fmt.Errorf("%w: invalid payload", ErrValidation)
)

// Field length bounds shared by several payload variants.
const (
	maxVarcharLen  = 255
	countryCodeLen = 2
	currencyLen    = 3
	minIPLen       = 7 // shortest dotted quad: "1.1.1.1"
	maxIPLen       = 45
)

// IsValidationError reports whether err is a permanent schema failure. Such
// errors never succeed on retry: the bytes themselves are invalid.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Validate checks a decoded event against the envelope and payload contracts.
// Decode calls this on every accepted event; it is exported for callers that
// construct events programmatically.
func Validate(event *Event) error {
	if event == nil {
		return ErrNilEvent
	}

	if event.EventID == uuid.Nil {
		return ErrMissingEventID
	}

	if len(event.UserID) == 0 || len(event.UserID) > maxVarcharLen {
		return ErrInvalidUserID
	}

	if !event.EventType.IsValid() {
		return fmt.Errorf("%w: %q (valid: signup, login, transaction)", ErrInvalidEventType, event.EventType)
	}

	if event.TS.IsZero() {
		return ErrMissingTimestamp
	}

	if event.SchemaVersion < 1 {
		return ErrInvalidSchemaVersion
	}

	return validatePayload(event.EventType, event.Payload)
}

// validatePayload checks the payload variant matches the event type and
// satisfies its field bounds.
func validatePayload(eventType EventType, payload Payload) error {
	if payload == nil {
		return ErrMissingPayload
	}

	switch p := payload.(type) {
	case SignupPayload:
		return validateSignup(p)
	case LoginPayload:
		return validateLogin(p)
	case TransactionPayload:
		return validateTransaction(p)
	default:
		return fmt.Errorf("%w: payload does not match event_type %q", ErrInvalidPayload, eventType)
	}
}

func validateSignup(p SignupPayload) error {
	if len(p.EmailDomain) == 0 || len(p.EmailDomain) > maxVarcharLen {
		return fmt.Errorf("%w: email_domain must be 1..255 characters", ErrInvalidPayload)
	}

	if len(p.Country) != countryCodeLen {
		return fmt.Errorf("%w: country must be a 2-letter code", ErrInvalidPayload)
	}

	if len(p.DeviceID) == 0 || len(p.DeviceID) > maxVarcharLen {
		return fmt.Errorf("%w: device_id must be 1..255 characters", ErrInvalidPayload)
	}

	return nil
}

func validateLogin(p LoginPayload) error {
	if len(p.IP) < minIPLen || len(p.IP) > maxIPLen {
		return fmt.Errorf("%w: ip must be 7..45 characters", ErrInvalidPayload)
	}

	if len(p.DeviceID) == 0 || len(p.DeviceID) > maxVarcharLen {
		return fmt.Errorf("%w: device_id must be 1..255 characters", ErrInvalidPayload)
	}

	return nil
}

func validateTransaction(p TransactionPayload) error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
	}

	if len(p.Currency) != currencyLen {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPayload)
	}

	if len(p.Merchant) == 0 || len(p.Merchant) > maxVarcharLen {
		return fmt.Errorf("%w: merchant must be 1..255 characters", ErrInvalidPayload)
	}

	if len(p.Country) != countryCodeLen {
		return fmt.Errorf("%w: country must be a 2-letter code", ErrInvalidPayload)
	}

	return nil
}

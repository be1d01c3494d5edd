package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// envelope is the wire representation of an Event. The payload stays raw
// until the event type is known, then decodes into the matching variant.
type envelope struct {
	EventID       string          `json:"event_id"`
	UserID        string          `json:"user_id"`
	EventType     string          `json:"event_type"`
	TS            string          `json:"ts"`
	SchemaVersion *int            `json:"schema_version,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// wirePayload mirrors the typed payload variants for encoding.
type wireEvent struct {
	EventID       string  `json:"event_id"`
	UserID        string  `json:"user_id"`
	EventType     string  `json:"event_type"`
	TS            string  `json:"ts"`
	SchemaVersion int     `json:"schema_version"`
	Payload       Payload `json:"payload"`
}

// Decode parses and validates a JSON event envelope. Unknown fields are
// rejected at both the envelope and payload level. Timestamps accept any
// ISO-8601 offset and are normalized to UTC.
//
// All failures satisfy IsValidationError, so consumers can treat them as
// permanently invalid input.
func Decode(data []byte) (*Event, error) {
	var env envelope

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&env); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, err.Error())
		}

		return nil, fmt.Errorf("%w: %s", ErrMalformedJSON, err.Error())
	}

	// Trailing garbage after the envelope object is malformed input too.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after event object", ErrMalformedJSON)
	}

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		if env.EventID == "" {
			return nil, ErrMissingEventID
		}

		return nil, fmt.Errorf("%w: %q", ErrInvalidEventID, env.EventID)
	}

	ts, err := parseTimestamp(env.TS)
	if err != nil {
		return nil, err
	}

	schemaVersion := DefaultSchemaVersion
	if env.SchemaVersion != nil {
		schemaVersion = *env.SchemaVersion
	}

	payload, err := decodePayload(EventType(env.EventType), env.Payload)
	if err != nil {
		return nil, err
	}

	event := &Event{
		EventID:       eventID,
		UserID:        env.UserID,
		EventType:     EventType(env.EventType),
		TS:            ts,
		SchemaVersion: schemaVersion,
		Payload:       payload,
	}

	if err := Validate(event); err != nil {
		return nil, err
	}

	return event, nil
}

// Encode serializes an event to its wire form with the timestamp rendered as
// RFC 3339 UTC. The result round-trips through Decode.
func Encode(event *Event) ([]byte, error) {
	if event == nil {
		return nil, ErrNilEvent
	}

	data, err := json.Marshal(wireEvent{
		EventID:       event.EventID.String(),
		UserID:        event.UserID,
		EventType:     string(event.EventType),
		TS:            event.TS.UTC().Format(time.RFC3339Nano),
		SchemaVersion: event.SchemaVersion,
		Payload:       event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
	}

	return data, nil
}

// PayloadJSON returns the payload serialized on its own, suitable for the
// payload_json column and for canonical hashing.
func PayloadJSON(event *Event) ([]byte, error) {
	if event == nil || event.Payload == nil {
		return nil, ErrMissingPayload
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for event %s: %w", event.EventID, err)
	}

	return data, nil
}

// decodePayload dispatches the raw payload bytes to the variant selected by
// the event type, rejecting unknown fields inside the payload object.
func decodePayload(eventType EventType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrMissingPayload
	}

	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: %q (valid: signup, login, transaction)", ErrInvalidEventType, eventType)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var (
		payload Payload
		err     error
	)

	switch eventType {
	case EventTypeSignup:
		var p SignupPayload
		err = dec.Decode(&p)
		payload = p
	case EventTypeLogin:
		// success decodes through a pointer so a missing field is
		// distinguishable from an explicit false.
		var p struct {
			IP       string `json:"ip"`
			Success  *bool  `json:"success"`
			DeviceID string `json:"device_id"`
		}

		err = dec.Decode(&p)
		if err == nil && p.Success == nil {
			return nil, fmt.Errorf("%w: success is required", ErrInvalidPayload)
		}

		if err == nil {
			payload = LoginPayload{IP: p.IP, Success: *p.Success, DeviceID: p.DeviceID}
		}
	case EventTypeTransaction:
		var p TransactionPayload
		err = dec.Decode(&p)
		payload = p
	}

	if err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, err.Error())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}

	return payload, nil
}

// parseTimestamp accepts RFC 3339 timestamps with "Z" or a numeric offset and
// normalizes the result to UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrMissingTimestamp
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}

	return ts.UTC(), nil
}

package schema

import (
	"errors"
	"testing"
	"time"
)

const validTransaction = `{
	"event_id": "550e8400-e29b-41d4-a716-446655440000",
	"user_id": "user-42",
	"event_type": "transaction",
	"ts": "2024-01-15T12:00:00Z",
	"schema_version": 1,
	"payload": {"amount": 99.95, "currency": "USD", "merchant": "acme", "country": "US"}
}`

func TestDecode_ValidTransaction(t *testing.T) {
	event, err := Decode([]byte(validTransaction))
	if err != nil {
		t.Fatalf("Decode() failed for valid transaction: %v", err)
	}

	if event.EventID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("EventID = %s, want 550e8400-e29b-41d4-a716-446655440000", event.EventID)
	}

	if event.EventType != EventTypeTransaction {
		t.Errorf("EventType = %s, want transaction", event.EventType)
	}

	payload, ok := event.Payload.(TransactionPayload)
	if !ok {
		t.Fatalf("Payload type = %T, want TransactionPayload", event.Payload)
	}

	if payload.Amount != 99.95 {
		t.Errorf("Amount = %v, want 99.95", payload.Amount)
	}
}

func TestDecode_NormalizesOffsetToUTC(t *testing.T) {
	raw := `{
		"event_id": "550e8400-e29b-41d4-a716-446655440001",
		"user_id": "user-1",
		"event_type": "login",
		"ts": "2024-01-15T14:00:00+02:00",
		"payload": {"ip": "10.0.0.1", "success": true, "device_id": "dev-1"}
	}`

	event, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	want := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if !event.TS.Equal(want) {
		t.Errorf("TS = %v, want %v", event.TS, want)
	}

	if event.TS.Location() != time.UTC {
		t.Errorf("TS location = %v, want UTC", event.TS.Location())
	}

	if event.SchemaVersion != DefaultSchemaVersion {
		t.Errorf("SchemaVersion = %d, want default %d", event.SchemaVersion, DefaultSchemaVersion)
	}
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "malformed JSON",
			raw:     `{"event_id": `,
			wantErr: ErrMalformedJSON,
		},
		{
			name: "unknown envelope field",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z", "surprise": 1,
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrUnknownField,
		},
		{
			name: "unknown payload field",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z",
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d", "extra": true}}`,
			wantErr: ErrUnknownField,
		},
		{
			name: "invalid event id",
			raw: `{"event_id": "not-a-uuid", "user_id": "u", "event_type": "signup",
				"ts": "2024-01-15T12:00:00Z",
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrInvalidEventID,
		},
		{
			name: "missing event id",
			raw: `{"user_id": "u", "event_type": "signup", "ts": "2024-01-15T12:00:00Z",
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrMissingEventID,
		},
		{
			name: "unknown event type",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "refund", "ts": "2024-01-15T12:00:00Z", "payload": {}}`,
			wantErr: ErrInvalidEventType,
		},
		{
			name: "invalid timestamp",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "January 15",
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrInvalidTimestamp,
		},
		{
			name: "missing payload",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z"}`,
			wantErr: ErrMissingPayload,
		},
		{
			name: "login missing success",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "login", "ts": "2024-01-15T12:00:00Z",
				"payload": {"ip": "10.0.0.1", "device_id": "d"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "transaction zero amount",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "transaction", "ts": "2024-01-15T12:00:00Z",
				"payload": {"amount": 0, "currency": "USD", "merchant": "m", "country": "US"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "transaction bad currency",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "transaction", "ts": "2024-01-15T12:00:00Z",
				"payload": {"amount": 5, "currency": "US", "merchant": "m", "country": "US"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "signup bad country",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z",
				"payload": {"email_domain": "example.com", "country": "USA", "device_id": "d"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "empty user id",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z",
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrInvalidUserID,
		},
		{
			name: "schema_version zero",
			raw: `{"event_id": "550e8400-e29b-41d4-a716-446655440000", "user_id": "u",
				"event_type": "signup", "ts": "2024-01-15T12:00:00Z", "schema_version": 0,
				"payload": {"email_domain": "example.com", "country": "US", "device_id": "d"}}`,
			wantErr: ErrInvalidSchemaVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("Decode() succeeded, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}

			if !IsValidationError(err) {
				t.Errorf("IsValidationError(%v) = false, want true", err)
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	original, err := Decode([]byte(validTransaction))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(Encode()) failed: %v", err)
	}

	if decoded.EventID != original.EventID {
		t.Errorf("EventID = %s, want %s", decoded.EventID, original.EventID)
	}

	if !decoded.TS.Equal(original.TS) {
		t.Errorf("TS = %v, want %v", decoded.TS, original.TS)
	}

	if decoded.Payload != original.Payload {
		t.Errorf("Payload = %+v, want %+v", decoded.Payload, original.Payload)
	}
}

package schema

import (
	"testing"
)

func TestCanonicalJSON_KeyOrderInsensitive(t *testing.T) {
	a := []byte(`{"b": 1, "a": {"y": true, "x": "v"}}`)
	b := []byte(`{"a": {"x": "v", "y": true}, "b": 1}`)

	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON(a) failed: %v", err)
	}

	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("CanonicalJSON(b) failed: %v", err)
	}

	if string(ca) != string(cb) {
		t.Errorf("canonical forms differ: %s vs %s", ca, cb)
	}

	want := `{"a":{"x":"v","y":true},"b":1}`
	if string(ca) != want {
		t.Errorf("CanonicalJSON = %s, want %s", ca, want)
	}
}

func TestCanonicalJSON_PreservesNumberLiterals(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{"amount": 10.50}`))
	if err != nil {
		t.Fatalf("CanonicalJSON() failed: %v", err)
	}

	want := `{"amount":10.50}`
	if string(got) != want {
		t.Errorf("CanonicalJSON = %s, want %s", got, want)
	}
}

func TestPayloadHash(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		wantSame bool
	}{
		{
			name:     "identical documents",
			a:        `{"amount": 5, "currency": "USD"}`,
			b:        `{"amount": 5, "currency": "USD"}`,
			wantSame: true,
		},
		{
			name:     "reordered keys hash identically",
			a:        `{"amount": 5, "currency": "USD"}`,
			b:        `{"currency": "USD", "amount": 5}`,
			wantSame: true,
		},
		{
			name:     "different values hash differently",
			a:        `{"amount": 5}`,
			b:        `{"amount": 6}`,
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha, err := PayloadHash([]byte(tt.a))
			if err != nil {
				t.Fatalf("PayloadHash(a) failed: %v", err)
			}

			hb, err := PayloadHash([]byte(tt.b))
			if err != nil {
				t.Fatalf("PayloadHash(b) failed: %v", err)
			}

			if len(ha) != 64 {
				t.Errorf("hash length = %d, want 64 hex chars", len(ha))
			}

			if (ha == hb) != tt.wantSame {
				t.Errorf("hash equality = %v, want %v (a=%s b=%s)", ha == hb, tt.wantSame, ha, hb)
			}
		})
	}
}

func TestPayloadHash_InvalidJSON(t *testing.T) {
	if _, err := PayloadHash([]byte(`{`)); err == nil {
		t.Error("PayloadHash() succeeded on invalid JSON, want error")
	}
}

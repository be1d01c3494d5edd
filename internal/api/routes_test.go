package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestHandlePing(t *testing.T) {
	mux := newTestServer(&fakeStore{}, nil)

	rec := getPath(mux, "/ping")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	if rec.Body.String() != "pong" {
		t.Errorf("expected body pong, got %s", rec.Body.String())
	}
}

func TestHandleReady_Healthy(t *testing.T) {
	mux := newTestServer(&fakeStore{}, nil)

	rec := getPath(mux, "/ready")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	if rec.Body.String() != "ready" {
		t.Errorf("expected body ready, got %s", rec.Body.String())
	}
}

func TestHandleReady_StorageUnavailable(t *testing.T) {
	store := &fakeStore{healthErr: fmt.Errorf("connection refused")}
	mux := newTestServer(store, nil)

	rec := getPath(mux, "/ready")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != contentTypeProblemJSON {
		t.Errorf("expected problem+json content type, got %s", ct)
	}
}

func TestHandleHealth(t *testing.T) {
	mux := newTestServer(&fakeStore{}, nil)

	rec := getPath(mux, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if status.Status != "healthy" {
		t.Errorf("expected status healthy, got %s", status.Status)
	}

	if status.ServiceName != serviceName {
		t.Errorf("expected service name %s, got %s", serviceName, status.ServiceName)
	}

	if status.Checks["database"] != "ok" {
		t.Errorf("expected database check ok, got %s", status.Checks["database"])
	}

	// No producer wired in the test server.
	if status.Checks["stream"] != "disabled" {
		t.Errorf("expected stream check disabled, got %s", status.Checks["stream"])
	}
}

func TestHandleHealth_DatabaseUnavailable(t *testing.T) {
	store := &fakeStore{healthErr: fmt.Errorf("connection refused")}
	mux := newTestServer(store, nil)

	rec := getPath(mux, "/health")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if status.Status != "degraded" {
		t.Errorf("expected status degraded, got %s", status.Status)
	}

	if status.Checks["database"] != "unavailable" {
		t.Errorf("expected database check unavailable, got %s", status.Checks["database"])
	}
}

func TestHandleNotFound(t *testing.T) {
	mux := newTestServer(&fakeStore{}, nil)

	rec := getPath(mux, "/no/such/path")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var problem ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode problem: %v", err)
	}

	if problem.Status != http.StatusNotFound {
		t.Errorf("expected problem status 404, got %d", problem.Status)
	}

	if problem.Instance != "/no/such/path" {
		t.Errorf("expected instance /no/such/path, got %s", problem.Instance)
	}
}

func TestHasJSONContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"  application/json", true},
		{"text/plain", false},
		{"application/xml", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := hasJSONContentType(tt.contentType); got != tt.want {
			t.Errorf("hasJSONContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

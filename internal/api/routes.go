package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName    = "riskflow"
	serviceVersion = "v1.0.0"

	healthCheckTimeout     = 2 * time.Second
	contentTypeProblemJSON = "application/problem+json"
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /ping", s.handlePing)     // K8s liveness probe
	mux.HandleFunc("GET /ready", s.handleReady)   // K8s readiness probe
	mux.HandleFunc("GET /health", s.handleHealth) // Basic health check - status, uptime, version

	// Ingest
	mux.HandleFunc("POST /events", s.handleIngestEvent)

	// Score queries
	mux.HandleFunc("GET /score/{user_id}", s.handleGetScore)
	mux.HandleFunc("GET /score/{user_id}/history", s.handleGetScoreHistory)

	// Dead-letter queue inspection
	mux.HandleFunc("GET /dlq", s.handleListDLQ)
	mux.HandleFunc("GET /dlq/{id}", s.handleGetDLQ)

	// Prometheus metrics
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Catch-all handler for 404 responses
	mux.HandleFunc("/", s.handleNotFound)
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response", slog.String("error", err.Error()))
	}
}

// handleReady responds to Kubernetes readiness probes with a storage health
// check.
//
// Response codes:
//   - 200 OK: the database is reachable and ready to accept traffic
//   - 503 Service Unavailable: the database is unhealthy or unreachable
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed", slog.String("error", err.Error()))

		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response", slog.String("error", err.Error()))
	}
}

// handleHealth returns detailed health status information, including the
// state of the dependencies the service needs to make progress. The response
// is 503 when the database is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{
		"database": "ok",
		"stream":   "ok",
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed", slog.String("error", err.Error()))

		checks["database"] = "unavailable"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.producer == nil {
		checks["stream"] = "disabled"
	}

	s.writeJSON(w, r, httpStatus, HealthStatus{
		Status:      status,
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
		Checks:      checks,
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals the payload and writes it with the given status. On
// marshal failure the client gets a 500 problem instead of a half-written
// body.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}

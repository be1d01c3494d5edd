package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/riskflow-io/riskflow/internal/metrics"
)

// RequestMetrics records request latency into the
// http_request_duration_seconds histogram, with path parameters normalized
// so user ids and row ids don't explode label cardinality.
func RequestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				NormalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
			).Observe(time.Since(start).Seconds())
		})
	}
}

// NormalizePath collapses path parameters to {id}: the segment after /score
// or /dlq is caller-supplied, everything else is a fixed route segment.
//
//	/score/user-42          -> /score/{id}
//	/score/user-42/history  -> /score/{id}/history
//	/dlq/17                 -> /dlq/{id}
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")

	for i := 1; i < len(segments); i++ {
		if segments[i-1] == "score" || segments[i-1] == "dlq" {
			if segments[i] != "" {
				segments[i] = "{id}"
			}
		}
	}

	return strings.Join(segments, "/")
}

// Package metrics defines the Prometheus instruments shared by the API and
// the worker. Both binaries build their own registry in main and hand it
// down, so tests can use a fresh registry without global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for event counters.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusInvalid   = "invalid"
	StatusScored    = "scored"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Metrics bundles every instrument the pipeline emits.
type Metrics struct {
	// EventsIngested counts POST /events outcomes by event type and status.
	EventsIngested *prometheus.CounterVec

	// EventsProcessed counts worker outcomes by event type and status.
	EventsProcessed *prometheus.CounterVec

	// ScoringDuration observes scorer latency in seconds.
	ScoringDuration prometheus.Histogram

	// DLQEvents counts dead-lettered events by failure reason.
	DLQEvents *prometheus.CounterVec

	// ConsumerLag reports the reader's lag per topic and group.
	ConsumerLag *prometheus.GaugeVec

	// RetryAttempts counts retries by pipeline stage.
	RetryAttempts *prometheus.CounterVec

	// HTTPRequestDuration observes API latency by method, normalized path,
	// and status code.
	HTTPRequestDuration *prometheus.HistogramVec

	// ActiveModel is a 1-valued gauge labeled with the loaded model version.
	ActiveModel *prometheus.GaugeVec

	// DBQueryDuration observes storage latency per operation.
	DBQueryDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics registers all pipeline instruments on the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Events received on the ingest endpoint, by type and outcome.",
		}, []string{"event_type", "status"}),

		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Events consumed by the worker, by type and outcome.",
		}, []string{"event_type", "status"}),

		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoring_duration_seconds",
			Help:    "Time spent computing features and scoring one event.",
			Buckets: prometheus.DefBuckets,
		}),

		DLQEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dlq_events_total",
			Help: "Events dead-lettered, by failure reason.",
		}, []string{"reason"}),

		ConsumerLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_lag",
			Help: "Messages between the last committed offset and the head of the topic.",
		}, []string{"topic", "group"}),

		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retry attempts, by pipeline stage.",
		}, []string{"stage"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency, with path parameters normalized to {id}.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		ActiveModel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_model_info",
			Help: "Set to 1 for the currently loaded model version.",
		}, []string{"model_version"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Storage query latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Registry returns the registry the instruments are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetActiveModel marks the given model version as the one serving scores.
func (m *Metrics) SetActiveModel(version string) {
	m.ActiveModel.WithLabelValues(version).Set(1)
}

// ObserveQuery implements the storage DurationObserver contract.
func (m *Metrics) ObserveQuery(operation string, seconds float64) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
}

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects pipeline metrics.
//
// The metrics cover:
//   - provider attempts by model and outcome, with latency
//   - backoff waits taken after rate limits
//   - accepted and rejected examples by status and rejection category
//   - build output sizes per split and status
//   - uploads and ledger queries
//
// A nil *Metrics is valid and records nothing.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordAttempt("llama-3.3-70b-versatile", "success", time.Since(start).Seconds())
type Metrics struct {
	// GenerationAttempts counts provider calls.
	// Labels: model, outcome (success|rate_limit|schema|api|unknown)
	GenerationAttempts *prometheus.CounterVec

	// ProviderRequestDuration measures provider call latency in seconds.
	// Labels: model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	ProviderRequestDuration *prometheus.HistogramVec

	// BackoffSeconds observes each rate-limit wait.
	BackoffSeconds prometheus.Histogram

	// ExamplesAccepted counts examples written to the raw file.
	// Labels: status (running|complete)
	ExamplesAccepted *prometheus.CounterVec

	// ExamplesRejected counts validation rejections.
	// Labels: category (structural|quality|domain)
	ExamplesRejected *prometheus.CounterVec

	// ValidationWarnings counts non-fatal validation warnings.
	ValidationWarnings prometheus.Counter

	// Batches counts generation batches.
	// Labels: outcome (accepted|empty)
	Batches *prometheus.CounterVec

	// BuildExamples reports the size of the last build.
	// Labels: split (train|test), status
	BuildExamples *prometheus.GaugeVec

	// Uploads counts published files.
	// Labels: store, status (success|error)
	Uploads *prometheus.CounterVec

	// DatabaseQueryDuration measures ledger query latency.
	// Labels: operation, table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts ledger queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		GenerationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_generation_attempts_total",
				Help: "Total number of provider attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routergen_provider_request_duration_seconds",
				Help:    "Duration of provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		BackoffSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "routergen_backoff_seconds",
				Help:    "Rate-limit backoff waits in seconds",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),

		ExamplesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_examples_accepted_total",
				Help: "Total number of examples accepted by status",
			},
			[]string{"status"},
		),

		ExamplesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_examples_rejected_total",
				Help: "Total number of examples rejected by validation category",
			},
			[]string{"category"},
		),

		ValidationWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "routergen_validation_warnings_total",
				Help: "Total number of validation warnings",
			},
		),

		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_batches_total",
				Help: "Total number of generation batches by outcome",
			},
			[]string{"outcome"},
		),

		BuildExamples: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "routergen_build_examples",
				Help: "Examples written by the last build per split and status",
			},
			[]string{"split", "status"},
		),

		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_uploads_total",
				Help: "Total number of published files by store and status",
			},
			[]string{"store", "status"},
		),

		DatabaseQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routergen_database_query_duration_seconds",
				Help:    "Duration of ledger queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routergen_database_queries_total",
				Help: "Total number of ledger queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordAttempt records one provider call.
func (m *Metrics) RecordAttempt(model, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.GenerationAttempts.WithLabelValues(model, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordBackoff records a rate-limit wait.
func (m *Metrics) RecordBackoff(seconds float64) {
	if m == nil {
		return
	}
	m.BackoffSeconds.Observe(seconds)
}

// RecordAccepted adds n accepted examples with the given status.
func (m *Metrics) RecordAccepted(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExamplesAccepted.WithLabelValues(status).Add(float64(n))
}

// RecordRejected adds n rejections in category.
func (m *Metrics) RecordRejected(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExamplesRejected.WithLabelValues(category).Add(float64(n))
}

// RecordWarnings adds n validation warnings.
func (m *Metrics) RecordWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ValidationWarnings.Add(float64(n))
}

// RecordBatch counts one batch; accepted reports whether it kept any example.
func (m *Metrics) RecordBatch(accepted bool) {
	if m == nil {
		return
	}
	outcome := "empty"
	if accepted {
		outcome = "accepted"
	}
	m.Batches.WithLabelValues(outcome).Inc()
}

// RecordBuild sets the size of one split and status.
func (m *Metrics) RecordBuild(split, status string, n int) {
	if m == nil {
		return
	}
	m.BuildExamples.WithLabelValues(split, status).Set(float64(n))
}

// RecordUpload counts one published file.
func (m *Metrics) RecordUpload(store, status string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(store, status).Inc()
}

// RecordDatabaseQuery records metrics for a ledger query.
//
// Example:
//
//	start := time.Now()
//	// ... execute database query ...
//	metrics.RecordDatabaseQuery("insert", "batches", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}

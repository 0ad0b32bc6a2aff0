package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "subtracker"

// Metrics holds the Prometheus collectors of the tracker. It implements
// core.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ClassificationsTotal *prometheus.CounterVec
	LedgerMutationsTotal *prometheus.CounterVec
	FailuresTotal        *prometheus.CounterVec
	FeedbackProcessed    prometheus.Counter
	BatchDuration        prometheus.Histogram
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ClassificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Emails classified, by classification source and lifecycle event",
			},
			[]string{"source", "event"},
		),

		LedgerMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_mutations_total",
				Help:      "Ledger decisions applied, by operation",
			},
			[]string{"operation"},
		),

		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Per-email failures, by pipeline stage",
			},
			[]string{"stage"},
		),

		FeedbackProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_processed_total",
				Help:      "Feedback records folded into the pattern store",
			},
		),

		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of lifecycle classification batches",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
}

// ObserveClassification counts one classified email
func (m *Metrics) ObserveClassification(source, event string) {
	m.ClassificationsTotal.WithLabelValues(source, event).Inc()
}

// ObserveLedgerMutation counts one applied ledger decision
func (m *Metrics) ObserveLedgerMutation(op string) {
	m.LedgerMutationsTotal.WithLabelValues(op).Inc()
}

// ObserveFailure counts one per-email failure
func (m *Metrics) ObserveFailure(stage string) {
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveFeedback counts processed feedback records
func (m *Metrics) ObserveFeedback(processed int) {
	m.FeedbackProcessed.Add(float64(processed))
}

// ObserveBatch records the duration of a batch
func (m *Metrics) ObserveBatch(d time.Duration) {
	m.BatchDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler serves the registry in the Prometheus exposition format
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

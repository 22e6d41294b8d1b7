package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	PointersCreated          prometheus.Counter
	PointersOrphaned         prometheus.Counter
	OrphanRejected           prometheus.Counter
	Resolutions              *prometheus.CounterVec
	ReceiptsIssued           *prometheus.CounterVec
	ChainVerificationFailure prometheus.Counter
	OrphanCacheHits          prometheus.Counter
	PublishFailures          prometheus.Counter
	CreateDuration           prometheus.Histogram
	ResolveDuration          prometheus.Histogram
	OrphanDuration           prometheus.Histogram
	HTTPRequestDuration      *prometheus.HistogramVec
}

// New creates and registers all metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PointersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_pointers_created_total",
			Help: "Total number of pointers created",
		}),
		PointersOrphaned: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_pointers_orphaned_total",
			Help: "Total number of pointers orphaned",
		}),
		OrphanRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_orphan_rejected_total",
			Help: "Orphan requests rejected because the pointer was already orphaned",
		}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veto_resolutions_total",
			Help: "Resolve attempts by outcome (resolved, denied, not_found, error)",
		}, []string{"outcome"}),
		ReceiptsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veto_receipts_issued_total",
			Help: "Signed receipts appended, by operation",
		}, []string{"operation"}),
		ChainVerificationFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_chain_verification_failures_total",
			Help: "Receipt chains that failed verification",
		}),
		OrphanCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_orphan_cache_hits_total",
			Help: "Resolves denied from the orphan tombstone cache",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "veto_receipt_publish_failures_total",
			Help: "Receipts that could not be published to the receipt stream",
		}),
		CreateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "veto_create_duration_seconds",
			Help:    "Duration of pointer create operations",
			Buckets: durationBuckets,
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "veto_resolve_duration_seconds",
			Help:    "Duration of resolve operations (enforcement critical path)",
			Buckets: durationBuckets,
		}),
		OrphanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "veto_orphan_duration_seconds",
			Help:    "Duration of orphan operations",
			Buckets: durationBuckets,
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veto_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: durationBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncrementPointersCreated() { m.PointersCreated.Inc() }

func (m *Metrics) IncrementPointersOrphaned() { m.PointersOrphaned.Inc() }

func (m *Metrics) IncrementOrphanRejected() { m.OrphanRejected.Inc() }

// IncrementResolution records a resolve outcome.
func (m *Metrics) IncrementResolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementReceiptsIssued(operation string) {
	m.ReceiptsIssued.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementChainVerificationFailures() { m.ChainVerificationFailure.Inc() }

func (m *Metrics) IncrementOrphanCacheHits() { m.OrphanCacheHits.Inc() }

func (m *Metrics) IncrementPublishFailures() { m.PublishFailures.Inc() }

// ObserveCreate records the duration of a create. Call with the start time.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveResolve records the duration of a resolve. Call with the start time.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// ObserveOrphan records the duration of an orphan. Call with the start time.
func (m *Metrics) ObserveOrphan(start time.Time) {
	m.OrphanDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int, start time.Time) {
	m.HTTPRequestDuration.WithLabelValues(route, method, statusLabel(status)).Observe(time.Since(start).Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

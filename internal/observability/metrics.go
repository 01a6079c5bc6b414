package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "answer_engine"

// Metrics holds the Prometheus collectors for query resolution.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	resolutions        *prometheus.CounterVec
	tierFailures       *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	evidenceRejections prometheus.Counter
	resolveDuration    *prometheus.HistogramVec
	reindexQueue       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resolutions_total",
			Help:      "Resolved queries by terminal source and groundedness.",
		}, []string{"source", "groundedness"}),
		tierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tier_failures_total",
			Help:      "Tier failures absorbed as fall-through.",
		}, []string{"tier"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Similarity cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		evidenceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evidence_rejections_total",
			Help:      "Classifier quotes rejected because they were not verbatim in context.",
		}),
		resolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end resolution latency.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		reindexQueue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reindex_jobs_total",
			Help:      "Background reindex jobs by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.resolutions, m.tierFailures, m.cacheLookups,
		m.evidenceRejections, m.resolveDuration, m.reindexQueue,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordResolution records a terminal resolution and its latency.
func (m *Metrics) RecordResolution(source, groundedness string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(source, groundedness).Inc()
	m.resolveDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordTierFailure records a swallowed tier failure.
func (m *Metrics) RecordTierFailure(tier string) {
	if m == nil {
		return
	}
	m.tierFailures.WithLabelValues(tier).Inc()
}

// RecordCacheLookup records an exact or fuzzy cache lookup.
func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordEvidenceRejection counts a downgraded classifier verdict.
func (m *Metrics) RecordEvidenceRejection() {
	if m == nil {
		return
	}
	m.evidenceRejections.Inc()
}

// RecordReindex counts a background reindex job outcome (queued, dropped, indexed, failed).
func (m *Metrics) RecordReindex(result string) {
	if m == nil {
		return
	}
	m.reindexQueue.WithLabelValues(result).Inc()
}

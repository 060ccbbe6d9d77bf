package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PropagationMetrics instruments the upload pipeline and fetch surface.
//
// A nil *PropagationMetrics is valid and records nothing, so callers never
// need to branch on whether metrics are enabled.
type PropagationMetrics struct {
	sessionsActive   prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sessionsExpired  prometheus.Counter
	uploadsCommitted prometheus.Counter
	uploadsAborted   prometheus.Counter
	bytesIngested    prometheus.Counter
	bytesServed      prometheus.Counter
	noncesIssued     prometheus.Counter
	nonceFailures    prometheus.Counter
	putDuration      prometheus.Histogram
}

// NewPropagationMetrics creates the upload/fetch collectors, or nil when
// metrics are disabled.
func NewPropagationMetrics() *PropagationMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &PropagationMetrics{
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "propagation_sessions_active",
			Help: "Number of upload sessions currently open",
		}),
		sessionsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_sessions_started_total",
			Help: "Total upload sessions opened",
		}),
		sessionsExpired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_sessions_expired_total",
			Help: "Total upload sessions destroyed by inactivity timeout",
		}),
		uploadsCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_commits_total",
			Help: "Total sessions committed into the canonical store",
		}),
		uploadsAborted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_aborts_total",
			Help: "Total sessions explicitly aborted",
		}),
		bytesIngested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_upload_bytes_total",
			Help: "Total uncompressed bytes accepted through PUT",
		}),
		bytesServed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_fetch_bytes_total",
			Help: "Total bytes served through the fetch surface",
		}),
		noncesIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_nonces_issued_total",
			Help: "Total upload nonces issued",
		}),
		nonceFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propagation_nonce_failures_total",
			Help: "Total nonce validations that failed (expired, replayed, or wrong)",
		}),
		putDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "propagation_put_duration_seconds",
			Help:    "Wall time of file PUT requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// SessionStarted records a new session.
func (m *PropagationMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

// SessionEnded records the end of a session, whichever way it ended.
func (m *PropagationMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// SessionExpired records a timeout teardown.
func (m *PropagationMetrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}

// CommitRecorded records a successful commit.
func (m *PropagationMetrics) CommitRecorded() {
	if m == nil {
		return
	}
	m.uploadsCommitted.Inc()
}

// AbortRecorded records an explicit abort.
func (m *PropagationMetrics) AbortRecorded() {
	if m == nil {
		return
	}
	m.uploadsAborted.Inc()
}

// BytesIngested adds to the uploaded byte counter.
func (m *PropagationMetrics) BytesIngested(n int64) {
	if m == nil {
		return
	}
	m.bytesIngested.Add(float64(n))
}

// BytesServed adds to the fetch byte counter.
func (m *PropagationMetrics) BytesServed(n int64) {
	if m == nil {
		return
	}
	m.bytesServed.Add(float64(n))
}

// NonceIssued records a nonce issue.
func (m *PropagationMetrics) NonceIssued() {
	if m == nil {
		return
	}
	m.noncesIssued.Inc()
}

// NonceFailed records a failed nonce validation.
func (m *PropagationMetrics) NonceFailed() {
	if m == nil {
		return
	}
	m.nonceFailures.Inc()
}

// ObservePutDuration records the wall time of one PUT.
func (m *PropagationMetrics) ObservePutDuration(seconds float64) {
	if m == nil {
		return
	}
	m.putDuration.Observe(seconds)
}

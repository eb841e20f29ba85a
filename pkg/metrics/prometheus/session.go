package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reloadsync/reloadsync/pkg/metrics"
)

func init() {
	metrics.RegisterSessionMetricsConstructor(func() metrics.SessionMetrics {
		return newSessionMetrics()
	})
}

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	connects          *prometheus.CounterVec
	disconnects       prometheus.Counter
	activeSessions    prometheus.Gauge
	activeConnections prometheus.Gauge
	applyDuration     *prometheus.HistogramVec
	applyOutcomes     *prometheus.CounterVec
	evictions         prometheus.Counter
}

func newSessionMetrics() *sessionMetrics {
	reg := metrics.GetRegistry()

	return &sessionMetrics{
		connects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reloadsync_session_connects_total",
				Help: "Total number of device connections accepted, split by fresh session vs. reconnect",
			},
			[]string{"kind"}, // "fresh", "reconnect"
		),
		disconnects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "reloadsync_session_disconnects_total",
				Help: "Total number of device connections that ended",
			},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "reloadsync_active_sessions",
				Help: "Current number of live sessions",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "reloadsync_active_connections",
				Help: "Current number of live member connections across all sessions",
			},
		),
		applyDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "reloadsync_apply_duration_milliseconds",
				Help: "Device-reported time to apply an update, mirrored from inbound Acks",
				Buckets: []float64{
					1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000,
				},
			},
			[]string{"kind"}, // "full", "delta"
		),
		applyOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reloadsync_apply_outcomes_total",
				Help: "Total number of device-reported update applications by kind and outcome",
			},
			[]string{"kind", "outcome"}, // outcome: "success", "failure"
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "reloadsync_session_evictions_total",
				Help: "Total number of sessions removed by idle-TTL eviction",
			},
		),
	}
}

func (m *sessionMetrics) RecordConnect(reconnect bool) {
	if m == nil {
		return
	}
	kind := "fresh"
	if reconnect {
		kind = "reconnect"
	}
	m.connects.WithLabelValues(kind).Inc()
}

func (m *sessionMetrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

func (m *sessionMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *sessionMetrics) SetActiveConnections(count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *sessionMetrics) ObserveApply(kind string, applyTimeMs int64, success bool) {
	if m == nil {
		return
	}
	m.applyDuration.WithLabelValues(kind).Observe(float64(applyTimeMs))
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.applyOutcomes.WithLabelValues(kind, outcome).Inc()
}

func (m *sessionMetrics) RecordEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

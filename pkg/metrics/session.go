package metrics

// SessionMetrics observes the lifecycle of sessions and connections
// tracked by the session Registry. Implementations are optional — pass
// nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	sessionMetrics := metrics.NewSessionMetrics()
//	registry := server.NewRegistryWithMetrics(idleTTL, capacity, sessionMetrics, log)
//
//	// Without metrics (zero overhead)
//	registry := server.NewRegistryWithMetrics(idleTTL, capacity, nil, log)
type SessionMetrics interface {
	// RecordConnect counts a device establishing (or re-establishing) a
	// connection to a session, distinguishing a fresh session from a
	// reconnect into an existing one.
	RecordConnect(reconnect bool)

	// RecordDisconnect counts a device connection ending.
	RecordDisconnect()

	// SetActiveSessions updates the current number of live sessions.
	SetActiveSessions(count int)

	// SetActiveConnections updates the current number of live member
	// connections across all sessions.
	SetActiveConnections(count int)

	// ObserveApply records a device-reported update application,
	// mirrored from an inbound Ack: the update kind ("full" or
	// "delta"), how long the device took to apply it, and whether it
	// succeeded.
	ObserveApply(kind string, applyTimeMs int64, success bool)

	// RecordEviction counts a session removed by idle-TTL eviction.
	RecordEviction()
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the session
// Registry, which results in zero overhead.
func NewSessionMetrics() SessionMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusSessionMetrics()
}

// newPrometheusSessionMetrics is implemented in
// pkg/metrics/prometheus/session.go. This indirection avoids an import
// cycle (prometheus depends on this package for the interface) while
// keeping the constructor here as the public API.
var newPrometheusSessionMetrics func() SessionMetrics

// RegisterSessionMetricsConstructor registers the Prometheus session
// metrics constructor. Called by pkg/metrics/prometheus/session.go
// during package initialization.
func RegisterSessionMetricsConstructor(constructor func() SessionMetrics) {
	newPrometheusSessionMetrics = constructor
}

// Package metrics defines the Prometheus metrics surface for the
// hot-reload session server: apply-time histograms, ack/reconnect
// counters, and a gauge of live connections. The concrete Prometheus
// implementation lives in pkg/metrics/prometheus, selected behind the
// SessionMetrics interface so session/server never imports prometheus
// directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry creates and installs the process-wide Prometheus
// registry. Call once at startup before constructing any metrics
// collectors; IsEnabled returns true only after this has run.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

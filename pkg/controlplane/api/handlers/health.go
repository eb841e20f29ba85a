package handlers

import (
	"net/http"
	"time"

	sessionserver "github.com/reloadsync/reloadsync/pkg/session/server"
)

// HealthHandler handles the admin API's unauthenticated liveness and
// readiness probes.
type HealthHandler struct {
	registry  *sessionserver.Registry
	startTime time.Time
}

// NewHealthHandler creates a health handler backed by registry.
func NewHealthHandler(registry *sessionserver.Registry) *HealthHandler {
	return &HealthHandler{registry: registry, startTime: time.Now()}
}

// Liveness handles GET /health. It always succeeds once the process is
// serving HTTP requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "reloadsyncd",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready. It reports unhealthy only if the
// registry was never wired up, which should not happen outside of tests.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("session registry not initialized"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"sessions": len(h.registry.Sessions()),
	}))
}

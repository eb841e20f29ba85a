package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/pipeline"
	sessionserver "github.com/reloadsync/reloadsync/pkg/session/server"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// SessionsHandler exposes the session Registry over the admin REST API:
// listing active sessions, inspecting their live connections, forcing a
// Reload, and reading the mirrored Ack metrics.
type SessionsHandler struct {
	registry *sessionserver.Registry
	log      *logger.Logger
}

// NewSessionsHandler creates a SessionsHandler backed by registry.
func NewSessionsHandler(registry *sessionserver.Registry, log *logger.Logger) *SessionsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &SessionsHandler{registry: registry, log: log}
}

// SessionSummary is the admin-facing view of one Session.
type SessionSummary struct {
	ID            string `json:"id"`
	MemberCount   int    `json:"memberCount"`
	LastSequence  int64  `json:"lastSequence"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
}

// ConnectionSummary is the admin-facing view of one Member of a Session.
type ConnectionSummary struct {
	ConnectionID string    `json:"connectionId"`
	DeviceID     string    `json:"deviceId,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt,omitempty"`
	LastPingAt   time.Time `json:"lastPingAt,omitempty"`
}

func summarize(s *sessionserver.Session) SessionSummary {
	summary := SessionSummary{
		ID:           s.ID,
		MemberCount:  s.MemberCount(),
		LastSequence: s.LastSequence(),
	}
	if sc := s.Schema(); sc != nil {
		summary.SchemaVersion = sc.Metadata.Version
	}
	return summary
}

// List handles GET /api/v1/sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Sessions()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summarize(s))
	}
	WriteJSONOK(w, out)
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		NotFound(w, "session not found")
		return
	}
	WriteJSONOK(w, summarize(s))
}

// Connections handles GET /api/v1/sessions/{id}/connections.
func (h *SessionsHandler) Connections(w http.ResponseWriter, r *http.Request) {
	s, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		NotFound(w, "session not found")
		return
	}

	members := s.Members()
	out := make([]ConnectionSummary, 0, len(members))
	for _, m := range members {
		summary := ConnectionSummary{ConnectionID: m.ConnectionID()}
		if health, ok := m.(sessionserver.ConnectionHealth); ok {
			summary.DeviceID = health.DeviceID()
			summary.Platform = health.Platform()
			summary.ConnectedAt = health.ConnectedAt()
			summary.LastPingAt = health.LastPingAt()
		}
		out = append(out, summary)
	}
	WriteJSONOK(w, out)
}

// Metrics handles GET /api/v1/sessions/{id}/metrics, returning the
// session's mirrored ring of device-reported apply outcomes.
func (h *SessionsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	s, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		NotFound(w, "session not found")
		return
	}
	if s.Metrics == nil {
		WriteJSONOK(w, []pipeline.ApplyMetric{})
		return
	}
	WriteJSONOK(w, s.Metrics.Snapshot())
}

// ForceReload handles POST /api/v1/sessions/{id}/reload: broadcasts a
// Reload message to every connected member, asking each device to
// discard its current schema and re-request a Full update.
func (h *SessionsHandler) ForceReload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	s, ok := h.registry.Get(sessionID)
	if !ok {
		NotFound(w, "session not found")
		return
	}

	msg := wire.Reload{
		Envelope: wire.Envelope{
			Type:      wire.TypeReload,
			SessionID: sessionID,
			Timestamp: time.Now().UnixMilli(),
			Version:   wire.ProtocolVersion,
		},
		Reason: wire.ReloadReasonManual,
	}
	s.Broadcast(msg, "", h.log)

	WriteNoContent(w)
}

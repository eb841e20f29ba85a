package apiclient

import "time"

// SessionSummary mirrors the admin API's view of one session.
type SessionSummary struct {
	ID            string `json:"id"`
	MemberCount   int    `json:"memberCount"`
	LastSequence  int64  `json:"lastSequence"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
}

// ConnectionSummary mirrors the admin API's view of one member connection.
type ConnectionSummary struct {
	ConnectionID string    `json:"connectionId"`
	DeviceID     string    `json:"deviceId,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt,omitempty"`
	LastPingAt   time.Time `json:"lastPingAt,omitempty"`
}

// ApplyMetric mirrors one entry of a session's device-reported apply
// history, as returned by GET /api/v1/sessions/{id}/metrics.
type ApplyMetric struct {
	Sequence    int64  `json:"sequence"`
	Type        string `json:"type"`
	ApplyTimeMs int64  `json:"applyTimeMs"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// ListSessions returns every active session.
func (c *Client) ListSessions() ([]SessionSummary, error) {
	return listResources[SessionSummary](c, "/api/v1/sessions")
}

// GetSession returns one session by id.
func (c *Client) GetSession(id string) (*SessionSummary, error) {
	return getResource[SessionSummary](c, resourcePath("/api/v1/sessions/%s", id))
}

// SessionConnections returns the live member connections for a session.
func (c *Client) SessionConnections(id string) ([]ConnectionSummary, error) {
	return listResources[ConnectionSummary](c, resourcePath("/api/v1/sessions/%s/connections", id))
}

// SessionMetrics returns the mirrored ApplyMetric ring for a session.
func (c *Client) SessionMetrics(id string) ([]ApplyMetric, error) {
	return listResources[ApplyMetric](c, resourcePath("/api/v1/sessions/%s/metrics", id))
}

// ForceReload asks every connected member of a session to discard its
// current schema and re-request a Full update.
func (c *Client) ForceReload(id string) error {
	return c.post(resourcePath("/api/v1/sessions/%s/reload", id), nil, nil)
}

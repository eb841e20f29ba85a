// Package server implements the server-side Session Registry: session
// creation and authenticated join, connection membership, broadcast,
// per-session sequence assignment, and idle-TTL eviction.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/metrics"
	"github.com/reloadsync/reloadsync/pkg/pipeline"
	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/reloadsync/reloadsync/pkg/store"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// schemaSizeWarnBytes is the serialized schema size above which SetSchema
// logs a warning: a Full update this large costs every connected device a
// slow parse and a full tree diff on the next Delta, even though nothing
// here enforces a hard limit.
const schemaSizeWarnBytes = 2 << 20 // 2 MiB

// ErrTokenMismatch is returned by Join when the presented token does not
// match the session's token.
var ErrTokenMismatch = errors.New("session: token mismatch")

// ErrSessionNotFound is returned when a lookup or join targets a session
// id the Registry has never created.
var ErrSessionNotFound = errors.New("session: not found")

// DefaultIdleTTL is the default duration a Session may sit with no
// member connections before Registry eviction reclaims it.
const DefaultIdleTTL = 8 * time.Hour

// Member is the server's view of one live connection belonging to a
// Session: enough to push messages and identify it in logs, without the
// registry depending on the transport's websocket details.
type Member interface {
	ConnectionID() string
	Send(msg wire.Message) error
}

// ConnectionHealth is implemented by Member values that can report
// liveness details for the admin surface's connection listing. Not every
// Member needs it (test doubles may skip it); the admin handler degrades
// to the bare Member fields when a member does not implement it.
type ConnectionHealth interface {
	DeviceID() string
	Platform() string
	ConnectedAt() time.Time
	LastPingAt() time.Time
}

// Session is a logical bearer of identity (sessionId + token) grouping
// one or more device connections to a single schema timeline.
type Session struct {
	ID    string
	Token string

	// Metrics mirrors device-reported apply outcomes (from inbound Acks)
	// for the admin surface's GET /sessions/{id}/metrics endpoint. It is
	// independent of any device-local pipeline.MetricRing.
	Metrics *pipeline.MetricRing

	mu              sync.Mutex
	currentSchema   *schema.Schema
	lastSequence    int64
	members         map[string]Member
	lastActivity    time.Time
	metricsCapacity int
	metrics         metrics.SessionMetrics
	persister       store.Store
	log             *logger.Logger
}

// Schema returns the session's current schema, or nil if none has been
// set yet.
func (s *Session) Schema() *schema.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSchema
}

// SetSchema replaces the session's current schema, e.g. after a Full
// update is accepted, and best-effort persists it as the session's
// last-known-good state so a server restart does not force every
// connected device through a cold Full resync.
func (s *Session) SetSchema(sc *schema.Schema) {
	s.mu.Lock()
	s.currentSchema = sc
	s.mu.Unlock()
	s.persist()
}

// persist writes the session's current schema and sequence to the
// configured store, if any. Persistence is best-effort: a failure is
// logged, not returned, since the in-memory Session remains the source
// of truth for the life of the process.
func (s *Session) persist() {
	s.mu.Lock()
	persister := s.persister
	sc := s.currentSchema
	rec := store.SessionRecord{
		ID:           s.ID,
		Token:        s.Token,
		LastSequence: s.lastSequence,
	}
	s.mu.Unlock()

	if sc == nil {
		return
	}

	rec.SchemaVersion = sc.Version
	schemaJSON, err := json.Marshal(sc)
	if err != nil {
		s.log.Warn("session: marshal schema failed",
			"sessionId", s.ID, "error", err.Error())
		return
	}

	if len(schemaJSON) > schemaSizeWarnBytes {
		s.log.Warn("session: schema payload is large, expect a slow Full apply on every connected device",
			"sessionId", s.ID, "size", humanize.Bytes(uint64(len(schemaJSON))))
	}

	if persister == nil {
		return
	}
	rec.SchemaJSON = schemaJSON

	if err := persister.SaveSession(context.Background(), rec); err != nil {
		s.log.Warn("session: persist session state failed",
			"sessionId", s.ID, "error", err.Error())
	}
}

// NextSequence assigns the next monotonically increasing sequence number
// for an update broadcast within this session. Sequence 0 is reserved
// for the initial schema delivered with Connected.
func (s *Session) NextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSequence++
	return s.lastSequence
}

// LastSequence returns the most recently assigned sequence number.
func (s *Session) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence
}

// addMember registers member and marks the session active.
func (s *Session) addMember(m Member) {
	s.mu.Lock()
	s.members[m.ConnectionID()] = m
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// removeMember drops member by connection id and refreshes the idle
// clock so eviction measures time since the last member left, not time
// since creation.
func (s *Session) removeMember(connectionID string) {
	s.mu.Lock()
	delete(s.members, connectionID)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// MemberCount reports the number of connections currently attached.
func (s *Session) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Members returns a snapshot of currently attached connections, for the
// admin surface's connection-health listing.
func (s *Session) Members() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// RecordAck mirrors an inbound device Ack into the session's metrics
// ring, lazily allocating it on first use.
func (s *Session) RecordAck(ack wire.Ack, kind string, receivedAt time.Time) {
	s.mu.Lock()
	if s.Metrics == nil {
		s.Metrics = pipeline.NewMetricRing(s.metricsCapacity)
	}
	ring := s.Metrics
	s.mu.Unlock()

	m := pipeline.ApplyMetric{
		Sequence:  ack.Sequence,
		Type:      kind,
		Success:   ack.Success,
		Error:     ack.Error,
		Timestamp: receivedAt.UnixMilli(),
	}
	if ack.ApplyTimeMs != nil {
		m.ApplyTimeMs = *ack.ApplyTimeMs
	}
	ring.Record(m)

	if s.metrics != nil {
		s.metrics.ObserveApply(kind, m.ApplyTimeMs, ack.Success)
	}
}

// Broadcast sends msg to every member except the connection id in
// except (pass "" to exclude none), logging and continuing past any
// individual member's send error.
func (s *Session) Broadcast(msg wire.Message, except string, log *logger.Logger) {
	s.mu.Lock()
	members := make([]Member, 0, len(s.members))
	for id, m := range s.members {
		if id == except {
			continue
		}
		members = append(members, m)
	}
	s.mu.Unlock()

	for _, m := range members {
		if err := m.Send(msg); err != nil {
			log.Warn("session: broadcast to member failed",
				"connectionId", m.ConnectionID(), "error", err.Error())
		}
	}
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.members) > 0 {
		return 0
	}
	return time.Since(s.lastActivity)
}

// Registry holds every active Session, keyed by sessionId. It is safe
// for concurrent use.
type Registry struct {
	mu              sync.RWMutex
	sessions        map[string]*Session
	idleTTL         time.Duration
	metricsCapacity int
	metrics         metrics.SessionMetrics
	persister       store.Store
	log             *logger.Logger
}

// NewRegistry constructs an empty Registry. idleTTL <= 0 uses
// DefaultIdleTTL. metricsCapacity <= 0 uses pipeline.DefaultMetricCapacity.
func NewRegistry(idleTTL time.Duration, log *logger.Logger) *Registry {
	return NewRegistryWithMetricsCapacity(idleTTL, 0, log)
}

// NewRegistryWithMetricsCapacity is NewRegistry with an explicit
// per-session ApplyMetric ring capacity, wired from
// config.SessionConfig.MetricsRingCapacity.
func NewRegistryWithMetricsCapacity(idleTTL time.Duration, metricsCapacity int, log *logger.Logger) *Registry {
	return NewRegistryWithMetrics(idleTTL, metricsCapacity, nil, log)
}

// NewRegistryWithMetrics is NewRegistryWithMetricsCapacity with an
// optional Prometheus SessionMetrics collector. Pass nil to disable
// metrics collection with zero overhead.
func NewRegistryWithMetrics(idleTTL time.Duration, metricsCapacity int, sessionMetrics metrics.SessionMetrics, log *logger.Logger) *Registry {
	return NewRegistryWithStore(idleTTL, metricsCapacity, sessionMetrics, nil, log)
}

// NewRegistryWithStore is NewRegistryWithMetrics with an optional durable
// Store. When set, each session's last-known-good schema and sequence
// survive a server restart: GetOrCreate and Connect rehydrate a session
// from the store on first lookup instead of starting it back at a cold
// Full resync. Pass nil to keep sessions in-memory only, matching the
// Registry's original behavior.
func NewRegistryWithStore(idleTTL time.Duration, metricsCapacity int, sessionMetrics metrics.SessionMetrics, persister store.Store, log *logger.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		sessions:        make(map[string]*Session),
		idleTTL:         idleTTL,
		metricsCapacity: metricsCapacity,
		metrics:         sessionMetrics,
		persister:       persister,
		log:             log,
	}
}

// rehydrate loads a session's last persisted state, if a store is
// configured and it has one on record. A miss or a disabled store both
// return (nil, nil): the caller falls back to creating a fresh Session.
func (r *Registry) rehydrate(sessionID string) (*Session, error) {
	if r.persister == nil {
		return nil, nil
	}
	rec, ok, err := r.persister.LoadSession(context.Background(), sessionID)
	if err != nil {
		r.log.Warn("session: rehydrate from store failed", "sessionId", sessionID, "error", err.Error())
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	s := &Session{
		ID:              rec.ID,
		Token:           rec.Token,
		lastSequence:    rec.LastSequence,
		members:         make(map[string]Member),
		lastActivity:    time.Now(),
		metricsCapacity: r.metricsCapacity,
		metrics:         r.metrics,
		persister:       r.persister,
		log:             r.log,
	}
	if len(rec.SchemaJSON) > 0 {
		var sc schema.Schema
		if err := json.Unmarshal(rec.SchemaJSON, &sc); err != nil {
			r.log.Warn("session: unmarshal persisted schema failed", "sessionId", sessionID, "error", err.Error())
		} else {
			s.currentSchema = &sc
		}
	}
	r.log.Info("session: rehydrated from store", "sessionId", sessionID, "lastSequence", rec.LastSequence)
	return s, nil
}

// GetOrCreate returns the Session for sessionID, creating it with token
// if it does not yet exist. If it does exist, token must match or
// ErrTokenMismatch is returned.
func (r *Registry) GetOrCreate(sessionID, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		if s.Token != token {
			return nil, ErrTokenMismatch
		}
		return s, nil
	}

	s, err := r.rehydrate(sessionID)
	if err != nil {
		return nil, err
	}
	if s != nil && s.Token != token {
		return nil, ErrTokenMismatch
	}
	if s == nil {
		s = &Session{
			ID:              sessionID,
			Token:           token,
			members:         make(map[string]Member),
			lastActivity:    time.Now(),
			metricsCapacity: r.metricsCapacity,
			metrics:         r.metrics,
			persister:       r.persister,
			log:             r.log,
		}
	}
	r.sessions[sessionID] = s
	r.reportSessionCountLocked()
	return s, nil
}

// Get looks up an existing session without creating one.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Join authenticates member into sessionID with token, registering it as
// a member on success.
func (r *Registry) Join(sessionID, token string, member Member) (*Session, error) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Token != token {
		return nil, ErrTokenMismatch
	}
	s.addMember(member)
	r.reportConnect(true)
	return s, nil
}

// Connect is GetOrCreate followed by member registration, done without
// releasing the registry lock in between so a session cannot be evicted
// or re-created concurrently with its first member joining.
func (r *Registry) Connect(sessionID, token string, member Member) (*Session, error) {
	r.mu.Lock()
	s, existed := r.sessions[sessionID]
	if !existed {
		rehydrated, err := r.rehydrate(sessionID)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if rehydrated != nil {
			s = rehydrated
			existed = s.Token == token
		} else {
			s = &Session{
				ID:              sessionID,
				Token:           token,
				members:         make(map[string]Member),
				lastActivity:    time.Now(),
				metricsCapacity: r.metricsCapacity,
				metrics:         r.metrics,
				persister:       r.persister,
				log:             r.log,
			}
		}
		r.sessions[sessionID] = s
	}
	r.reportSessionCountLocked()
	if s.Token != token {
		r.mu.Unlock()
		return nil, ErrTokenMismatch
	}
	s.addMember(member)
	r.mu.Unlock()

	r.reportConnect(existed)
	return s, nil
}

// Leave removes connectionID from sessionID's membership, a no-op if
// either is already gone.
func (r *Registry) Leave(sessionID, connectionID string) {
	if s, ok := r.Get(sessionID); ok {
		s.removeMember(connectionID)
		if r.metrics != nil {
			r.metrics.RecordDisconnect()
			r.reportConnectionCount()
		}
	}
}

// reportConnect records a connect event and refreshes the live
// connection gauge. reconnect is true when the member joined an
// already-existing session rather than a freshly created one.
func (r *Registry) reportConnect(reconnect bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordConnect(reconnect)
	r.reportConnectionCount()
}

// reportConnectionCount recomputes and publishes the total member
// connection count across all sessions.
func (r *Registry) reportConnectionCount() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	total := 0
	for _, s := range r.sessions {
		total += s.MemberCount()
	}
	r.mu.RUnlock()
	r.metrics.SetActiveConnections(total)
}

// reportSessionCountLocked publishes the current session count. Callers
// must hold r.mu.
func (r *Registry) reportSessionCountLocked() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetActiveSessions(len(r.sessions))
}

// Sessions returns a snapshot of all sessions, for the admin API.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// RunEviction periodically scans for sessions idle beyond idleTTL and
// removes them, until ctx is cancelled. Intended to run as a background
// goroutine for the lifetime of the server process.
func (r *Registry) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.idleSince() >= r.idleTTL {
			delete(r.sessions, id)
			r.log.Info("session: evicted idle session", "sessionId", id)
			if r.metrics != nil {
				r.metrics.RecordEviction()
			}
		}
	}
	r.reportSessionCountLocked()
}

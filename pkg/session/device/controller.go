// Package device implements the device-side Session Controller: the
// authenticated lifecycle layer above the Connection Transport. It holds
// the session-scoped identity, performs the legacy join handshake when a
// server never completes the Connect/Connected flow, persists the
// last-known-good schema, and emits monotonic session events.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/devicecache"
	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/reloadsync/reloadsync/pkg/transport/device"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// EventKind discriminates a session-lifecycle Event.
type EventKind int

const (
	EventJoined EventKind = iota
	EventJoinRejected
	EventError
)

// Event is a session-lifecycle notification. Events are delivered in the
// order they occur and are monotonic per session: no Joined is ever
// delivered after a JoinRejected for the same Controller lifetime.
type Event struct {
	Kind   EventKind
	Reason string
	Err    error
}

// Identity is the session-scoped identity a Controller authenticates
// with: sessionId, bearer token, and the legacy join's client type.
type Identity struct {
	SessionID  string
	Token      string
	ClientType wire.ClientType
}

// Controller is the device-side Session Controller. Exactly one
// Controller drives one Conn at a time; callers observe it via Events
// and Updates.
type Controller struct {
	conn     *device.Conn
	cache    devicecache.Store
	identity Identity
	cfg      device.Config
	log      *logger.Logger

	events  chan Event
	updates chan wire.Message

	mu        sync.Mutex
	joined    bool
	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Controller bound to conn. cache is consulted for
// saveSchema/loadCachedSchema; it may be devicecache.NewMemoryStore() in
// tests.
func New(conn *device.Conn, cache devicecache.Store, identity Identity, cfg device.Config, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Default()
	}
	return &Controller{
		conn:     conn,
		cache:    cache,
		identity: identity,
		cfg:      cfg,
		log:      log,
		events:   make(chan Event, 8),
		updates:  make(chan wire.Message, 64),
		done:     make(chan struct{}),
	}
}

// Events streams session-lifecycle notifications.
func (c *Controller) Events() <-chan Event { return c.events }

// Updates streams every inbound message the join handshake does not
// itself consume (Update, Reload, non-fatal Error) for the Update
// Pipeline to apply.
func (c *Controller) Updates() <-chan wire.Message { return c.updates }

// ConnectAndJoin opens the transport and drives the join handshake in
// the background: if the server speaks the current Connect/Connected
// flow the join is implicit on Connected; otherwise it falls back to an
// explicit Join{sessionId,token,clientType} after a join-timeout with no
// Connected, and synthesizes JoinRejected{reason:"join timeout"} if that
// also goes unanswered.
func (c *Controller) ConnectAndJoin(ctx context.Context) {
	c.conn.Connect(ctx)
	go c.watch(ctx)
}

// LastReceivedSequence exposes the transport's highest observed Update
// sequence, retained across reconnects.
func (c *Controller) LastReceivedSequence() int64 { return c.conn.LastReceivedSequence() }

// Send forwards msg to the transport.
func (c *Controller) Send(msg wire.Message) error { return c.conn.Send(msg) }

// Disconnect tears down the transport and stops the watch loop.
func (c *Controller) Disconnect() {
	c.conn.Disconnect()
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Controller) watch(ctx context.Context) {
	joinTimer := time.NewTimer(c.cfg.JoinTimeout)
	defer joinTimer.Stop()
	joinSent := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case <-joinTimer.C:
			c.mu.Lock()
			joined := c.joined
			c.mu.Unlock()
			if joined {
				continue
			}
			if joinSent {
				c.reject("join timeout")
				return
			}
			joinSent = true
			if err := c.conn.Send(wire.Join{
				Envelope: wire.Envelope{
					Type:      wire.TypeJoin,
					SessionID: c.identity.SessionID,
					Timestamp: time.Now().UnixMilli(),
					Version:   wire.ProtocolVersion,
				},
				Token:      c.identity.Token,
				ClientType: c.identity.ClientType,
			}); err != nil {
				c.log.Warn("session: send join failed", "error", err.Error())
			}
			joinTimer.Reset(c.cfg.JoinTimeout)

		case msg, ok := <-c.conn.Inbound():
			if !ok {
				return
			}
			switch m := msg.(type) {
			case wire.Connected:
				c.accept()
			case wire.JoinAccepted:
				c.accept()
			case wire.JoinRejected:
				c.reject(m.Reason)
				return
			case wire.Error:
				if m.IsFatal() {
					c.emitErr(fmt.Errorf("%s: %s", m.Code, m.Message))
					return
				}
				c.forward(msg)
			default:
				c.forward(msg)
			}
		}
	}
}

func (c *Controller) accept() {
	c.mu.Lock()
	already := c.joined
	c.joined = true
	c.mu.Unlock()
	if already {
		return
	}
	select {
	case c.events <- Event{Kind: EventJoined}:
	case <-c.done:
	}
}

func (c *Controller) reject(reason string) {
	select {
	case c.events <- Event{Kind: EventJoinRejected, Reason: reason}:
	case <-c.done:
	}
}

func (c *Controller) emitErr(err error) {
	select {
	case c.events <- Event{Kind: EventError, Err: err}:
	case <-c.done:
	}
}

func (c *Controller) forward(msg wire.Message) {
	select {
	case c.updates <- msg:
	case <-c.done:
	}
}

// SaveSchema persists s as the last-known-good schema.
func (c *Controller) SaveSchema(ctx context.Context, s *schema.Schema) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal schema: %w", err)
	}
	return c.cache.Put(ctx, devicecache.LastSchemaKey, data)
}

// LoadCachedSchema returns the last persisted schema, or ok=false if
// none has been saved yet.
func (c *Controller) LoadCachedSchema(ctx context.Context) (s *schema.Schema, ok bool, err error) {
	data, found, err := c.cache.Get(ctx, devicecache.LastSchemaKey)
	if err != nil {
		return nil, false, fmt.Errorf("session: load cached schema: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	s = &schema.Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, false, fmt.Errorf("session: decode cached schema: %w", err)
	}
	return s, true, nil
}

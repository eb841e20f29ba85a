// Package server implements the server side of the Connection Transport:
// a websocket acceptor that upgrades an http.Request exactly like the
// retrieval pack's only websocket gateway handler (size-bounded
// Upgrader, CheckOrigin, a dedicated write mutex guarding the socket),
// then drives one cooperative per-connection read loop handling the
// Connect/Join handshake, heartbeat Ping/Pong, and inbound Ack mirroring
// into the session's metrics ring.
package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// Conn is one live server-side connection. It implements
// session/server.Member (ConnectionID, Send) and
// session/server.ConnectionHealth (DeviceID, Platform, ConnectedAt,
// LastPingAt) so the admin surface can introspect it without depending
// on the transport package.
type Conn struct {
	connectionID string
	ws           *websocket.Conn
	log          *logger.Logger

	msgLimiter    *rate.Limiter
	updateLimiter *rate.Limiter

	writeMu sync.Mutex

	mu          sync.Mutex
	deviceID    string
	platform    string
	connectedAt time.Time
	lastPingAt  time.Time
	closed      bool
}

func newConn(connectionID string, ws *websocket.Conn, cfg Config, log *logger.Logger) *Conn {
	return &Conn{
		connectionID:  connectionID,
		ws:            ws,
		log:           log,
		msgLimiter:    rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
		updateLimiter: rate.NewLimiter(rate.Limit(cfg.UpdatesPerSecond), cfg.UpdateBurst),
		connectedAt:   time.Now(),
	}
}

// ConnectionID identifies this connection within its session.
func (c *Conn) ConnectionID() string { return c.connectionID }

// DeviceID returns the device identifier reported on Connect, or "" if
// the connection used the legacy Join handshake.
func (c *Conn) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// Platform returns the device platform reported on Connect, or "" if
// unknown.
func (c *Conn) Platform() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platform
}

// ConnectedAt returns when this connection was accepted.
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// LastPingAt returns the time of the most recently received heartbeat
// Ping, or the zero Time if none has arrived yet.
func (c *Conn) LastPingAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPingAt
}

func (c *Conn) setIdentity(deviceID, platform string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.platform = platform
	c.mu.Unlock()
}

func (c *Conn) recordPing() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// Send encodes and writes msg to the socket. Safe for concurrent use.
func (c *Conn) Send(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.ws.Close()
}

// allowMessage reports whether an inbound message of the given type may
// proceed under the per-connection rate limits, consuming a token from
// the appropriate limiter(s) as a side effect.
func (c *Conn) allowMessage(t wire.MessageType) bool {
	if !c.msgLimiter.Allow() {
		return false
	}
	if t == wire.TypeUpdate {
		return c.updateLimiter.Allow()
	}
	return true
}

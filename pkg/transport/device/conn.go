// Package device implements the device side of the Connection Transport:
// a cooperative, single-producer-per-connection state machine over a
// gorilla/websocket socket, with heartbeat liveness tracking and
// exponential-backoff reconnect. Scheduling model and state transitions
// follow the transport's state machine contract; the websocket framing
// itself is grounded on the only websocket usage in the retrieval pack,
// a gateway handler pairing a dedicated writer goroutine draining a send
// channel with a read loop classifying socket errors.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// Identity carries the device-identifying fields sent on every Connect
// handshake attempt.
type Identity struct {
	DeviceID      string
	Platform      wire.Platform
	DeviceName    string
	ClientVersion string
	Token         string
}

// Conn is a device-side transport connection. Callers drive it with
// Connect/Disconnect/ForceReconnect/Send and observe it via Inbound and
// StateChanges. All exported methods are safe for concurrent use; state
// mutation itself is serialized onto a single internal run loop.
type Conn struct {
	cfg       Config
	endpoint  string
	sessionID string
	identity  Identity

	log *logger.Logger

	mu                   sync.Mutex
	state                State
	ws                   *websocket.Conn
	writeMu              sync.Mutex
	lastPongAt           time.Time
	attempt              int
	authenticationFailed bool
	connectionID         string
	lastReceivedSequence int64

	inbound      chan wire.Message
	stateChanges chan State
	forceCh      chan struct{}

	cancel context.CancelFunc
	done   chan struct{}

	disconnectOnce sync.Once
}

// New constructs a device transport for endpoint (a ws:// or wss:// URL,
// conventionally carrying a `session` query parameter) identified by
// sessionID. Token is conveyed inside the Connect payload, never in the
// URL. The returned Conn is Disconnected; call Connect to begin.
func New(endpoint, sessionID string, identity Identity, cfg Config, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.Default()
	}
	return &Conn{
		cfg:          cfg,
		endpoint:     endpoint,
		sessionID:    sessionID,
		identity:     identity,
		log:          log,
		state:        Disconnected,
		inbound:      make(chan wire.Message, 64),
		stateChanges: make(chan State, 8),
		forceCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Inbound streams validated inbound messages: Connected, Update, Reload,
// Error, JoinAccepted, JoinRejected and any other server-sent message.
// Pong is consumed by the transport's heartbeat tracking and is not
// forwarded.
func (c *Conn) Inbound() <-chan wire.Message { return c.inbound }

// StateChanges streams state transitions as they occur. The channel is
// buffered; slow consumers may observe coalesced delivery is NOT
// guaranteed — every transition is delivered, backpressure blocks the
// run loop.
func (c *Conn) StateChanges() <-chan State { return c.stateChanges }

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AuthenticationFailed reports whether the connection terminated on an
// authentication failure (INVALID_TOKEN / SESSION_NOT_FOUND /
// AUTHENTICATION_FAILED / JoinRejected), which disables auto-reconnect
// until ResetAuth is called.
func (c *Conn) AuthenticationFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticationFailed
}

// ResetAuth clears the authenticationFailed flag so a subsequent Connect
// (after re-provisioning a token) can retry.
func (c *Conn) ResetAuth() {
	c.mu.Lock()
	c.authenticationFailed = false
	c.mu.Unlock()
}

// LastReceivedSequence returns the highest sequence observed in an Update
// message, retained across reconnects to bound ordering guarantees.
func (c *Conn) LastReceivedSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReceivedSequence
}

// Connect starts the connection attempt loop in the background. ctx
// bounds the lifetime of the whole Conn; cancelling it is equivalent to
// calling Disconnect.
func (c *Conn) Connect(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
}

// Disconnect is terminal: it cancels the reconnect timer and any pending
// heartbeat, closes the socket, and transitions to Disconnected. A Conn
// that has already stopped in Error on a fatal error stays in Error.
func (c *Conn) Disconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		<-c.done
	})
}

// ForceReconnect skips backoff and reconnects after a single 500ms settle
// delay. It is a no-op when already Connecting or AwaitingConnected.
func (c *Conn) ForceReconnect() {
	select {
	case c.forceCh <- struct{}{}:
	default:
	}
}

// Send enqueues an outbound message when Connected; otherwise it is
// dropped with a log line per the outbound-when-disconnected policy — the
// pipeline must not rely on transport-level buffering.
func (c *Conn) Send(msg wire.Message) error {
	c.mu.Lock()
	state := c.state
	ws := c.ws
	c.mu.Unlock()

	if state != Connected || ws == nil {
		c.log.Warn("transport: dropping outbound message, not connected",
			"type", msg.Header().Type, "state", state.String())
		return nil
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode outbound message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write outbound message: %w", err)
	}
	return nil
}

// connOutcome is the reason serveConnection returned, driving run's next
// transition per the transport's state diagram.
type connOutcome int

const (
	outcomeReconnect connOutcome = iota
	outcomeForceReconnect
	outcomeTerminal
	outcomeCtxDone
)

// run is the connection's single driver loop: dial, handshake, serve, and
// on disconnect either back off and retry or stop, depending on outcome.
// It owns all state transitions; every other method only reads state or
// signals this loop through a channel.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(Connecting)

		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(Disconnected)
				return
			}
			c.log.Warn("transport: dial failed", "error", err.Error())
			c.setState(Error)
			if !c.backoffWait(ctx) {
				c.setState(Disconnected)
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(AwaitingConnected)

		if err := c.writeConnect(ws); err != nil {
			c.log.Warn("transport: send connect failed", "error", err.Error())
			ws.Close()
			c.setState(Error)
			if !c.backoffWait(ctx) {
				c.setState(Disconnected)
				return
			}
			continue
		}

		outcome, established := c.serveConnection(ctx, ws)
		ws.Close()

		switch outcome {
		case outcomeCtxDone:
			c.setState(Disconnected)
			return
		case outcomeTerminal:
			c.setState(Error)
			return
		case outcomeForceReconnect:
			c.mu.Lock()
			c.attempt = 0
			c.mu.Unlock()
			select {
			case <-time.After(c.cfg.ForceReconnectSettle):
			case <-ctx.Done():
				c.setState(Disconnected)
				return
			}
			continue
		case outcomeReconnect:
			if established {
				c.setState(Disconnected)
			} else {
				c.setState(Error)
			}
			if !c.backoffWait(ctx) {
				c.setState(Disconnected)
				return
			}
			continue
		}
	}
}

// backoffWait sleeps the exponential-backoff delay for the next attempt,
// incrementing the attempt counter first. A ForceReconnect during the wait
// cuts it short to the settle delay and resets the counter. It returns
// false if ctx was cancelled while waiting.
func (c *Conn) backoffWait(ctx context.Context) bool {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	delay := backoffDelay(c.cfg, attempt)
	select {
	case <-time.After(delay):
		return true
	case <-c.forceCh:
		c.mu.Lock()
		c.attempt = 0
		c.mu.Unlock()
		select {
		case <-time.After(c.cfg.ForceReconnectSettle):
			return true
		case <-ctx.Done():
			return false
		}
	case <-ctx.Done():
		return false
	}
}

// writeConnect sends the initial Connect handshake message.
func (c *Conn) writeConnect(ws *websocket.Conn) error {
	msg := wire.Connect{
		Envelope: wire.Envelope{
			Type:      wire.TypeConnect,
			SessionID: c.sessionID,
			Timestamp: time.Now().UnixMilli(),
			Version:   wire.ProtocolVersion,
		},
		DeviceID:      c.identity.DeviceID,
		Platform:      c.identity.Platform,
		DeviceName:    c.identity.DeviceName,
		ClientVersion: c.identity.ClientVersion,
		Token:         c.identity.Token,
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode connect: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

// writePing sends a heartbeat Ping directly on ws, bypassing Send's
// Connected-state gate since the caller already knows it holds the
// current socket.
func (c *Conn) writePing(ws *websocket.Conn) error {
	msg := wire.Ping{
		Envelope: wire.Envelope{
			Type:      wire.TypePing,
			SessionID: c.sessionID,
			Timestamp: time.Now().UnixMilli(),
			Version:   wire.ProtocolVersion,
		},
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode ping: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

// serveConnection drives one live socket from AwaitingConnected through
// to its end: reading inbound frames on a dedicated goroutine, sending
// heartbeat Pings, and watching for heartbeat timeout, ctx cancellation,
// and ForceReconnect. established reports whether Connected was ever
// received, which tells run() whether the next state is Disconnected
// (was live) or Error (never finished the handshake).
func (c *Conn) serveConnection(ctx context.Context, ws *websocket.Conn) (outcome connOutcome, established bool) {
	stop := make(chan struct{})
	defer close(stop)

	msgCh := make(chan wire.Message, 16)
	errCh := make(chan error, 1)

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				select {
				case errCh <- err:
				case <-stop:
				}
				return
			}
			msg, compat, decErr := wire.Decode(data, wire.Lenient)
			if decErr != nil {
				c.log.Warn("transport: decode inbound message failed", "error", decErr.Error())
				continue
			}
			if compat.Warning != "" {
				c.log.Warn("transport: protocol version validation note", "note", compat.Warning)
			}
			select {
			case msgCh <- msg:
			case <-stop:
				return
			}
		}
	}()

	handshakeDeadline := time.NewTimer(c.cfg.JoinTimeout)
	defer handshakeDeadline.Stop()

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return outcomeCtxDone, established

		case <-c.forceCh:
			if !established {
				continue
			}
			return outcomeForceReconnect, established

		case err := <-errCh:
			c.log.Warn("transport: socket closed", "error", err.Error())
			return outcomeReconnect, established

		case <-handshakeDeadline.C:
			if !established {
				c.log.Warn("transport: timed out awaiting connected")
				return outcomeReconnect, established
			}

		case <-heartbeat.C:
			if !established {
				continue
			}
			c.mu.Lock()
			lastPong := c.lastPongAt
			c.mu.Unlock()
			if !lastPong.IsZero() && time.Since(lastPong) > c.cfg.HeartbeatTimeout {
				c.log.Warn("transport: heartbeat timeout")
				return outcomeReconnect, established
			}
			if err := c.writePing(ws); err != nil {
				c.log.Warn("transport: ping failed", "error", err.Error())
				return outcomeReconnect, established
			}

		case msg := <-msgCh:
			term, fatal := c.handleInbound(ctx, msg, &established)
			if term {
				if fatal {
					return outcomeTerminal, established
				}
				return outcomeReconnect, established
			}
		}
	}
}

// handleInbound applies transport-level effects of an inbound message
// (state transitions, lastPongAt, connectionID, lastReceivedSequence)
// and forwards it to Inbound for the layers above. term reports whether
// the connection must end; fatal distinguishes a terminal auth/fatal
// error (no auto-reconnect) from an ordinary close.
func (c *Conn) handleInbound(ctx context.Context, msg wire.Message, established *bool) (term, fatal bool) {
	switch m := msg.(type) {
	case wire.Connected:
		c.mu.Lock()
		c.connectionID = m.ConnectionID
		c.lastReceivedSequence = 0
		c.lastPongAt = time.Now()
		c.attempt = 0
		c.mu.Unlock()
		*established = true
		c.setState(Connected)
		c.forward(ctx, msg)
		return false, false

	case wire.Pong:
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return false, false

	case wire.Update:
		if m.Sequence > 0 {
			c.mu.Lock()
			c.lastReceivedSequence = m.Sequence
			c.mu.Unlock()
		}
		c.forward(ctx, msg)
		return false, false

	case wire.Error:
		if m.IsFatal() {
			if m.Code.IsAuthFailure() {
				c.mu.Lock()
				c.authenticationFailed = true
				c.mu.Unlock()
			}
			c.forward(ctx, msg)
			return true, true
		}
		c.forward(ctx, msg)
		return false, false

	case wire.JoinRejected:
		c.mu.Lock()
		c.authenticationFailed = true
		c.mu.Unlock()
		c.forward(ctx, msg)
		return true, true

	default:
		c.forward(ctx, msg)
		return false, false
	}
}

// forward delivers msg to Inbound, respecting ctx cancellation so a slow
// or absent consumer cannot wedge the run loop past shutdown.
func (c *Conn) forward(ctx context.Context, msg wire.Message) {
	select {
	case c.inbound <- msg:
	case <-ctx.Done():
	}
}

// setState updates the current state and publishes the transition on
// StateChanges, blocking if the channel is full per its delivery
// contract.
func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.stateChanges <- s
}

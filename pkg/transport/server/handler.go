package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/session/server"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// Handler upgrades incoming HTTP requests to websocket connections and
// drives each one's Connect/Join handshake and message loop against a
// session Registry. reloadsyncd uses it as the whole handler of the
// transport's own http.Server, separate from the admin API's router.
type Handler struct {
	registry *server.Registry
	cfg      Config
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler bound to registry. CheckOrigin is
// permissive (any origin) since devices connect directly rather than
// from a browser context; deployments fronting this with a browser-based
// client should wrap the handler with their own origin check.
func NewHandler(registry *server.Registry, cfg Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		registry: registry,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and blocks for its lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("transport: websocket upgrade failed", "error", err.Error())
		return
	}

	connectionID := uuid.NewString()
	conn := newConn(connectionID, ws, h.cfg, h.log)
	defer conn.close()

	h.log.Debug("transport: connection accepted", "connectionId", connectionID, "remoteAddr", r.RemoteAddr)
	h.serve(conn)
	h.log.Debug("transport: connection closed", "connectionId", connectionID)
}

// serve runs the handshake then the steady-state read loop for conn,
// until the socket errs, the device disconnects, or it fails to
// authenticate.
func (h *Handler) serve(conn *Conn) {
	conn.ws.SetReadDeadline(time.Now().Add(h.cfg.JoinTimeout))
	_, data, err := conn.ws.ReadMessage()
	if err != nil {
		h.log.Debug("transport: handshake read failed", "error", err.Error())
		return
	}

	msg, compat, decErr := wire.Decode(data, wire.Lenient)
	if decErr != nil {
		h.sendFatal(conn, "", decodeErrorCode(decErr), decErr.Error())
		return
	}
	if compat.Warning != "" {
		h.log.Warn("transport: protocol version validation note", "connectionId", conn.ConnectionID(), "note", compat.Warning)
	}

	session, ok := h.handshake(conn, msg)
	if !ok {
		return
	}
	defer h.registry.Leave(session.ID, conn.ConnectionID())

	conn.ws.SetReadDeadline(time.Time{})
	h.readLoop(session, conn)
}

// handshake dispatches the first inbound message to the Connect or Join
// flow. It replies Connected/JoinAccepted and registers conn as a member
// on success, or replies with a fatal Error/JoinRejected and returns
// ok=false on failure.
func (h *Handler) handshake(conn *Conn, msg wire.Message) (*server.Session, bool) {
	switch m := msg.(type) {
	case wire.Connect:
		conn.setIdentity(m.DeviceID, string(m.Platform))
		session, err := h.registry.Connect(m.SessionID, m.Token, conn)
		if err != nil {
			h.sendFatal(conn, m.SessionID, authErrorCode(err), err.Error())
			return nil, false
		}
		_ = conn.Send(wire.Connected{
			Envelope: wire.Envelope{
				Type:      wire.TypeConnected,
				SessionID: m.SessionID,
				Timestamp: time.Now().UnixMilli(),
				Version:   wire.ProtocolVersion,
			},
			ConnectionID:  conn.ConnectionID(),
			InitialSchema: session.Schema(),
			Capabilities: wire.Capabilities{
				IncrementalUpdates: true,
				StatePreservation:  true,
			},
		})
		return session, true

	case wire.Join:
		session, err := h.registry.Connect(m.SessionID, m.Token, conn)
		if err != nil {
			_ = conn.Send(wire.JoinRejected{
				Envelope: wire.Envelope{
					Type:      wire.TypeJoinRejected,
					SessionID: m.SessionID,
					Timestamp: time.Now().UnixMilli(),
					Version:   wire.ProtocolVersion,
				},
				Reason: err.Error(),
			})
			return nil, false
		}
		_ = conn.Send(wire.JoinAccepted{
			Envelope: wire.Envelope{
				Type:      wire.TypeJoinAccepted,
				SessionID: m.SessionID,
				Timestamp: time.Now().UnixMilli(),
				Version:   wire.ProtocolVersion,
			},
		})
		return session, true

	default:
		h.sendFatal(conn, msg.Header().SessionID, wire.CodeInvalidMessage, "expected connect or join as the first message")
		return nil, false
	}
}

// readLoop handles every inbound message after a successful handshake:
// Ping is answered with Pong, Ack is mirrored into the session's metrics
// ring, and anything else is logged and discarded since the server never
// expects Update/Reload/Error traffic from a device.
func (h *Handler) readLoop(session *server.Session, conn *Conn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, compat, decErr := wire.Decode(data, wire.Lenient)
		if decErr != nil {
			if decodeErrorCode(decErr) == wire.CodeUnsupportedVersion {
				h.sendFatal(conn, session.ID, wire.CodeUnsupportedVersion, decErr.Error())
				return
			}
			h.log.Warn("transport: decode inbound message failed", "connectionId", conn.ConnectionID(), "error", decErr.Error())
			continue
		}
		if compat.Warning != "" {
			h.log.Warn("transport: protocol version validation note", "connectionId", conn.ConnectionID(), "note", compat.Warning)
		}

		if !conn.allowMessage(msg.Header().Type) {
			_ = conn.Send(wire.Error{
				Envelope: wire.Envelope{
					Type:      wire.TypeError,
					SessionID: session.ID,
					Timestamp: time.Now().UnixMilli(),
					Version:   wire.ProtocolVersion,
				},
				Code:        wire.CodeRateLimitExceeded,
				Message:     "rate limit exceeded",
				Severity:    wire.SeverityWarning,
				Recoverable: true,
			})
			continue
		}

		switch m := msg.(type) {
		case wire.Ping:
			conn.recordPing()
			_ = conn.Send(wire.Pong{
				Envelope: wire.Envelope{
					Type:      wire.TypePong,
					SessionID: session.ID,
					Timestamp: time.Now().UnixMilli(),
					Version:   wire.ProtocolVersion,
				},
				ServerTime: time.Now().UnixMilli(),
			})

		case wire.Ack:
			kind := "full"
			if m.Sequence > 0 {
				kind = "incremental"
			}
			session.RecordAck(m, kind, time.Now())

		default:
			h.log.Debug("transport: unexpected inbound message after handshake", "connectionId", conn.ConnectionID(), "type", m.Header().Type)
		}
	}
}

func (h *Handler) sendFatal(conn *Conn, sessionID string, code wire.ErrorCode, message string) {
	_ = conn.Send(wire.Error{
		Envelope: wire.Envelope{
			Type:      wire.TypeError,
			SessionID: sessionID,
			Timestamp: time.Now().UnixMilli(),
			Version:   wire.ProtocolVersion,
		},
		Code:        code,
		Message:     message,
		Severity:    wire.SeverityFatal,
		Recoverable: false,
	})
}

func authErrorCode(err error) wire.ErrorCode {
	if err == server.ErrTokenMismatch {
		return wire.CodeInvalidToken
	}
	return wire.CodeAuthenticationFailed
}

// decodeErrorCode extracts the wire.ErrorCode a *wire.DecodeError carries,
// defaulting to CodeInvalidMessage for any other error shape.
func decodeErrorCode(err error) wire.ErrorCode {
	var decErr *wire.DecodeError
	if errors.As(err, &decErr) {
		return decErr.Code
	}
	return wire.CodeInvalidMessage
}

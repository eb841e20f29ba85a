package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across log statements so dashboards and queries can rely on them.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session & connection
	KeySessionID    = "session_id"
	KeyConnectionID = "connection_id"
	KeySequence     = "sequence"
	KeyClientIP     = "client_ip"
	KeyClientType   = "client_type"
	KeyDeviceID     = "device_id"
	KeyPlatform     = "platform"

	// Wire protocol
	KeyMessageType = "message_type"
	KeyErrorCode   = "error_code"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyOperation  = "operation"
	KeyAttempt    = "attempt"
	KeyState      = "state"

	// HTTP
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyRequestID = "request_id"
	KeyBytes     = "bytes"
)

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// SessionID returns a slog.Attr for a session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// ConnectionID returns a slog.Attr for a connection identifier.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// Sequence returns a slog.Attr for an update sequence number.
func Sequence(n int64) slog.Attr { return slog.Int64(KeySequence, n) }

// ClientIP returns a slog.Attr for a client IP address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// MessageType returns a slog.Attr for a wire message type.
func MessageType(t string) slog.Attr { return slog.String(KeyMessageType, t) }

// ErrorCode returns a slog.Attr for a wire error code.
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Operation returns a slog.Attr for a sub-operation name.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Attempt returns a slog.Attr for a retry/reconnect attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// State returns a slog.Attr for a state machine state.
func State(s string) slog.Attr { return slog.String(KeyState, s) }

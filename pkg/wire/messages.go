package wire

import (
	"github.com/reloadsync/reloadsync/pkg/delta"
	"github.com/reloadsync/reloadsync/pkg/schema"
)

// MessageType discriminates the payload carried by a Message envelope.
type MessageType string

const (
	TypeConnect      MessageType = "connect"
	TypeConnected    MessageType = "connected"
	TypeUpdate       MessageType = "update"
	TypeAck          MessageType = "ack"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
	TypeReload       MessageType = "reload"
	TypeError        MessageType = "error"
	TypeJoin         MessageType = "join"
	TypeJoinAccepted MessageType = "joinAccepted"
	TypeJoinRejected MessageType = "joinRejected"
)

// Platform is the device platform reported on Connect.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformWeb     Platform = "web"
	PlatformUnknown Platform = "unknown"
)

// PingStatus is the optional device status reported alongside a Ping.
type PingStatus string

const (
	PingStatusIdle     PingStatus = "idle"
	PingStatusRendering PingStatus = "rendering"
	PingStatusUpdating PingStatus = "updating"
)

// ReloadReason is why the server is asking the device to discard state
// and re-request a full schema.
type ReloadReason string

const (
	ReloadReasonError        ReloadReason = "error"
	ReloadReasonManual       ReloadReason = "manual"
	ReloadReasonIncompatible ReloadReason = "incompatible"
)

// ClientType distinguishes a rendering device from an editor/tooling
// client in the legacy Join handshake.
type ClientType string

const (
	ClientTypeDevice ClientType = "device"
	ClientTypeEditor ClientType = "editor"
)

// UpdateKind discriminates an Update message's payload: a full schema
// replacement or an incremental delta.
type UpdateKind string

const (
	UpdateKindFull        UpdateKind = "full"
	UpdateKindIncremental UpdateKind = "incremental"
)

// Envelope carries the fields present on every message variant.
type Envelope struct {
	Type      MessageType `json:"type" validate:"required"`
	SessionID string      `json:"sessionId" validate:"required,min=8,max=128"`
	Timestamp int64       `json:"timestamp" validate:"gte=0"`
	Version   string      `json:"version" validate:"required"`
}

// Message is implemented by every concrete wire message variant. Header
// returns the common envelope fields so transport/session code can
// dispatch on Type without a type switch on every call site.
type Message interface {
	Header() Envelope
}

// Connect is sent by a device to open a session over an already-connected
// transport (the non-legacy join flow).
type Connect struct {
	Envelope
	DeviceID      string   `json:"deviceId" validate:"required"`
	Platform      Platform `json:"platform" validate:"required,oneof=ios android macos windows linux web unknown"`
	DeviceName    string   `json:"deviceName,omitempty"`
	ClientVersion string   `json:"clientVersion" validate:"required"`
	Token         string   `json:"token" validate:"required"`
}

func (m Connect) Header() Envelope { return m.Envelope }

// Capabilities advertises server-side feature support in Connected.
type Capabilities struct {
	IncrementalUpdates bool `json:"incrementalUpdates"`
	Compression        bool `json:"compression"`
	StatePreservation  bool `json:"statePreservation"`
}

// Connected is the server's reply to Connect, admitting the device into
// the session and optionally delivering the current schema as sequence 0.
type Connected struct {
	Envelope
	ConnectionID  string         `json:"connectionId" validate:"required"`
	InitialSchema *schema.Schema `json:"initialSchema,omitempty"`
	Capabilities  Capabilities   `json:"capabilities"`
}

func (m Connected) Header() Envelope { return m.Envelope }

// Update carries either a Full schema replacement or an Incremental delta,
// discriminated by Kind. Exactly one of Schema/Delta is populated
// depending on Kind.
type Update struct {
	Envelope
	Kind          UpdateKind         `json:"kind" validate:"required,oneof=full incremental"`
	Sequence      int64              `json:"sequence" validate:"gte=0"`
	PreserveState bool               `json:"preserveState"`
	Schema        *schema.Schema     `json:"schema,omitempty"`
	Checksum      string             `json:"checksum,omitempty"`
	Delta         *delta.SchemaDelta `json:"delta,omitempty"`
}

func (m Update) Header() Envelope { return m.Envelope }

// Ack is the device's acknowledgement of an applied (or dropped) Update.
type Ack struct {
	Envelope
	Sequence    int64  `json:"sequence" validate:"gte=0"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ApplyTimeMs *int64 `json:"applyTimeMs,omitempty"`
}

func (m Ack) Header() Envelope { return m.Envelope }

// Ping is the device's half of the heartbeat exchange.
type Ping struct {
	Envelope
	Status PingStatus `json:"status,omitempty" validate:"omitempty,oneof=idle rendering updating"`
}

func (m Ping) Header() Envelope { return m.Envelope }

// Pong is the server's reply to Ping, carrying its own clock for drift
// diagnostics.
type Pong struct {
	Envelope
	ServerTime int64 `json:"serverTime"`
}

func (m Pong) Header() Envelope { return m.Envelope }

// Reload asks the device to discard its current schema and re-request a
// Full update, used to resynchronize after a gap or consistency failure.
type Reload struct {
	Envelope
	Reason ReloadReason `json:"reason" validate:"required,oneof=error manual incompatible"`
	Error  string       `json:"error,omitempty"`
}

func (m Reload) Header() Envelope { return m.Envelope }

// Error carries a structured protocol-level error. Recoverable indicates
// whether the connection should continue; Severity further classifies
// the failure (fatal+non-recoverable is always terminal).
type Error struct {
	Envelope
	Code        ErrorCode `json:"code" validate:"required"`
	Message     string    `json:"message" validate:"required"`
	Severity    Severity  `json:"severity" validate:"required,oneof=warning error fatal"`
	Details     any       `json:"details,omitempty"`
	Recoverable bool      `json:"recoverable"`
}

func (m Error) Header() Envelope { return m.Envelope }

// IsFatal reports whether this Error terminates the connection with no
// auto-reconnect, per the transport's auth/fatal-error handling contract.
func (m Error) IsFatal() bool {
	return m.Code.IsAuthFailure() || (m.Severity == SeverityFatal && !m.Recoverable)
}

// Join is the legacy session-join handshake, used when the transport has
// not already authenticated via Connect/Connected.
type Join struct {
	Envelope
	Token      string     `json:"token" validate:"required"`
	ClientType ClientType `json:"clientType" validate:"required,oneof=device editor"`
}

func (m Join) Header() Envelope { return m.Envelope }

// JoinAccepted confirms a legacy Join.
type JoinAccepted struct {
	Envelope
}

func (m JoinAccepted) Header() Envelope { return m.Envelope }

// JoinRejected rejects a legacy Join with a reason, e.g. an error code
// name or a human-readable explanation such as "join timeout".
type JoinRejected struct {
	Envelope
	Reason string `json:"reason" validate:"required"`
}

func (m JoinRejected) Header() Envelope { return m.Envelope }

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationMode controls how strictly Decode treats unrecognized fields
// in the incoming JSON object. Structural field/enum validation (required
// fields, enum membership) always runs regardless of mode.
type ValidationMode int

const (
	// Lenient accepts unknown top-level fields (the default for production
	// traffic, since servers and devices may run different minor versions).
	Lenient ValidationMode = iota
	// Strict rejects any unknown top-level field.
	Strict
)

// MaxMessageBytes is the wire-level size cap; Decode rejects anything
// larger before attempting to unmarshal it.
const MaxMessageBytes = 10 * 1024 * 1024 // 10 MiB

var validate = validator.New(validator.WithRequiredStructEnabled())

// envelopeOnly is used to sniff the discriminant Type field (and run
// struct-tag validation on the shared envelope) before dispatching to a
// type-specific payload.
type envelopeOnly struct {
	Envelope
}

// DecodeError is returned by Decode when the input fails structural
// validation or cannot be classified into a known Message variant. It
// carries the wire ErrorCode the caller should reply with.
type DecodeError struct {
	Code ErrorCode
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: %s: %v", e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses data into a concrete Message variant. It first checks the
// size cap, then unmarshals the shared envelope to read Type and Version,
// checks protocol-version compatibility, validates the envelope's struct
// tags, dispatches to the type-specific struct, and finally runs
// struct-tag validation on the full payload. Any failure returns a
// *DecodeError carrying the wire error code the caller MUST reply with
// (per the codec's contract, the message is discarded).
//
// The returned VersionCompatibility reflects the peer's Envelope.Version
// against ProtocolVersion: callers should surface a non-empty Warning as a
// non-fatal validation note (e.g. a log line) without rejecting the
// message. A MAJOR version mismatch is not returned this way — it fails
// decoding outright with CodeUnsupportedVersion.
func Decode(data []byte, mode ValidationMode) (Message, VersionCompatibility, error) {
	if len(data) > MaxMessageBytes {
		return nil, VersionCompatibility{}, &DecodeError{Code: CodeInvalidMessage, Err: fmt.Errorf("message exceeds %d bytes", MaxMessageBytes)}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if mode == Strict {
		dec.DisallowUnknownFields()
	}

	var env envelopeOnly
	if err := dec.Decode(&env); err != nil {
		return nil, VersionCompatibility{}, &DecodeError{Code: CodeInvalidMessage, Err: fmt.Errorf("malformed bytes: %w", err)}
	}

	compat, err := CheckVersion(env.Version)
	if err != nil {
		return nil, VersionCompatibility{}, &DecodeError{Code: CodeInvalidMessage, Err: fmt.Errorf("version: %w", err)}
	}
	if !compat.Compatible {
		return nil, compat, &DecodeError{Code: CodeUnsupportedVersion, Err: fmt.Errorf("peer protocol version %s is incompatible with %s", env.Version, ProtocolVersion)}
	}

	msg, err := decodeByType(data, env.Type, mode)
	if err != nil {
		return nil, compat, err
	}

	if err := validate.Struct(msg); err != nil {
		return nil, compat, &DecodeError{Code: CodeInvalidMessage, Err: err}
	}

	return msg, compat, nil
}

func decodeByType(data []byte, t MessageType, mode ValidationMode) (Message, error) {
	decodeInto := func(v any) error {
		dec := json.NewDecoder(bytes.NewReader(data))
		if mode == Strict {
			dec.DisallowUnknownFields()
		}
		return dec.Decode(v)
	}

	switch t {
	case TypeConnect:
		var m Connect
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeConnected:
		var m Connected
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeUpdate:
		var m Update
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeAck:
		var m Ack
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypePing:
		var m Ping
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypePong:
		var m Pong
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeReload:
		var m Reload
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeError:
		var m Error
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeJoin:
		var m Join
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeJoinAccepted:
		var m JoinAccepted
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	case TypeJoinRejected:
		var m JoinRejected
		if err := decodeInto(&m); err != nil {
			return nil, &DecodeError{Code: CodeInvalidMessage, Err: err}
		}
		return m, nil
	default:
		return nil, &DecodeError{Code: CodeInvalidMessage, Err: fmt.Errorf("unknown message type %q", t)}
	}
}

// Encode serializes a Message to its stable JSON wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

package wire_test

import (
	"testing"

	"github.com/reloadsync/reloadsync/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t wire.MessageType) wire.Envelope {
	return wire.Envelope{Type: t, SessionID: "session-1234", Timestamp: 1000, Version: wire.ProtocolVersion}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	original := wire.Connect{
		Envelope:      envelope(wire.TypeConnect),
		DeviceID:      "D1",
		Platform:      wire.PlatformAndroid,
		ClientVersion: "1.0.0",
		Token:         "T1",
	}

	data, err := wire.Encode(original)
	require.NoError(t, err)

	decoded, _, err := wire.Decode(data, wire.Lenient)
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
}

func TestDecodeMalformedBytes(t *testing.T) {
	_, _, err := wire.Decode([]byte("not json"), wire.Lenient)
	require.Error(t, err)

	var decErr *wire.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wire.CodeInvalidMessage, decErr.Code)
}

func TestDecodeUnknownType(t *testing.T) {
	_, _, err := wire.Decode([]byte(`{"type":"bogus","sessionId":"session-1234","timestamp":1,"version":"1.0.0"}`), wire.Lenient)
	require.Error(t, err)

	var decErr *wire.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wire.CodeInvalidMessage, decErr.Code)
}

func TestDecodeRejectsShortSessionID(t *testing.T) {
	msg := wire.Ping{Envelope: wire.Envelope{Type: wire.TypePing, SessionID: "short", Timestamp: 1, Version: wire.ProtocolVersion}}
	data, err := wire.Encode(msg)
	require.NoError(t, err)

	_, _, err = wire.Decode(data, wire.Lenient)
	require.Error(t, err)
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"type":"ping","sessionId":"session-1234","timestamp":1,"version":"1.0.0","bogusField":true}`)

	_, _, err := wire.Decode(raw, wire.Lenient)
	assert.NoError(t, err)

	_, _, err = wire.Decode(raw, wire.Strict)
	assert.Error(t, err)
}

func TestUpdateRoundTripIncremental(t *testing.T) {
	original := wire.Update{
		Envelope:      envelope(wire.TypeUpdate),
		Kind:          wire.UpdateKindIncremental,
		Sequence:      1,
		PreserveState: true,
	}

	data, err := wire.Encode(original)
	require.NoError(t, err)

	decoded, _, err := wire.Decode(data, wire.Lenient)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsMajorVersionMismatch(t *testing.T) {
	msg := wire.Ping{Envelope: wire.Envelope{Type: wire.TypePing, SessionID: "session-1234", Timestamp: 1, Version: "2.0.0"}}
	data, err := wire.Encode(msg)
	require.NoError(t, err)

	_, _, err = wire.Decode(data, wire.Lenient)
	require.Error(t, err)

	var decErr *wire.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, wire.CodeUnsupportedVersion, decErr.Code)
}

func TestDecodeCarriesMinorVersionWarning(t *testing.T) {
	msg := wire.Ping{Envelope: wire.Envelope{Type: wire.TypePing, SessionID: "session-1234", Timestamp: 1, Version: "1.9.0"}}
	data, err := wire.Encode(msg)
	require.NoError(t, err)

	decoded, compat, err := wire.Decode(data, wire.Lenient)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, compat.Compatible)
	assert.NotEmpty(t, compat.Warning)
}

func TestErrorIsFatal(t *testing.T) {
	assert.True(t, wire.Error{Code: wire.CodeInvalidToken}.IsFatal())
	assert.True(t, wire.Error{Severity: wire.SeverityFatal, Recoverable: false}.IsFatal())
	assert.False(t, wire.Error{Severity: wire.SeverityError, Recoverable: true}.IsFatal())
}

func TestCheckVersion(t *testing.T) {
	compat, err := wire.CheckVersion("1.0.0")
	require.NoError(t, err)
	assert.True(t, compat.Compatible)
	assert.Empty(t, compat.Warning)

	compat, err = wire.CheckVersion("1.9.0")
	require.NoError(t, err)
	assert.True(t, compat.Compatible)
	assert.NotEmpty(t, compat.Warning)

	compat, err = wire.CheckVersion("2.0.0")
	require.NoError(t, err)
	assert.False(t, compat.Compatible)
}

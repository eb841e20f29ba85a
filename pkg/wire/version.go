package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is the wire protocol version this build speaks.
const ProtocolVersion = "1.0.0"

// VersionCompatibility describes the result of comparing a peer's
// protocol version against ProtocolVersion.
type VersionCompatibility struct {
	Compatible bool
	Warning    string
}

// CheckVersion compares peerVersion against ProtocolVersion. Equal MAJOR
// is required; unequal MINOR is allowed but produces a non-fatal warning.
// A malformed version string (on either side) is returned as an error.
func CheckVersion(peerVersion string) (VersionCompatibility, error) {
	peerMajor, peerMinor, _, err := parseSemver(peerVersion)
	if err != nil {
		return VersionCompatibility{}, fmt.Errorf("wire: parse peer version %q: %w", peerVersion, err)
	}
	ownMajor, ownMinor, _, err := parseSemver(ProtocolVersion)
	if err != nil {
		return VersionCompatibility{}, fmt.Errorf("wire: parse own version %q: %w", ProtocolVersion, err)
	}

	if peerMajor != ownMajor {
		return VersionCompatibility{Compatible: false}, nil
	}
	if peerMinor != ownMinor {
		return VersionCompatibility{
			Compatible: true,
			Warning:    fmt.Sprintf("peer protocol version %s differs in minor from %s", peerVersion, ProtocolVersion),
		}, nil
	}
	return VersionCompatibility{Compatible: true}, nil
}

func parseSemver(v string) (major, minor, patch int, err error) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected MAJOR.MINOR.PATCH, got %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	patch, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return major, minor, patch, nil
}

package clamd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionResult is the daemon's reply to VERSION.
type VersionResult struct {
	// Raw is the reply exactly as received, trailing NUL included.
	Raw string
	// Engine is the ClamAV engine version.
	Engine *semver.Version
	// SignatureVersion is the signature database version, or 0 when the
	// daemon did not report one.
	SignatureVersion int
	// SignatureDate is the build date of the signature database, as sent.
	SignatureDate string
}

// ParseVersion parses a reply of the form
// "ClamAV 1.0.0/26734/Mon Nov 28 08:17:05 2022\x00".
// Daemons without a loaded database reply with just "ClamAV 1.0.0".
func ParseVersion(raw string) (*VersionResult, error) {
	s := strings.TrimRight(raw, "\x00\r\n")
	rest, ok := strings.CutPrefix(s, "ClamAV ")
	if !ok {
		return nil, NewProtocolReadError(fmt.Sprintf("unexpected version reply: %q", s), nil)
	}

	parts := strings.SplitN(rest, "/", 3)
	engine, err := semver.NewVersion(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, NewProtocolReadError(fmt.Sprintf("invalid engine version %q", parts[0]), err)
	}

	result := &VersionResult{Raw: raw, Engine: engine}
	if len(parts) > 1 {
		sig, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, NewProtocolReadError(fmt.Sprintf("invalid signature version %q", parts[1]), err)
		}
		result.SignatureVersion = sig
	}
	if len(parts) > 2 {
		result.SignatureDate = strings.TrimSpace(parts[2])
	}
	return result, nil
}

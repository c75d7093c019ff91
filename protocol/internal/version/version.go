// Package version parses and compares the protocol version string carried in
// the __protVer / __requestProtVer user properties (spec.md §7).
package version

import (
	"strconv"
	"strings"
)

// ProtocolString is the protocol version this engine implements.
// SupportedString lists the major versions it accepts from peers.
const (
	ProtocolString  = "1.0"
	SupportedString = "1"
)

// Supported holds the parsed major versions from SupportedString.
var Supported = ParseSupported(SupportedString)

// ParseProtocol splits a "<major>.<minor>" string into its components. An
// empty string defaults to 1.0; a malformed string yields major -1.
func ParseProtocol(v string) (major, minor int) {
	if v == "" {
		return 1, 0
	}

	parts := strings.Split(v, ".")
	if len(parts) != 2 {
		return -1, 0
	}

	var err error
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return -1, 0
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return -1, 0
	}
	return major, minor
}

// ParseSupported splits a space-separated list of supported major versions.
func ParseSupported(vs string) []int {
	parts := strings.Split(vs, " ")
	if len(parts) == 0 {
		return nil
	}

	res := make([]int, len(parts))
	for i, part := range parts {
		var err error
		res[i], err = strconv.Atoi(part)
		if err != nil {
			return nil
		}
	}
	return res
}

// SerializeSupported renders a list of major versions as the space-separated
// wire format used by SupportedString.
func SerializeSupported(vs []int) string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// IsSupported reports whether v's major version is among Supported.
func IsSupported(v string) bool {
	major, _ := ParseProtocol(v)
	for _, s := range Supported {
		if major == s {
			return true
		}
	}
	return false
}

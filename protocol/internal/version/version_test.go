package version_test

import (
	"testing"

	"github.com/edgerpc/mqttrpc/protocol/internal/version"
	"github.com/stretchr/testify/require"
)

func TestParseProtocolDefaultsWhenEmpty(t *testing.T) {
	major, minor := version.ParseProtocol("")
	require.Equal(t, 1, major)
	require.Equal(t, 0, minor)
}

func TestParseProtocolParsesMajorMinor(t *testing.T) {
	major, minor := version.ParseProtocol("2.5")
	require.Equal(t, 2, major)
	require.Equal(t, 5, minor)
}

func TestParseProtocolRejectsMalformed(t *testing.T) {
	tests := []string{"2", "2.x", "x.5", "1.2.3"}
	for _, v := range tests {
		major, _ := version.ParseProtocol(v)
		require.Equal(t, -1, major, v)
	}
}

func TestParseSupportedAndSerializeRoundTrip(t *testing.T) {
	parsed := version.ParseSupported("1 2 3")
	require.Equal(t, []int{1, 2, 3}, parsed)
	require.Equal(t, "1 2 3", version.SerializeSupported(parsed))
}

func TestIsSupported(t *testing.T) {
	require.True(t, version.IsSupported(""))
	require.True(t, version.IsSupported("1.0"))
	require.False(t, version.IsSupported("2.0"))
	require.False(t, version.IsSupported("not-a-version"))
}

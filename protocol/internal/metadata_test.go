package internal

import (
	"testing"

	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/stretchr/testify/require"
)

func TestPropToMetadataDropsInternalProperties(t *testing.T) {
	user := map[string]string{
		"app-key":            "app-value",
		constants.Timestamp:  "1:0:node",
		constants.Partition:  "client-1",
		constants.FencingToken: "3",
	}

	metadata := PropToMetadata(user)
	require.Equal(t, map[string]string{"app-key": "app-value"}, metadata)
}

func TestMetadataToPropDropsCollidingKeys(t *testing.T) {
	metadata := map[string]string{
		"app-key":           "app-value",
		constants.Timestamp: "should-not-cross",
		constants.Partition: "should-not-cross",
	}

	prop := MetadataToProp(metadata)
	require.Equal(t, map[string]string{"app-key": "app-value"}, prop)
}

func TestMetadataRoundTripsThroughProp(t *testing.T) {
	metadata := map[string]string{"region": "us-west", "tier": "gold"}
	prop := MetadataToProp(metadata)
	require.Equal(t, metadata, PropToMetadata(prop))
}

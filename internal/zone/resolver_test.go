package zone

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResolveOutputZoneKeyword(t *testing.T) {
	id, err := ResolveOutput("zone/_audio_zone_3", 8)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestResolveOutputEmptyAddressDefaultsToZero(t *testing.T) {
	id, err := ResolveOutput("", 8)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestResolveOutputMissingKeywordDefaultsToZero(t *testing.T) {
	id, err := ResolveOutput("bottom-speaker", 8)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestResolveOutputNegativeDefaultsToZero(t *testing.T) {
	id, err := ResolveOutput("_audio_zone_-5", 8)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestResolveOutputGarbageDefaultsToZero(t *testing.T) {
	id, err := ResolveOutput("_audio_zone_abc", 8)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestResolveOutputOutOfRangeIsRejected(t *testing.T) {
	_, err := ResolveOutput("_audio_zone_8", 8)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestResolveInputAppliesRemap(t *testing.T) {
	id, err := ResolveInput("_audio_zone_11", 8)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestResolveInputBelowThresholdIsUnchanged(t *testing.T) {
	id, err := ResolveInput("_audio_zone_4", 8)
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

func TestResolveOutputDoesNotApplyInputRemap(t *testing.T) {
	// Output ids at or above the input remap threshold pass straight
	// through rejection, since MAX_CLIENTS (8) < 10 here.
	_, err := ResolveOutput("_audio_zone_11", 8)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

// TestResolveOutputRoundTripsWithinRange is a property test: for every
// valid n in [0, maxClients), embedding n in a bus address and resolving
// it must return exactly n.
func TestResolveOutputRoundTripsWithinRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxClients := rapid.IntRange(1, 16).Draw(t, "maxClients")
		n := rapid.IntRange(0, maxClients-1).Draw(t, "n")
		prefix := rapid.String().Draw(t, "prefix")

		addr := fmt.Sprintf("%s%s%d", prefix, Keyword, n)
		id, err := ResolveOutput(addr, maxClients)
		require.NoError(t, err)
		assert.Equal(t, n, id)
	})
}

// TestResolveOutputRejectsAtOrAboveMax is a property test covering the
// other side of the same boundary.
func TestResolveOutputRejectsAtOrAboveMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxClients := rapid.IntRange(1, 16).Draw(t, "maxClients")
		n := rapid.IntRange(maxClients, maxClients+1000).Draw(t, "n")

		addr := fmt.Sprintf("_audio_zone_%d", n)
		_, err := ResolveOutput(addr, maxClients)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

package response_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbroker/kbroker/internal/protocol/response"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

func TestApiVersionsListsSupportedAPIsSortedByKey(t *testing.T) {
	body := response.ApiVersions(types.ErrNoError)

	errorCode, rest, err := wire.Uint16(body)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.ErrNoError), errorCode)

	n, rest, ok, err := wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(types.SupportedAPIs), n)

	var lastKey uint16
	for i := 0; i < n; i++ {
		var key uint16
		key, rest, err = wire.Uint16(rest)
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, key, lastKey)
		}
		lastKey = key

		_, rest, err = wire.Uint16(rest) // min
		require.NoError(t, err)
		_, rest, err = wire.Uint16(rest) // max
		require.NoError(t, err)
		_, rest, err = wire.TagBuffer(rest)
		require.NoError(t, err)
	}

	throttle, rest, err := wire.Uint32(rest)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), throttle)

	_, rest, err = wire.TagBuffer(rest)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

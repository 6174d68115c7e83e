package request_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

func buildHeader(apiKey, apiVersion int16, correlationId uint32, clientId string) []byte {
	var b []byte
	b = wire.PutUint16(b, uint16(apiKey))
	b = wire.PutUint16(b, uint16(apiVersion))
	b = wire.PutUint32(b, correlationId)
	b = wire.PutLegacyString(b, clientId)
	b = wire.PutTagBuffer(b)
	return b
}

func TestDecodeHeader(t *testing.T) {
	b := buildHeader(18, 4, 7, "kafka-cli")
	hdr, rest, err := request.DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, int16(18), hdr.ApiKey)
	assert.Equal(t, types.Version(4), hdr.ApiVersion)
	assert.Equal(t, types.CorrelationId(7), hdr.CorrelationId)
	assert.Equal(t, "kafka-cli", hdr.ClientId)
	assert.Empty(t, rest)
}

func TestDecodeHeaderTruncatedFails(t *testing.T) {
	b := buildHeader(18, 4, 7, "kafka-cli")
	_, _, err := request.DecodeHeader(b[:3])
	assert.Error(t, err)
}

package response_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbroker/kbroker/internal/protocol/response"
	"github.com/kbroker/kbroker/internal/protocol/types"
)

func TestEnvelopeSizeIsBytesFollowingSizeField(t *testing.T) {
	body := []byte{1, 2, 3}
	out := response.Envelope(types.CorrelationId(42), body)

	// 4 (correlation id) + len(body)
	assert.Equal(t, []byte{0, 0, 0, 7}, out[:4])
	assert.Equal(t, []byte{0, 0, 0, 42}, out[4:8])
	assert.Equal(t, body, out[8:])
}

func TestUnsupportedVersionResponseIsTenBytes(t *testing.T) {
	out := response.UnsupportedVersionResponse(types.CorrelationId(0x6f7fc661))
	assert.Len(t, out, 10)
	assert.Equal(t, []byte{0, 0, 0, 0x0a}, out[:4])
	assert.Equal(t, []byte{0x6f, 0x7f, 0xc6, 0x61}, out[4:8])
	assert.Equal(t, uint16(types.ErrUnsupportedVersion), uint16(out[8])<<8|uint16(out[9]))
}

package request_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

func TestDecodeDescribeTopicPartitions(t *testing.T) {
	var b []byte
	b = wire.PutCompactArrayLen(b, 2)
	b = wire.PutCompactString(b, "foo")
	b = wire.PutTagBuffer(b)
	b = wire.PutCompactString(b, "bar")
	b = wire.PutTagBuffer(b)
	b = wire.PutUint32(b, uint32(int32(-1))) // response_partition_limit sentinel-ish value, not special-cased
	b = wire.PutUint8(b, request.CursorSentinel)

	req, err := request.DecodeDescribeTopicPartitions(b)
	require.NoError(t, err)
	assert.Equal(t, []types.TopicName{"foo", "bar"}, req.Topics)
	assert.Nil(t, req.Cursor)
}

func TestDecodeDescribeTopicPartitionsWithCursor(t *testing.T) {
	var b []byte
	b = wire.PutCompactArrayLen(b, 0)
	b = wire.PutUint32(b, 10)
	b = wire.PutUint8(b, 3)

	req, err := request.DecodeDescribeTopicPartitions(b)
	require.NoError(t, err)
	require.NotNil(t, req.Cursor)
	assert.Equal(t, uint8(3), *req.Cursor)
	assert.Equal(t, int32(10), req.ResponsePartitionLimit)
}

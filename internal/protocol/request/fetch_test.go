package request_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

func TestDecodeFetchSingleTopicSinglePartition(t *testing.T) {
	topicId := uuid.New()

	var b []byte
	b = wire.PutUint32(b, 500) // max wait
	b = wire.PutUint32(b, 1)   // min bytes
	b = wire.PutUint32(b, 1048576)
	b = wire.PutUint8(b, 0) // isolation level
	b = wire.PutUint32(b, 0) // session id
	b = wire.PutUint32(b, 0) // session epoch

	b = wire.PutCompactArrayLen(b, 1) // topics
	b = wire.PutUUID(b, topicId)
	b = wire.PutCompactArrayLen(b, 1) // partitions
	b = wire.PutUint32(b, 0)          // partition index
	b = wire.PutUint32(b, 0xFFFFFFFF) // current leader epoch (absent)
	b = wire.PutUint64(b, 0)          // fetch offset
	b = wire.PutUint32(b, 0xFFFFFFFF) // last fetch epoch (absent)
	b = wire.PutUint64(b, 0)          // log start offset
	b = wire.PutUint32(b, 1048576)    // partition max bytes
	b = wire.PutTagBuffer(b)
	b = wire.PutTagBuffer(b) // topic tag buffer

	b = wire.PutTagBuffer(b)          // fetch trailing tag buffer
	b = wire.PutCompactArrayLen(b, 0) // forgotten topics
	b = wire.PutCompactString(b, "")  // rack id

	req, err := request.DecodeFetch(b)
	require.NoError(t, err)
	assert.Equal(t, types.MaxWait(500), req.MaxWait)
	require.Len(t, req.Topics, 1)
	assert.Equal(t, types.TopicId(topicId), req.Topics[0].TopicId)
	require.Len(t, req.Topics[0].Partitions, 1)
	assert.Equal(t, types.PartitionIndex(0), req.Topics[0].Partitions[0].PartitionIndex)
}

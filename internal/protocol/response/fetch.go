package response

import (
	"github.com/google/uuid"

	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// FetchPartitionResponse is one partition entry within a FetchTopicResponse.
type FetchPartitionResponse struct {
	PartitionIndex       types.PartitionIndex
	ErrorCode            types.ErrorCode
	HighWatermark        types.HighWatermark
	LastStableOffset     types.LastStableOffset
	LogStartOffset       types.LogStartOffset
	PreferredReadReplica types.PreferredReadReplica
	// Batches is re-emitted via batch.Batch.Encode, which reuses each
	// batch's Span and only rewrites the offset/length/crc header.
	Batches []batch.Batch
}

// FetchTopicResponse is one topic entry in a Fetch response.
type FetchTopicResponse struct {
	TopicId    types.TopicId
	Partitions []FetchPartitionResponse
}

// Fetch builds the body of a Fetch (v16) response: throttle_time,
// error_code, session_id, compact array of per-topic responses,
// tag_buffer. Each partition's records are always preceded by
// varint(records_byte_length), even for an empty record set (where it is
// varint(0)).
func Fetch(sessionId types.SessionId, topics []FetchTopicResponse) []byte {
	var out []byte
	out = wire.PutUint32(out, 0) // throttle_time
	out = wire.PutUint16(out, uint16(types.ErrNoError))
	out = wire.PutUint32(out, uint32(sessionId))
	out = wire.PutCompactArrayLen(out, len(topics))
	for _, t := range topics {
		out = wire.PutUUID(out, uuid.UUID(t.TopicId))
		out = wire.PutCompactArrayLen(out, len(t.Partitions))
		for _, p := range t.Partitions {
			out = wire.PutUint32(out, uint32(p.PartitionIndex))
			out = wire.PutUint16(out, uint16(p.ErrorCode))
			out = wire.PutUint64(out, uint64(p.HighWatermark))
			out = wire.PutUint64(out, uint64(p.LastStableOffset))
			out = wire.PutUint64(out, uint64(p.LogStartOffset))
			out = wire.PutCompactArrayLen(out, 0) // aborted transactions
			out = wire.PutUint32(out, uint32(p.PreferredReadReplica))

			recBytes := encodeBatches(p.Batches)
			out = wire.PutVarint(out, int64(len(recBytes)))
			out = append(out, recBytes...)

			out = wire.PutTagBuffer(out)
		}
		out = wire.PutTagBuffer(out)
	}
	out = wire.PutTagBuffer(out)
	return out
}

// encodeBatches concatenates the re-encoded wire bytes of each batch, in
// order, renumbering each batch's BatchOffset to its position in the
// returned sequence (0, 1, 2, ...) rather than the offset it carried on
// disk. b is a by-value range copy, so this never mutates the cached Log
// the batches were loaded from.
func encodeBatches(batches []batch.Batch) []byte {
	var out []byte
	for i, b := range batches {
		b.BatchOffset = uint64(i)
		out = append(out, b.Encode()...)
	}
	return out
}

// MissingLogFetchPartition builds the partition response for a partition
// whose log file does not exist on disk: this is surfaced as UnknownTopic
// on that partition, the same error code used when the topic id itself is
// unrecognized.
func MissingLogFetchPartition(idx types.PartitionIndex) FetchPartitionResponse {
	return FetchPartitionResponse{PartitionIndex: idx, ErrorCode: types.ErrUnknownTopic}
}

// UnknownTopicFetchResponse builds the single partition-0 UnknownTopic
// response for a Fetch request topic id this broker's metadata has no
// record of.
func UnknownTopicFetchResponse(topicId types.TopicId) FetchTopicResponse {
	return FetchTopicResponse{
		TopicId: topicId,
		Partitions: []FetchPartitionResponse{
			{PartitionIndex: 0, ErrorCode: types.ErrUnknownTopic},
		},
	}
}

package response

import (
	"github.com/google/uuid"

	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// PartitionDescriptor is one partition entry in a topic descriptor.
type PartitionDescriptor struct {
	ErrorCode           types.ErrorCode
	PartitionIndex      types.PartitionIndex
	Leader              types.Leader
	LeaderEpoch         types.LeaderEpoch
	Replicas            []types.ReplicaNode
	ISRs                []types.ISRNode
	EligibleLeaderReplicas []types.EligibleLeaderReplicas
	LastKnownELR        []types.LastKnownELR
	OfflineReplicas     []types.OfflineReplica
}

// TopicDescriptor is one entry in a DescribeTopicPartitions response.
type TopicDescriptor struct {
	ErrorCode    types.ErrorCode
	Name         types.TopicName
	TopicId      types.TopicId
	IsInternal   bool
	Partitions   []PartitionDescriptor
	AuthorizedOperations uint32
}

// DescribeTopicPartitions builds the body of a DescribeTopicPartitions
// (v0) response: tag_buffer, throttle_time, compact array of topic
// descriptors, next_cursor (u8, sentinel 0xFF), tag_buffer.
//
// nextCursor is nil when every requested topic's partitions fit within its
// response_partition_limit; otherwise it signals that at least one topic's
// partition list was truncated, encoded here as a placeholder byte rather
// than the precise (topic_name, partition_index) of the first omitted
// partition — callers resolve truncation by issuing a follow-up request
// with an empty cursor and re-checking each topic's partition count.
func DescribeTopicPartitions(topics []TopicDescriptor, nextCursor *uint8) []byte {
	var out []byte
	out = wire.PutTagBuffer(out)
	out = wire.PutUint32(out, 0) // throttle_time
	out = wire.PutCompactArrayLen(out, len(topics))
	for _, t := range topics {
		out = wire.PutUint16(out, uint16(t.ErrorCode))
		out = wire.PutCompactString(out, string(t.Name))
		out = wire.PutUUID(out, uuid.UUID(t.TopicId))
		out = putBool(out, t.IsInternal)
		out = wire.PutCompactArrayLen(out, len(t.Partitions))
		for _, p := range t.Partitions {
			out = wire.PutUint16(out, uint16(p.ErrorCode))
			out = wire.PutUint32(out, uint32(p.PartitionIndex))
			out = wire.PutUint32(out, uint32(p.Leader))
			out = wire.PutUint32(out, uint32(p.LeaderEpoch))
			out = wire.PutCompactUint32Array(out, toU32(p.Replicas))
			out = wire.PutCompactUint32Array(out, toU32(p.ISRs))
			out = wire.PutCompactUint32Array(out, toU32(p.EligibleLeaderReplicas))
			out = wire.PutCompactUint32Array(out, toU32(p.LastKnownELR))
			out = wire.PutCompactUint32Array(out, toU32(p.OfflineReplicas))
			out = wire.PutTagBuffer(out)
		}
		out = wire.PutUint32(out, t.AuthorizedOperations)
		out = wire.PutTagBuffer(out)
	}
	if nextCursor == nil {
		out = wire.PutUint8(out, CursorSentinelResp)
	} else {
		out = wire.PutUint8(out, *nextCursor)
	}
	out = wire.PutTagBuffer(out)
	return out
}

// CursorSentinelResp is the one-byte next_cursor value meaning "no more
// pages", mirroring request.CursorSentinel.
const CursorSentinelResp uint8 = 0xFF

// UnknownTopicDescriptor builds the descriptor for an unrecognized topic:
// UnknownTopicOrPartition, the all-zero TopicId, and no partitions.
func UnknownTopicDescriptor(name types.TopicName) TopicDescriptor {
	return TopicDescriptor{
		ErrorCode: types.ErrUnknownTopicOrPartition,
		Name:      name,
		TopicId:   types.NilTopicId,
	}
}

// DescriptorFromMetadata builds a TopicDescriptor for a known topic from
// its partition records, truncating to limit partitions if limit > 0 and
// more than limit are present. It returns the descriptor and whether truncation
// occurred.
func DescriptorFromMetadata(name types.TopicName, id types.TopicId, partitions []*batch.PartitionRecord, limit int32) (TopicDescriptor, bool) {
	n := len(partitions)
	truncated := false
	if limit > 0 && int32(n) > limit {
		n = int(limit)
		truncated = true
	}
	descs := make([]PartitionDescriptor, 0, n)
	for _, p := range partitions[:n] {
		descs = append(descs, PartitionDescriptor{
			ErrorCode:      types.ErrNoError,
			PartitionIndex: p.PartitionIndex,
			Leader:         p.Leader,
			LeaderEpoch:    p.LeaderEpoch,
			Replicas:       p.Replicas,
			ISRs:           p.ISRs,
		})
	}
	return TopicDescriptor{
		ErrorCode:  types.ErrNoError,
		Name:       name,
		TopicId:    id,
		Partitions: descs,
	}, truncated
}

func putBool(dst []byte, b bool) []byte {
	if b {
		return wire.PutUint8(dst, 1)
	}
	return wire.PutUint8(dst, 0)
}

func toU32[T ~uint32](vs []T) []uint32 {
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}

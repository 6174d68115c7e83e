package batch

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/errs"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// Value type tags read off the byte at value offset 1.
const (
	TagFeatureLevel byte = 0x0C
	TagTopic        byte = 0x02
	TagPartition    byte = 0x03
)

// Header is a single record header (key/value pair); the broker never
// produces records with headers of its own, but must round-trip any it
// reads off disk.
type Header struct {
	Key   string
	Value []byte
}

// FeatureLevelRecord carries an opaque feature-level payload; the broker
// has no use for its contents beyond preserving the raw bytes on re-emit.
type FeatureLevelRecord struct {
	Raw []byte
}

// TopicRecord names a topic and assigns it a globally unique id.
type TopicRecord struct {
	FrameVersion uint8
	ValueVersion uint8
	Name         types.TopicName
	Id           types.TopicId
}

// PartitionRecord describes one partition of a topic: its replica set,
// in-sync replica set, leader, and epoch bookkeeping.
type PartitionRecord struct {
	FrameVersion    uint8
	ValueVersion    uint8
	PartitionIndex  types.PartitionIndex
	TopicId         types.TopicId
	Replicas        []types.ReplicaNode
	ISRs            []types.ISRNode
	RemovingReplicas []types.RemovingReplica
	AddingReplicas   []types.AddingReplica
	Leader          types.Leader
	LeaderEpoch     types.LeaderEpoch
	PartitionEpoch  types.PartitionEpoch
	// Directories lists the per-replica data directory UUIDs. No response
	// in this broker currently echoes it back; it is kept so
	// PartitionRecord stays a faithful mirror of the on-disk record.
	Directories []uuid.UUID
}

// RawRecordValue preserves the bytes of a record value whose type tag this
// broker does not recognize.
type RawRecordValue struct {
	Tag byte
	Raw []byte
}

// Record is one entry in a batch: an attributes byte, timestamp/offset
// deltas relative to the batch header, an optional key, a typed value, and
// a headers array.
type Record struct {
	Attributes     uint8
	TimestampDelta int64
	OffsetDelta    int64
	Key            []byte // nil means absent
	Value          any    // one of *FeatureLevelRecord, *TopicRecord, *PartitionRecord, *RawRecordValue
	Headers        []Header
}

// decodeRecord decodes a single record body (the bytes between the
// signed-varint length prefix read by the caller).
func decodeRecord(b []byte) (Record, error) {
	var rec Record
	var err error

	rec.Attributes, b, err = wire.Uint8(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record attributes")
	}
	rec.TimestampDelta, b, err = wire.Varint(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record timestamp delta")
	}
	rec.OffsetDelta, b, err = wire.Varint(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record offset delta")
	}

	keyLen, rest, err := wire.Varint(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record key length")
	}
	b = rest
	if keyLen >= 0 {
		if int64(len(b)) < keyLen {
			return rec, errs.MalformedFrame("record key truncated")
		}
		rec.Key = b[:keyLen]
		b = b[keyLen:]
	}

	valLen, rest, err := wire.Varint(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record value length")
	}
	b = rest
	if valLen < 0 {
		return rec, errs.MalformedFrame("record value length is negative")
	}
	if int64(len(b)) < valLen {
		return rec, errs.MalformedFrame("record value truncated")
	}
	valBytes := b[:valLen]
	b = b[valLen:]

	rec.Value, err = decodeRecordValue(valBytes)
	if err != nil {
		return rec, err
	}

	headerCount, rest, err := wire.Varint(b)
	if err != nil {
		return rec, errors.WithMessage(err, "record header count")
	}
	b = rest
	rec.Headers = make([]Header, 0, max0(headerCount))
	for i := int64(0); i < headerCount; i++ {
		var h Header
		hkLen, rest, err := wire.Varint(b)
		if err != nil {
			return rec, errors.WithMessage(err, "header key length")
		}
		b = rest
		if hkLen < 0 || int64(len(b)) < hkLen {
			return rec, errs.MalformedFrame("header key truncated")
		}
		h.Key = string(b[:hkLen])
		b = b[hkLen:]

		hvLen, rest, err := wire.Varint(b)
		if err != nil {
			return rec, errors.WithMessage(err, "header value length")
		}
		b = rest
		if hvLen >= 0 {
			if int64(len(b)) < hvLen {
				return rec, errs.MalformedFrame("header value truncated")
			}
			h.Value = b[:hvLen]
			b = b[hvLen:]
		}
		rec.Headers = append(rec.Headers, h)
	}

	return rec, nil
}

// encodeRecord serializes a single record body in the layout decodeRecord
// expects: attributes, timestamp/offset deltas, key, value, headers.
func encodeRecord(r Record) []byte {
	var out []byte
	out = wire.PutUint8(out, r.Attributes)
	out = wire.PutVarint(out, r.TimestampDelta)
	out = wire.PutVarint(out, r.OffsetDelta)

	if r.Key == nil {
		out = wire.PutVarint(out, -1)
	} else {
		out = wire.PutVarint(out, int64(len(r.Key)))
		out = append(out, r.Key...)
	}

	valBytes := encodeRecordValue(r.Value)
	out = wire.PutVarint(out, int64(len(valBytes)))
	out = append(out, valBytes...)

	out = wire.PutVarint(out, int64(len(r.Headers)))
	for _, h := range r.Headers {
		out = wire.PutVarint(out, int64(len(h.Key)))
		out = append(out, h.Key...)
		if h.Value == nil {
			out = wire.PutVarint(out, -1)
		} else {
			out = wire.PutVarint(out, int64(len(h.Value)))
			out = append(out, h.Value...)
		}
	}
	return out
}

// encodeRecordValue serializes whichever concrete value type r holds back
// to its raw wire form. FeatureLevelRecord and RawRecordValue already carry
// their raw bytes; Topic and Partition values are re-assembled field by
// field.
func encodeRecordValue(v any) []byte {
	switch val := v.(type) {
	case *FeatureLevelRecord:
		return val.Raw
	case *RawRecordValue:
		return val.Raw
	case *TopicRecord:
		var out []byte
		out = wire.PutUint8(out, val.FrameVersion)
		out = wire.PutUint8(out, TagTopic)
		out = wire.PutUint8(out, val.ValueVersion)
		out = wire.PutCompactString(out, string(val.Name))
		out = wire.PutUUID(out, uuid.UUID(val.Id))
		out = wire.PutTagBuffer(out)
		return out
	case *PartitionRecord:
		var out []byte
		out = wire.PutUint8(out, val.FrameVersion)
		out = wire.PutUint8(out, TagPartition)
		out = wire.PutUint8(out, val.ValueVersion)
		out = wire.PutUint32(out, uint32(val.PartitionIndex))
		out = wire.PutUUID(out, uuid.UUID(val.TopicId))
		out = wire.PutCompactUint32Array(out, fromReplicaNodes(val.Replicas))
		out = wire.PutCompactUint32Array(out, fromISRNodes(val.ISRs))
		out = wire.PutCompactUint32Array(out, fromRemovingReplicas(val.RemovingReplicas))
		out = wire.PutCompactUint32Array(out, fromAddingReplicas(val.AddingReplicas))
		out = wire.PutUint32(out, uint32(val.Leader))
		out = wire.PutUint32(out, uint32(val.LeaderEpoch))
		out = wire.PutUint32(out, uint32(val.PartitionEpoch))
		out = wire.PutCompactArrayLen(out, len(val.Directories))
		for _, d := range val.Directories {
			out = wire.PutUUID(out, d)
		}
		out = wire.PutTagBuffer(out)
		return out
	default:
		return nil
	}
}

func fromReplicaNodes(vs []types.ReplicaNode) []uint32 {
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}

func fromISRNodes(vs []types.ISRNode) []uint32 {
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}

func fromRemovingReplicas(vs []types.RemovingReplica) []uint32 {
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}

func fromAddingReplicas(vs []types.AddingReplica) []uint32 {
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}

func max0(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// decodeRecordValue dispatches on the type tag at value byte offset 1.
func decodeRecordValue(v []byte) (any, error) {
	if len(v) < 2 {
		return nil, errs.MalformedFrame("record value too short to carry a type tag")
	}
	tag := v[1]
	switch tag {
	case TagFeatureLevel:
		return &FeatureLevelRecord{Raw: append([]byte(nil), v...)}, nil
	case TagTopic:
		return decodeTopicValue(v)
	case TagPartition:
		return decodePartitionValue(v)
	default:
		return &RawRecordValue{Tag: tag, Raw: append([]byte(nil), v...)}, nil
	}
}

// decodeTopicValue decodes the Topic value layout: frame_version(u8),
// type(u8), value_version(u8), compact_string(name), 16-byte topic_id,
// tag_buffer.
func decodeTopicValue(v []byte) (*TopicRecord, error) {
	frameVersion, rest, err := wire.Uint8(v)
	if err != nil {
		return nil, errors.WithMessage(err, "topic frame version")
	}
	_, rest, err = wire.Uint8(rest) // type tag, already dispatched on
	if err != nil {
		return nil, errors.WithMessage(err, "topic type tag")
	}
	valueVersion, rest, err := wire.Uint8(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "topic value version")
	}
	name, rest, err := wire.CompactString(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "topic name")
	}
	id, rest, err := wire.UUID(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "topic id")
	}
	_, _, err = wire.TagBuffer(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "topic tag buffer")
	}
	return &TopicRecord{
		FrameVersion: frameVersion,
		ValueVersion: valueVersion,
		Name:         types.TopicName(name),
		Id:           types.TopicId(id),
	}, nil
}

// decodePartitionValue decodes the Partition value layout.
func decodePartitionValue(v []byte) (*PartitionRecord, error) {
	frameVersion, rest, err := wire.Uint8(v)
	if err != nil {
		return nil, errors.WithMessage(err, "partition frame version")
	}
	_, rest, err = wire.Uint8(rest) // type tag
	if err != nil {
		return nil, errors.WithMessage(err, "partition type tag")
	}
	valueVersion, rest, err := wire.Uint8(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "partition value version")
	}
	partitionIndex, rest, err := wire.Uint32(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "partition index")
	}
	topicId, rest, err := wire.UUID(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "partition topic id")
	}
	replicas, rest, err := wire.CompactUint32Array(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "replicas")
	}
	isrs, rest, err := wire.CompactUint32Array(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "isrs")
	}
	removing, rest, err := wire.CompactUint32Array(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "removing replicas")
	}
	adding, rest, err := wire.CompactUint32Array(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "adding replicas")
	}
	leader, rest, err := wire.Uint32(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "leader")
	}
	leaderEpoch, rest, err := wire.Uint32(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "leader epoch")
	}
	partitionEpoch, rest, err := wire.Uint32(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "partition epoch")
	}
	dirCount, rest, ok, err := wire.CompactArrayLen(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "directories length")
	}
	var dirs []uuid.UUID
	if ok {
		dirs = make([]uuid.UUID, dirCount)
		for i := 0; i < dirCount; i++ {
			var u uuid.UUID
			u, rest, err = wire.UUID(rest)
			if err != nil {
				return nil, errors.WithMessagef(err, "directory %d", i)
			}
			dirs[i] = u
		}
	}
	_, _, err = wire.TagBuffer(rest)
	if err != nil {
		return nil, errors.WithMessage(err, "partition tag buffer")
	}

	return &PartitionRecord{
		FrameVersion:     frameVersion,
		ValueVersion:     valueVersion,
		PartitionIndex:   types.PartitionIndex(partitionIndex),
		TopicId:          types.TopicId(topicId),
		Replicas:         toReplicaNodes(replicas),
		ISRs:             toISRNodes(isrs),
		RemovingReplicas: toRemovingReplicas(removing),
		AddingReplicas:   toAddingReplicas(adding),
		Leader:           types.Leader(leader),
		LeaderEpoch:      types.LeaderEpoch(leaderEpoch),
		PartitionEpoch:   types.PartitionEpoch(partitionEpoch),
		Directories:      dirs,
	}, nil
}

func toReplicaNodes(vs []uint32) []types.ReplicaNode {
	out := make([]types.ReplicaNode, len(vs))
	for i, v := range vs {
		out[i] = types.ReplicaNode(v)
	}
	return out
}

func toISRNodes(vs []uint32) []types.ISRNode {
	out := make([]types.ISRNode, len(vs))
	for i, v := range vs {
		out[i] = types.ISRNode(v)
	}
	return out
}

func toRemovingReplicas(vs []uint32) []types.RemovingReplica {
	out := make([]types.RemovingReplica, len(vs))
	for i, v := range vs {
		out[i] = types.RemovingReplica(v)
	}
	return out
}

func toAddingReplicas(vs []uint32) []types.AddingReplica {
	out := make([]types.AddingReplica, len(vs))
	for i, v := range vs {
		out[i] = types.AddingReplica(v)
	}
	return out
}

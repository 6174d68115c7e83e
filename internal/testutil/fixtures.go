// Package testutil builds small, hand-assembled cluster metadata logs and
// partition logs for tests, the way kapacitor's kafkatest package offers a
// fake Kafka server instead of making every test dial a real broker.
// Nothing here is wire-exact beyond what decode actually validates: CRCs
// are left as placeholders since batch decode does not check them.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// Topic describes one topic-and-partitions fixture to assemble into a
// cluster metadata log.
type Topic struct {
	Name       string
	Id         uuid.UUID
	Partitions []Partition
}

// Partition describes one partition record fixture.
type Partition struct {
	Index       uint32
	Leader      uint32
	LeaderEpoch uint32
	Replicas    []uint32
	ISRs        []uint32
}

// BuildMetadataLog assembles a cluster metadata log byte stream: one batch
// per topic, carrying that topic's TopicRecord followed by a
// PartitionRecord for each of its partitions.
func BuildMetadataLog(t *testing.T, topics []Topic) []byte {
	t.Helper()
	var out []byte
	offset := uint64(0)
	for _, topic := range topics {
		records := [][]byte{topicRecordValue(topic.Name, topic.Id)}
		for _, p := range topic.Partitions {
			records = append(records, partitionRecordValue(topic.Id, p))
		}
		out = append(out, buildBatch(t, offset, records)...)
		offset += uint64(len(records))
	}
	return out
}

// BuildPartitionLog assembles a single-batch partition log carrying count
// FeatureLevel records as placeholder payloads, starting at baseOffset.
func BuildPartitionLog(t *testing.T, baseOffset uint64, count int) []byte {
	t.Helper()
	records := make([][]byte, count)
	for i := range records {
		records[i] = featureLevelRecordValue(byte(i))
	}
	return buildBatch(t, baseOffset, records)
}

// WritePartitionLog writes a partition log fixture to
// <dir>/<topic>-<partition>/00000000000000000000.log, matching the layout
// internal/logstore.Store expects.
func WritePartitionLog(t *testing.T, dir, topic string, partition uint32, data []byte) {
	t.Helper()
	partDir := filepath.Join(dir, topic+"-"+itoa(partition))
	require(t, os.MkdirAll(partDir, 0o755))
	require(t, os.WriteFile(filepath.Join(partDir, "00000000000000000000.log"), data, 0o644))
}

func require(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func topicRecordValue(name string, id uuid.UUID) []byte {
	var value []byte
	value = wire.PutUint8(value, 1)
	value = wire.PutUint8(value, batch.TagTopic)
	value = wire.PutUint8(value, 0)
	value = wire.PutCompactString(value, name)
	value = wire.PutUUID(value, id)
	value = wire.PutTagBuffer(value)
	return value
}

func partitionRecordValue(topicId uuid.UUID, p Partition) []byte {
	var value []byte
	value = wire.PutUint8(value, 1)
	value = wire.PutUint8(value, batch.TagPartition)
	value = wire.PutUint8(value, 0)
	value = wire.PutUint32(value, p.Index)
	value = wire.PutUUID(value, topicId)
	value = wire.PutCompactUint32Array(value, p.Replicas)
	value = wire.PutCompactUint32Array(value, p.ISRs)
	value = wire.PutCompactUint32Array(value, nil) // removing replicas
	value = wire.PutCompactUint32Array(value, nil) // adding replicas
	value = wire.PutUint32(value, p.Leader)
	value = wire.PutUint32(value, p.LeaderEpoch)
	value = wire.PutUint32(value, 0) // partition epoch
	value = wire.PutCompactArrayLen(value, 0) // directories
	value = wire.PutTagBuffer(value)
	return value
}

func featureLevelRecordValue(tag byte) []byte {
	var value []byte
	value = wire.PutUint8(value, 0)
	value = wire.PutUint8(value, batch.TagFeatureLevel)
	value = append(value, tag)
	return value
}

// buildBatch assembles a full batch stream entry (8-byte offset header
// through the record array) from a list of already-encoded record values.
func buildBatch(t *testing.T, baseOffset uint64, values [][]byte) []byte {
	t.Helper()

	var span []byte
	span = wire.PutUint16(span, 0)
	span = wire.PutUint32(span, uint32(max0(len(values)-1)))
	span = wire.PutUint64(span, 0)
	span = wire.PutUint64(span, 0)
	span = wire.PutUint64(span, 0xFFFFFFFFFFFFFFFF)
	span = wire.PutUint16(span, 0xFFFF)
	span = wire.PutUint32(span, 0xFFFFFFFF)
	span = wire.PutUint32(span, uint32(len(values)))
	for i, v := range values {
		record := encodeFixtureRecord(i, v)
		span = wire.PutVarint(span, int64(len(record)))
		span = append(span, record...)
	}

	var body []byte
	body = wire.PutUint32(body, 0)
	body = wire.PutUint8(body, 2)
	body = wire.PutUint32(body, 0)
	body = append(body, span...)

	var stream []byte
	stream = wire.PutUint64(stream, baseOffset)
	stream = wire.PutUint32(stream, uint32(len(body)))
	stream = append(stream, body...)
	return stream
}

func encodeFixtureRecord(offsetDelta int, value []byte) []byte {
	var record []byte
	record = wire.PutUint8(record, 0)
	record = wire.PutVarint(record, 0)
	record = wire.PutVarint(record, int64(offsetDelta))
	record = wire.PutVarint(record, -1)
	record = wire.PutVarint(record, int64(len(value)))
	record = append(record, value...)
	record = wire.PutVarint(record, 0)
	return record
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

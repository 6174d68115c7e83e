package broker_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbroker/kbroker/internal/broker"
	"github.com/kbroker/kbroker/internal/logstore"
	"github.com/kbroker/kbroker/internal/metadata"
	"github.com/kbroker/kbroker/internal/protocol/batch"
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
	"github.com/kbroker/kbroker/internal/testutil"
)

// startTestBroker loads a metadata log built from topics, starts the
// broker on an ephemeral localhost port, and returns a dialer and the
// partition-log root directory (so a test can write fixture logs into it
// before fetching). Shutdown is registered with t.Cleanup.
func startTestBroker(t *testing.T, topics []testutil.Topic) (dial func() net.Conn, logsDir string) {
	t.Helper()

	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta.log")
	require.NoError(t, os.WriteFile(metaPath, testutil.BuildMetadataLog(t, topics), 0o644))

	logger := zap.NewNop()
	md, err := metadata.Load(metaPath, logger)
	require.NoError(t, err)

	logsDir = filepath.Join(dir, "logs")
	logs := logstore.NewStore(logsDir, logger)
	b := broker.New(logger, md, logs)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.ServeListener(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	addr := ln.Addr().String()
	dial = func() net.Conn {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		require.NoError(t, err)
		return conn
	}
	return dial, logsDir
}

func sendRequest(t *testing.T, conn net.Conn, body []byte) []byte {
	t.Helper()
	var frame []byte
	frame = wire.PutUint32(frame, uint32(len(body)))
	frame = append(frame, body...)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	var sizeBuf [4]byte
	_, err = io.ReadFull(conn, sizeBuf[:])
	require.NoError(t, err)
	size := binary.BigEndian.Uint32(sizeBuf[:])

	resp := make([]byte, size)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	return resp
}

func buildRequestHeader(apiKey, apiVersion int16, correlationId uint32) []byte {
	var b []byte
	b = wire.PutUint16(b, uint16(apiKey))
	b = wire.PutUint16(b, uint16(apiVersion))
	b = wire.PutUint32(b, correlationId)
	b = wire.PutLegacyString(b, "test-client")
	b = wire.PutTagBuffer(b)
	return b
}

func TestApiVersionsRequestResponse(t *testing.T) {
	dial, _ := startTestBroker(t, nil)
	conn := dial()
	defer conn.Close()

	body := buildRequestHeader(int16(types.ApiKeyApiVersions), 4, 99)
	resp := sendRequest(t, conn, body)

	correlationId, rest, err := wire.Uint32(resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), correlationId)

	errorCode, _, err := wire.Uint16(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.ErrNoError), errorCode)
}

func TestUnsupportedApiVersionGetsFixedErrorResponseAndStaysOpen(t *testing.T) {
	dial, _ := startTestBroker(t, nil)
	conn := dial()
	defer conn.Close()

	body := buildRequestHeader(int16(types.ApiKeyApiVersions), 99, 7)
	var frame []byte
	frame = wire.PutUint32(frame, uint32(len(body)))
	frame = append(frame, body...)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	fixed := make([]byte, 10)
	_, err = io.ReadFull(conn, fixed)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0x0a}, fixed[:4])
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(fixed[4:8]))
	assert.Equal(t, uint16(types.ErrUnsupportedVersion), binary.BigEndian.Uint16(fixed[8:10]))

	// Connection must stay open: a second, valid request still succeeds.
	body2 := buildRequestHeader(int16(types.ApiKeyApiVersions), 4, 8)
	resp := sendRequest(t, conn, body2)
	correlationId, _, err := wire.Uint32(resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), correlationId)
}

func TestDescribeTopicPartitionsUnknownTopic(t *testing.T) {
	dial, _ := startTestBroker(t, nil)
	conn := dial()
	defer conn.Close()

	hdr := buildRequestHeader(int16(types.ApiKeyDescribeTopicPartitions), 0, 1)
	var reqBody []byte
	reqBody = wire.PutCompactArrayLen(reqBody, 1)
	reqBody = wire.PutCompactString(reqBody, "missing-topic")
	reqBody = wire.PutTagBuffer(reqBody)
	reqBody = wire.PutUint32(reqBody, 0) // response partition limit
	reqBody = wire.PutUint8(reqBody, 0xFF)

	resp := sendRequest(t, conn, append(hdr, reqBody...))

	_, rest, err := wire.Uint32(resp)
	require.NoError(t, err)
	_, rest, err = wire.TagBuffer(rest)
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // throttle time
	require.NoError(t, err)
	n, rest, ok, err := wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, n)

	errorCode, _, err := wire.Uint16(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.ErrUnknownTopicOrPartition), errorCode)
}

// buildFetchRequestBody assembles a Fetch request body for a single topic,
// requesting the given partition indexes.
func buildFetchRequestBody(topicId uuid.UUID, partitionIndexes []uint32) []byte {
	var reqBody []byte
	reqBody = wire.PutUint32(reqBody, 500)  // max wait
	reqBody = wire.PutUint32(reqBody, 1)    // min bytes
	reqBody = wire.PutUint32(reqBody, 1048576) // max bytes
	reqBody = wire.PutUint8(reqBody, 0)     // isolation level
	reqBody = wire.PutUint32(reqBody, 0)    // session id
	reqBody = wire.PutUint32(reqBody, 0)    // session epoch
	reqBody = wire.PutCompactArrayLen(reqBody, 1)
	reqBody = wire.PutUUID(reqBody, topicId)
	reqBody = wire.PutCompactArrayLen(reqBody, len(partitionIndexes))
	for _, idx := range partitionIndexes {
		reqBody = wire.PutUint32(reqBody, idx)
		reqBody = wire.PutUint32(reqBody, 0xFFFFFFFF) // current leader epoch
		reqBody = wire.PutUint64(reqBody, 0)           // fetch offset
		reqBody = wire.PutUint32(reqBody, 0xFFFFFFFF) // last fetch epoch
		reqBody = wire.PutUint64(reqBody, 0)           // log start offset
		reqBody = wire.PutUint32(reqBody, 1048576)     // partition max bytes
		reqBody = wire.PutTagBuffer(reqBody)
	}
	reqBody = wire.PutTagBuffer(reqBody) // topic tag buffer
	reqBody = wire.PutTagBuffer(reqBody) // fetch trailing tag buffer
	reqBody = wire.PutCompactArrayLen(reqBody, 0) // forgotten topics
	reqBody = wire.PutCompactString(reqBody, "")  // rack id
	return reqBody
}

func TestFetchUnknownTopicId(t *testing.T) {
	dial, _ := startTestBroker(t, nil)
	conn := dial()
	defer conn.Close()

	hdr := buildRequestHeader(int16(types.ApiKeyFetch), 16, 2)
	topicId := uuid.New()
	reqBody := buildFetchRequestBody(topicId, []uint32{0})

	resp := sendRequest(t, conn, append(hdr, reqBody...))

	_, rest, err := wire.Uint32(resp) // correlation id
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // throttle time
	require.NoError(t, err)
	_, rest, err = wire.Uint16(rest) // error code
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // session id
	require.NoError(t, err)
	n, rest, ok, err := wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, n)

	_, rest, err = wire.UUID(rest)
	require.NoError(t, err)
	_, rest, ok, err = wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)

	_, rest, err = wire.Uint32(rest) // partition index
	require.NoError(t, err)
	errorCode, _, err := wire.Uint16(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.ErrUnknownTopic), errorCode)
}

// TestFetchMultiplePartitionsOfSameTopic fetches partitions 0 and 1 of the
// same topic id in one request. This exercises the logstore cache keyed by
// (topic_id, partition_index): caching partition 0 first must not shadow a
// later load of partition 1 of that same topic.
func TestFetchMultiplePartitionsOfSameTopic(t *testing.T) {
	topicId := uuid.New()
	topics := []testutil.Topic{{
		Name: "orders",
		Id:   topicId,
		Partitions: []testutil.Partition{
			{Index: 0, Leader: 1, Replicas: []uint32{1}, ISRs: []uint32{1}},
			{Index: 1, Leader: 1, Replicas: []uint32{1}, ISRs: []uint32{1}},
		},
	}}
	dial, logsDir := startTestBroker(t, topics)
	testutil.WritePartitionLog(t, logsDir, "orders", 0, testutil.BuildPartitionLog(t, 0, 2))
	testutil.WritePartitionLog(t, logsDir, "orders", 1, testutil.BuildPartitionLog(t, 0, 5))

	conn := dial()
	defer conn.Close()

	hdr := buildRequestHeader(int16(types.ApiKeyFetch), 16, 3)
	reqBody := buildFetchRequestBody(topicId, []uint32{0, 1})
	resp := sendRequest(t, conn, append(hdr, reqBody...))

	_, rest, err := wire.Uint32(resp) // correlation id
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // throttle time
	require.NoError(t, err)
	_, rest, err = wire.Uint16(rest) // error code
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // session id
	require.NoError(t, err)
	topicCount, rest, ok, err := wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, topicCount)

	_, rest, err = wire.UUID(rest) // topic id
	require.NoError(t, err)
	partCount, rest, ok, err := wire.CompactArrayLen(rest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, partCount)

	for want := 0; want < partCount; want++ {
		idx, r, err := wire.Uint32(rest)
		require.NoError(t, err)
		assert.Equal(t, uint32(want), idx)
		rest = r

		errorCode, r, err := wire.Uint16(rest)
		require.NoError(t, err)
		require.Equal(t, uint16(types.ErrNoError), errorCode)
		rest = r

		_, rest, err = wire.Uint64(rest) // high watermark
		require.NoError(t, err)
		_, rest, err = wire.Uint64(rest) // last stable offset
		require.NoError(t, err)
		_, rest, err = wire.Uint64(rest) // log start offset
		require.NoError(t, err)
		_, rest, _, err = wire.CompactArrayLen(rest) // aborted transactions
		require.NoError(t, err)
		_, rest, err = wire.Uint32(rest) // preferred read replica
		require.NoError(t, err)

		recordsLen, r2, err := wire.Varint(rest)
		require.NoError(t, err)
		rest = r2
		rest = rest[recordsLen:]
		_, rest, err = wire.TagBuffer(rest) // partition tag buffer
		require.NoError(t, err)
	}
}

// TestFetchRenumbersOnDiskBatchOffsetEndToEnd writes a partition log whose
// batch was produced at a nonzero base offset and confirms the broker's
// Fetch response renumbers it to 0, exercising the full
// broker -> logstore -> response.Fetch path rather than calling
// response.Fetch directly.
func TestFetchRenumbersOnDiskBatchOffsetEndToEnd(t *testing.T) {
	topicId := uuid.New()
	topics := []testutil.Topic{{
		Name: "orders",
		Id:   topicId,
		Partitions: []testutil.Partition{
			{Index: 0, Leader: 1, Replicas: []uint32{1}, ISRs: []uint32{1}},
		},
	}}
	dial, logsDir := startTestBroker(t, topics)
	testutil.WritePartitionLog(t, logsDir, "orders", 0, testutil.BuildPartitionLog(t, 77, 3))

	conn := dial()
	defer conn.Close()

	hdr := buildRequestHeader(int16(types.ApiKeyFetch), 16, 4)
	reqBody := buildFetchRequestBody(topicId, []uint32{0})
	resp := sendRequest(t, conn, append(hdr, reqBody...))

	_, rest, err := wire.Uint32(resp) // correlation id
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // throttle time
	require.NoError(t, err)
	_, rest, err = wire.Uint16(rest) // error code
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // session id
	require.NoError(t, err)
	_, rest, _, err = wire.CompactArrayLen(rest) // topics
	require.NoError(t, err)
	_, rest, err = wire.UUID(rest) // topic id
	require.NoError(t, err)
	_, rest, _, err = wire.CompactArrayLen(rest) // partitions
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // partition index
	require.NoError(t, err)
	errorCode, rest, err := wire.Uint16(rest)
	require.NoError(t, err)
	require.Equal(t, uint16(types.ErrNoError), errorCode)
	_, rest, err = wire.Uint64(rest) // high watermark
	require.NoError(t, err)
	_, rest, err = wire.Uint64(rest) // last stable offset
	require.NoError(t, err)
	_, rest, err = wire.Uint64(rest) // log start offset
	require.NoError(t, err)
	_, rest, _, err = wire.CompactArrayLen(rest) // aborted transactions
	require.NoError(t, err)
	_, rest, err = wire.Uint32(rest) // preferred read replica
	require.NoError(t, err)

	recordsLen, rest, err := wire.Varint(rest)
	require.NoError(t, err)
	require.Greater(t, recordsLen, int64(0))

	redecoded, err := batch.DecodeStream(rest[:recordsLen])
	require.NoError(t, err)
	require.Len(t, redecoded, 1)
	assert.Equal(t, uint64(0), redecoded[0].BatchOffset)
}

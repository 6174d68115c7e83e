package request

import (
	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// CursorSentinel is the one-byte cursor value meaning "no cursor".
const CursorSentinel uint8 = 0xFF

// DescribeTopicPartitionsRequest asks for the partitions of a set of
// topics. Each topic name decodes as a compact string (matching the real
// protocol), not a one-byte legacy length.
type DescribeTopicPartitionsRequest struct {
	Topics                 []types.TopicName
	ResponsePartitionLimit int32
	Cursor                 *uint8 // nil when absent (wire sentinel 0xFF)
}

// DecodeDescribeTopicPartitions decodes a DescribeTopicPartitions request
// body.
func DecodeDescribeTopicPartitions(b []byte) (DescribeTopicPartitionsRequest, error) {
	var req DescribeTopicPartitionsRequest

	n, rest, ok, err := wire.CompactArrayLen(b)
	if err != nil {
		return req, errors.WithMessage(err, "topics array length")
	}
	if ok {
		req.Topics = make([]types.TopicName, 0, n)
		for i := 0; i < n; i++ {
			var name string
			name, rest, err = wire.CompactString(rest)
			if err != nil {
				return req, errors.WithMessagef(err, "topic %d name", i)
			}
			_, rest, err = wire.TagBuffer(rest)
			if err != nil {
				return req, errors.WithMessagef(err, "topic %d tag buffer", i)
			}
			req.Topics = append(req.Topics, types.TopicName(name))
		}
	}

	limit, rest, err := wire.Int32(rest)
	if err != nil {
		return req, errors.WithMessage(err, "response partition limit")
	}
	req.ResponsePartitionLimit = limit

	cursor, rest, err := wire.Uint8(rest)
	if err != nil {
		return req, errors.WithMessage(err, "cursor")
	}
	if cursor != CursorSentinel {
		c := cursor
		req.Cursor = &c
	}

	return req, nil
}

package request

import (
	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// FetchPartition is one partition entry within a FetchTopic.
type FetchPartition struct {
	PartitionIndex     types.PartitionIndex
	CurrentLeaderEpoch types.CurrentLeaderEpoch
	FetchOffset        types.FetchOffset
	LastFetchEpoch     types.LastFetchEpoch
	LogStartOffset     types.LogStartOffset
	PartitionMaxBytes  types.PartitionMaxBytes
}

// FetchTopic is one topic entry in a Fetch request.
type FetchTopic struct {
	TopicId    types.TopicId
	Partitions []FetchPartition
}

// FetchRequest is a decoded Fetch (API key 1) request body.
type FetchRequest struct {
	MaxWait       types.MaxWait
	MinBytes      types.MinBytes
	MaxBytes      types.MaxBytes
	IsolationLevel types.IsolationLevel
	SessionId     types.SessionId
	SessionEpoch  types.SessionEpoch
	Topics        []FetchTopic
	RackId        types.RackId
}

// DecodeFetch decodes a Fetch request body.
func DecodeFetch(b []byte) (FetchRequest, error) {
	var req FetchRequest

	maxWait, rest, err := wire.Uint32(b)
	if err != nil {
		return req, errors.WithMessage(err, "max wait")
	}
	minBytes, rest, err := wire.Uint32(rest)
	if err != nil {
		return req, errors.WithMessage(err, "min bytes")
	}
	maxBytes, rest, err := wire.Uint32(rest)
	if err != nil {
		return req, errors.WithMessage(err, "max bytes")
	}
	isolation, rest, err := wire.Uint8(rest)
	if err != nil {
		return req, errors.WithMessage(err, "isolation level")
	}
	sessionId, rest, err := wire.Uint32(rest)
	if err != nil {
		return req, errors.WithMessage(err, "session id")
	}
	sessionEpoch, rest, err := wire.Uint32(rest)
	if err != nil {
		return req, errors.WithMessage(err, "session epoch")
	}

	topicCount, rest, ok, err := wire.CompactArrayLen(rest)
	if err != nil {
		return req, errors.WithMessage(err, "topics array length")
	}
	if ok {
		req.Topics = make([]FetchTopic, 0, topicCount)
		for i := 0; i < topicCount; i++ {
			var ft FetchTopic
			u, rest2, err2 := wire.UUID(rest)
			if err2 != nil {
				return req, errors.WithMessagef(err2, "topic %d id", i)
			}
			rest = rest2
			ft.TopicId = types.TopicId(u)

			partCount, rest2, ok2, err2 := wire.CompactArrayLen(rest)
			if err2 != nil {
				return req, errors.WithMessagef(err2, "topic %d partitions array length", i)
			}
			rest = rest2
			if ok2 {
				ft.Partitions = make([]FetchPartition, 0, partCount)
				for j := 0; j < partCount; j++ {
					var fp FetchPartition
					var pIdx, leaderEpoch, lastFetchEpoch, maxBytesP uint32
					var fetchOffset, logStartOffset uint64

					pIdx, rest, err = wire.Uint32(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d index", i, j)
					}
					leaderEpoch, rest, err = wire.Uint32(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d leader epoch", i, j)
					}
					fetchOffset, rest, err = wire.Uint64(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d fetch offset", i, j)
					}
					lastFetchEpoch, rest, err = wire.Uint32(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d last fetch epoch", i, j)
					}
					logStartOffset, rest, err = wire.Uint64(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d log start offset", i, j)
					}
					maxBytesP, rest, err = wire.Uint32(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d max bytes", i, j)
					}
					_, rest, err = wire.TagBuffer(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "topic %d partition %d tag buffer", i, j)
					}

					fp.PartitionIndex = types.PartitionIndex(pIdx)
					fp.CurrentLeaderEpoch = types.CurrentLeaderEpoch(leaderEpoch)
					fp.FetchOffset = types.FetchOffset(fetchOffset)
					fp.LastFetchEpoch = types.LastFetchEpoch(lastFetchEpoch)
					fp.LogStartOffset = types.LogStartOffset(logStartOffset)
					fp.PartitionMaxBytes = types.PartitionMaxBytes(maxBytesP)
					ft.Partitions = append(ft.Partitions, fp)
				}
			}
			_, rest, err = wire.TagBuffer(rest)
			if err != nil {
				return req, errors.WithMessagef(err, "topic %d tag buffer", i)
			}
			req.Topics = append(req.Topics, ft)
		}
	}

	_, rest, err = wire.TagBuffer(rest)
	if err != nil {
		return req, errors.WithMessage(err, "fetch trailing tag buffer")
	}

	forgottenCount, rest, ok, err := wire.CompactArrayLen(rest)
	if err != nil {
		return req, errors.WithMessage(err, "forgotten topics array length")
	}
	if ok {
		for i := 0; i < forgottenCount; i++ {
			_, rest, err = wire.UUID(rest)
			if err != nil {
				return req, errors.WithMessagef(err, "forgotten topic %d id", i)
			}
			partCount, rest2, ok2, err2 := wire.CompactArrayLen(rest)
			if err2 != nil {
				return req, errors.WithMessagef(err2, "forgotten topic %d partitions length", i)
			}
			rest = rest2
			if ok2 {
				for j := 0; j < partCount; j++ {
					_, rest, err = wire.Int32(rest)
					if err != nil {
						return req, errors.WithMessagef(err, "forgotten topic %d partition %d", i, j)
					}
				}
			}
			_, rest, err = wire.TagBuffer(rest)
			if err != nil {
				return req, errors.WithMessagef(err, "forgotten topic %d tag buffer", i)
			}
		}
	}

	rackId, rest, err := wire.CompactString(rest)
	if err != nil {
		return req, errors.WithMessage(err, "rack id")
	}
	_ = rest

	req.MaxWait = types.MaxWait(maxWait)
	req.MinBytes = types.MinBytes(minBytes)
	req.MaxBytes = types.MaxBytes(maxBytes)
	req.IsolationLevel = types.IsolationLevel(isolation)
	req.SessionId = types.SessionId(sessionId)
	req.SessionEpoch = types.SessionEpoch(sessionEpoch)
	req.RackId = types.RackId(rackId)

	return req, nil
}

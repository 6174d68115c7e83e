package broker

import (
	"github.com/kbroker/kbroker/internal/protocol/errs"
	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/response"
	"github.com/kbroker/kbroker/internal/protocol/types"
)

// handleFetch resolves each requested topic id against the broker's
// metadata, loads the matching partition log (if any), and returns its
// batches (renumbered from offset 0 by response.Fetch) — UnknownTopic for a
// topic id with no metadata record, and UnknownTopic on the partition
// response for a partition whose log file does not exist on disk.
func (c *connection) handleFetch(hdr request.Header, body []byte) ([]byte, error) {
	req, err := request.DecodeFetch(body)
	if err != nil {
		return nil, errs.Wrap(err, "decode fetch request")
	}

	topics := make([]response.FetchTopicResponse, 0, len(req.Topics))
	for _, ft := range req.Topics {
		name, ok := c.metadata.FindTopicName(ft.TopicId)
		if !ok {
			topics = append(topics, response.UnknownTopicFetchResponse(ft.TopicId))
			continue
		}

		partitions := make([]response.FetchPartitionResponse, 0, len(ft.Partitions))
		for _, fp := range ft.Partitions {
			log, found, loadErr := c.logs.Load(ft.TopicId, name, fp.PartitionIndex)
			if loadErr != nil {
				return nil, errs.Wrap(loadErr, "load partition log")
			}
			if !found {
				partitions = append(partitions, response.MissingLogFetchPartition(fp.PartitionIndex))
				continue
			}
			partitions = append(partitions, response.FetchPartitionResponse{
				PartitionIndex: fp.PartitionIndex,
				ErrorCode:      types.ErrNoError,
				Batches:        log.Batches,
			})
		}

		topics = append(topics, response.FetchTopicResponse{
			TopicId:    ft.TopicId,
			Partitions: partitions,
		})
	}

	body2 := response.Fetch(req.SessionId, topics)
	return response.Envelope(hdr.CorrelationId, body2), nil
}

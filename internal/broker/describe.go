package broker

import (
	"go.uber.org/zap"

	"github.com/kbroker/kbroker/internal/protocol/errs"
	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/response"
)

// handleDescribeTopicPartitions resolves each requested topic name against
// the broker's metadata and builds a descriptor for it — UnknownTopicOrPartition
// for names with no match, otherwise a partition listing truncated to the
// request's response_partition_limit.
func (c *connection) handleDescribeTopicPartitions(hdr request.Header, body []byte) ([]byte, error) {
	req, err := request.DecodeDescribeTopicPartitions(body)
	if err != nil {
		return nil, errs.Wrap(err, "decode describe topic partitions request")
	}

	descriptors := make([]response.TopicDescriptor, 0, len(req.Topics))
	anyTruncated := false
	for _, name := range req.Topics {
		id, ok := c.metadata.FindTopicId(name)
		if !ok {
			descriptors = append(descriptors, response.UnknownTopicDescriptor(name))
			continue
		}
		partitions := c.metadata.FindPartitions(id)
		desc, truncated := response.DescriptorFromMetadata(name, id, partitions, req.ResponsePartitionLimit)
		descriptors = append(descriptors, desc)
		if truncated {
			c.logger.Debug("truncated partition listing",
				zap.String("topic", string(name)),
				zap.Int32("response_partition_limit", req.ResponsePartitionLimit),
			)
			anyTruncated = true
		}
	}

	// A non-sentinel cursor tells the client more partitions remain; this
	// broker has nothing finer-grained than "some topic was truncated" to
	// report, so it always resumes from the start of the topic list.
	var nextCursor *uint8
	if anyTruncated {
		zero := uint8(0)
		nextCursor = &zero
	}

	body2 := response.DescribeTopicPartitions(descriptors, nextCursor)
	return response.Envelope(hdr.CorrelationId, body2), nil
}

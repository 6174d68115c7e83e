// Package broker runs the TCP accept loop and the per-connection request
// state machine: ReadLen -> ReadBody -> Dispatch -> WriteResp -> ReadLen,
// laid out the way the reference Kafka test server accepts one connection
// per goroutine and loops reading a length-prefixed frame, dispatching by
// api key, and writing a response before reading the next frame.
package broker

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kbroker/kbroker/internal/logstore"
	"github.com/kbroker/kbroker/internal/metadata"
	"github.com/kbroker/kbroker/internal/protocol/errs"
	"github.com/kbroker/kbroker/internal/protocol/request"
	"github.com/kbroker/kbroker/internal/protocol/response"
	"github.com/kbroker/kbroker/internal/protocol/types"
)

// connection drives one accepted TCP connection through its full
// lifetime: read a frame, dispatch it, write the response, repeat.
type connection struct {
	conn     net.Conn
	logger   *zap.Logger
	metadata *metadata.Metadata
	logs     *logstore.Store
}

// serve runs the connection's read-dispatch-write loop until the peer
// closes the connection or an unrecoverable error occurs. A recoverable
// error (unsupported api key/version) writes the fixed 10-byte error
// response and keeps looping; anything else closes the connection without
// a reply.
func (c *connection) serve() {
	defer c.conn.Close()

	for {
		body, err := c.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			c.logger.Debug("closing connection after frame read failure", zap.Error(err))
			return
		}

		resp, err := c.dispatch(body)
		if err != nil {
			if !errs.IsRecoverable(err) {
				c.logger.Warn("closing connection after unrecoverable error", zap.Error(err))
				return
			}
			var correlationId types.CorrelationId
			if hdr, _, hdrErr := request.DecodeHeader(body); hdrErr == nil {
				correlationId = hdr.CorrelationId
			}
			resp = response.UnsupportedVersionResponse(correlationId)
		}

		if _, err := c.conn.Write(resp); err != nil {
			c.logger.Debug("closing connection after write failure", zap.Error(err))
			return
		}
	}
}

// readFrame reads the 4-byte MessageSize prefix and the declared number of
// following bytes.
func (c *connection) readFrame() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])

	body := make([]byte, size)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	return body, nil
}

// dispatch decodes the request header, checks the api key and version
// against types.SupportedAPIs, decodes the matching body, and builds the
// response envelope.
func (c *connection) dispatch(body []byte) ([]byte, error) {
	hdr, rest, err := request.DecodeHeader(body)
	if err != nil {
		return nil, errs.Wrap(err, "decode request header")
	}

	apiKey := types.ApiKey(hdr.ApiKey)
	supported, ok := types.SupportedAPIs[apiKey]
	if !ok {
		return nil, errs.UnsupportedApiKey(hdr.ApiKey)
	}
	if hdr.ApiVersion < supported.Min || hdr.ApiVersion > supported.Max {
		return nil, errs.UnsupportedApiVersion(apiKey, hdr.ApiVersion)
	}

	switch apiKey {
	case types.ApiKeyApiVersions:
		return c.handleApiVersions(hdr, rest)
	case types.ApiKeyDescribeTopicPartitions:
		return c.handleDescribeTopicPartitions(hdr, rest)
	case types.ApiKeyFetch:
		return c.handleFetch(hdr, rest)
	default:
		return nil, errs.UnsupportedApiKey(hdr.ApiKey)
	}
}

func (c *connection) handleApiVersions(hdr request.Header, body []byte) ([]byte, error) {
	if _, err := request.DecodeApiVersions(body); err != nil {
		return nil, errs.Wrap(err, "decode api versions request")
	}
	return response.Envelope(hdr.CorrelationId, response.ApiVersions(types.ErrNoError)), nil
}

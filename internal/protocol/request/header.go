// Package request frames raw TCP bytes into a request Header plus a typed
// body, dispatching the body decode by API key.
package request

import (
	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// Header is the fixed preamble shared by every request. ClientId uses the
// legacy (i16-length) string form, not a compact string — request bodies
// use compact strings, but the header never does.
type Header struct {
	ApiKey        int16
	ApiVersion    types.Version
	CorrelationId types.CorrelationId
	ClientId      string
}

// DecodeHeader decodes the header from the start of a full request
// message body (the bytes after the 4-byte MessageSize length prefix has
// already been stripped by the framer).
func DecodeHeader(b []byte) (Header, []byte, error) {
	var h Header
	var err error

	apiKey, rest, err := wire.Int16(b)
	if err != nil {
		return h, nil, errors.WithMessage(err, "api key")
	}
	apiVersion, rest, err := wire.Int16(rest)
	if err != nil {
		return h, nil, errors.WithMessage(err, "api version")
	}
	correlationId, rest, err := wire.Uint32(rest)
	if err != nil {
		return h, nil, errors.WithMessage(err, "correlation id")
	}
	clientId, rest, err := wire.LegacyString(rest)
	if err != nil {
		return h, nil, errors.WithMessage(err, "client id")
	}
	_, rest, err = wire.TagBuffer(rest)
	if err != nil {
		return h, nil, errors.WithMessage(err, "header tag buffer")
	}

	h.ApiKey = apiKey
	h.ApiVersion = types.Version(apiVersion)
	h.CorrelationId = types.CorrelationId(correlationId)
	h.ClientId = clientId
	return h, rest, nil
}

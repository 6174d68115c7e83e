package response

import (
	"sort"

	"github.com/kbroker/kbroker/internal/protocol/types"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// ApiVersions builds the body of an ApiVersions response (v0–v4):
// error_code, compact array of (api_key, min, max, tag_buffer),
// throttle_time, tag_buffer.
func ApiVersions(errorCode types.ErrorCode) []byte {
	keys := make([]types.ApiKey, 0, len(types.SupportedAPIs))
	for k := range types.SupportedAPIs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []byte
	out = wire.PutUint16(out, uint16(errorCode))
	out = wire.PutCompactArrayLen(out, len(keys))
	for _, k := range keys {
		vr := types.SupportedAPIs[k]
		out = wire.PutUint16(out, uint16(k))
		out = wire.PutUint16(out, uint16(vr.Min))
		out = wire.PutUint16(out, uint16(vr.Max))
		out = wire.PutTagBuffer(out)
	}
	out = wire.PutUint32(out, 0) // throttle_time
	out = wire.PutTagBuffer(out)
	return out
}

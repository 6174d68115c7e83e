// Package batch decodes and encodes Kafka record batches: the unit of I/O
// and CRC protection shared by the cluster metadata log and every
// per-partition log file, and by the records section of a Fetch response.
package batch

import (
	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/errs"
	"github.com/kbroker/kbroker/internal/protocol/wire"
)

// Batch is one decoded record batch. Span holds the "crc-covered span" —
// the bytes from Attributes through the end of the records array — as a
// sub-slice of the original buffer, so re-emitting a batch with a new
// BatchOffset never needs to touch a record's bytes.
type Batch struct {
	BatchOffset         uint64
	PartitionLeaderEpoch uint32
	MagicByte           uint8
	CRC                 uint32
	Attributes          uint16
	LastOffsetDelta     uint32
	BaseTimestamp       uint64
	MaxTimestamp        uint64
	ProducerId          *uint64
	ProducerEpoch       *uint16
	BaseSequence        *uint32
	Records             []Record

	// Span is the exact attributes-through-records byte range this batch
	// was decoded from; Encode recomputes only the CRC over it unless the
	// caller mutates Records and calls EncodeRecomputed.
	Span []byte
}

// DecodeStream decodes every batch in a contiguous batch stream (a
// metadata log or a partition log file).
func DecodeStream(b []byte) ([]Batch, error) {
	var out []Batch
	for len(b) > 0 {
		bt, rest, err := decodeOne(b)
		if err != nil {
			return nil, err
		}
		out = append(out, bt)
		b = rest
	}
	return out, nil
}

func decodeOne(b []byte) (Batch, []byte, error) {
	var bt Batch
	var err error

	u, rest, err := wire.Uint64(b)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "batch offset")
	}
	bt.BatchOffset = u

	batchLen, rest, err := wire.Uint32(rest)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "batch length")
	}
	if uint32(len(rest)) < batchLen {
		return bt, nil, errs.MalformedFrame("batch body shorter than declared batch_length")
	}
	body := rest[:batchLen]
	tail := rest[batchLen:]

	bt.PartitionLeaderEpoch, body, err = wire.Uint32(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "partition leader epoch")
	}
	bt.MagicByte, body, err = wire.Uint8(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "magic byte")
	}
	bt.CRC, body, err = wire.Uint32(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "crc")
	}

	// Everything from here to the end of body is the crc-covered span.
	bt.Span = body

	bt.Attributes, body, err = wire.Uint16(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "attributes")
	}
	bt.LastOffsetDelta, body, err = wire.Uint32(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "last offset delta")
	}
	bt.BaseTimestamp, body, err = wire.Uint64(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "base timestamp")
	}
	bt.MaxTimestamp, body, err = wire.Uint64(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "max timestamp")
	}
	bt.ProducerId, body, err = wire.NullableUint64(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "producer id")
	}
	bt.ProducerEpoch, body, err = wire.NullableUint16(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "producer epoch")
	}
	bt.BaseSequence, body, err = wire.NullableUint32(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "base sequence")
	}

	recordCount, body, err := wire.Uint32(body)
	if err != nil {
		return bt, nil, errors.WithMessage(err, "record count")
	}

	bt.Records = make([]Record, 0, recordCount)
	for i := uint32(0); i < recordCount; i++ {
		recLen, rest2, err := wire.Varint(body)
		if err != nil {
			return bt, nil, errors.WithMessagef(err, "record %d length", i)
		}
		body = rest2
		if recLen < 0 || int64(len(body)) < recLen {
			return bt, nil, errs.MalformedFrame("record body shorter than declared length")
		}
		recBytes := body[:recLen]
		body = body[recLen:]

		rec, err := decodeRecord(recBytes)
		if err != nil {
			return bt, nil, errors.WithMessagef(err, "record %d", i)
		}
		bt.Records = append(bt.Records, rec)
	}

	return bt, tail, nil
}

// Encode re-assembles the wire bytes for bt, preserving bt.Span verbatim
// and only rewriting the offset/length/epoch/magic/crc header. Use this to
// re-emit a batch read off disk with a new BatchOffset (as Fetch responses
// do) without paying to re-encode every record.
func (bt Batch) Encode() []byte {
	crc := crc32c(bt.Span)

	out := make([]byte, 0, 8+4+4+1+4+len(bt.Span))
	out = wire.PutUint64(out, bt.BatchOffset)

	// total_length is written after we know the rest of the frame; reserve
	// space for it here.
	lenPos := len(out)
	out = wire.PutUint32(out, 0)

	before := len(out)
	out = wire.PutUint32(out, bt.PartitionLeaderEpoch)
	out = wire.PutUint8(out, bt.MagicByte)
	out = wire.PutUint32(out, crc)
	out = append(out, bt.Span...)

	batchLength := uint32(len(out) - before)
	putUint32At(out, lenPos, batchLength)
	return out
}

// EncodeRecomputed re-encodes bt.Records from scratch (instead of reusing
// Span) and recomputes the CRC over the result. Use this only when Records
// has been mutated since decode.
func (bt Batch) EncodeRecomputed() []byte {
	span := make([]byte, 0, len(bt.Span))
	span = wire.PutUint16(span, bt.Attributes)
	span = wire.PutUint32(span, bt.LastOffsetDelta)
	span = wire.PutUint64(span, bt.BaseTimestamp)
	span = wire.PutUint64(span, bt.MaxTimestamp)
	span = wire.PutNullableUint64(span, bt.ProducerId)
	span = wire.PutNullableUint16(span, bt.ProducerEpoch)
	span = wire.PutNullableUint32(span, bt.BaseSequence)
	span = wire.PutUint32(span, uint32(len(bt.Records)))
	for _, r := range bt.Records {
		rb := encodeRecord(r)
		span = wire.PutVarint(span, int64(len(rb)))
		span = append(span, rb...)
	}
	bt.Span = span
	return bt.Encode()
}

func putUint32At(b []byte, pos int, v uint32) {
	b[pos] = byte(v >> 24)
	b[pos+1] = byte(v >> 16)
	b[pos+2] = byte(v >> 8)
	b[pos+3] = byte(v)
}

// Package wire implements the low level codec primitives used to decode and
// encode every Kafka wire frame this broker speaks: unsigned and signed
// varints, compact strings and arrays, fixed width integers, UUIDs, and tag
// buffers. Every decoder walks an immutable byte slice and returns the
// decoded value together with the remaining, unconsumed slice. The
// remaining slice and CompactBytes results alias the input; strings and
// UUIDs are copied into their own values.
package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrIncomplete is returned when a decode step runs out of bytes before it
// has a complete value.
var ErrIncomplete = errors.New("wire: incomplete value")

// ErrOverflow is returned when a varint does not terminate within 10 bytes.
var ErrOverflow = errors.New("wire: varint overflow")

// ErrBadUTF8 is returned when a compact string's bytes are not valid UTF-8.
var ErrBadUTF8 = errors.New("wire: string is not valid utf-8")

// Uvarint decodes an unsigned LEB128 varint: 7 data bits per byte,
// little-endian groups, MSB set means more bytes follow.
func Uvarint(b []byte) (uint64, []byte, error) {
	var x uint64
	var s uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c < 0x80 {
			if i == 9 && c > 1 {
				return 0, nil, ErrOverflow
			}
			return x | uint64(c)<<s, b[i+1:], nil
		}
		x |= uint64(c&0x7f) << s
		s += 7
		if s >= 64 {
			return 0, nil, ErrOverflow
		}
	}
	return 0, nil, errors.WithMessage(ErrIncomplete, "uvarint")
}

// PutUvarint appends the varint encoding of v to dst and returns it.
func PutUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Varint decodes a ZigZag-encoded signed varint.
func Varint(b []byte) (int64, []byte, error) {
	u, rest, err := Uvarint(b)
	if err != nil {
		return 0, nil, err
	}
	return int64(u>>1) ^ -(int64(u & 1)), rest, nil
}

// PutVarint appends the ZigZag + varint encoding of v to dst.
func PutVarint(dst []byte, v int64) []byte {
	uv := uint64(v<<1) ^ uint64(v>>63)
	return PutUvarint(dst, uv)
}

func need(b []byte, n int) error {
	if len(b) < n {
		return errors.WithMessage(ErrIncomplete, fmt.Sprintf("need %d bytes, have %d", n, len(b)))
	}
	return nil
}

// Uint8 reads one unsigned byte.
func Uint8(b []byte) (uint8, []byte, error) {
	if err := need(b, 1); err != nil {
		return 0, nil, err
	}
	return b[0], b[1:], nil
}

// Uint16 reads a big-endian uint16.
func Uint16(b []byte) (uint16, []byte, error) {
	if err := need(b, 2); err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

// Uint32 reads a big-endian uint32.
func Uint32(b []byte) (uint32, []byte, error) {
	if err := need(b, 4); err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

// Uint64 reads a big-endian uint64.
func Uint64(b []byte) (uint64, []byte, error) {
	if err := need(b, 8); err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

// Int16 reads a big-endian signed int16.
func Int16(b []byte) (int16, []byte, error) {
	v, rest, err := Uint16(b)
	return int16(v), rest, err
}

// Int32 reads a big-endian signed int32.
func Int32(b []byte) (int32, []byte, error) {
	v, rest, err := Uint32(b)
	return int32(v), rest, err
}

// Int64 reads a big-endian signed int64.
func Int64(b []byte) (int64, []byte, error) {
	v, rest, err := Uint64(b)
	return int64(v), rest, err
}

// PutUint8 appends a raw byte.
func PutUint8(dst []byte, v uint8) []byte { return append(dst, v) }

// PutUint16 appends a big-endian uint16.
func PutUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint32 appends a big-endian uint32.
func PutUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint64 appends a big-endian uint64.
func PutUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// NullableInt32 reads a big-endian int32 where all-ones (-1) means absent.
func NullableInt32(b []byte) (*int32, []byte, error) {
	v, rest, err := Int32(b)
	if err != nil {
		return nil, nil, err
	}
	if v == -1 {
		return nil, rest, nil
	}
	return &v, rest, nil
}

// PutNullableInt32 appends v, or all-ones if v is nil.
func PutNullableInt32(dst []byte, v *int32) []byte {
	if v == nil {
		return PutUint32(dst, 0xFFFFFFFF)
	}
	return PutUint32(dst, uint32(*v))
}

// NullableInt16 reads a big-endian int16 where all-ones (-1) means absent.
func NullableInt16(b []byte) (*int16, []byte, error) {
	v, rest, err := Int16(b)
	if err != nil {
		return nil, nil, err
	}
	if v == -1 {
		return nil, rest, nil
	}
	return &v, rest, nil
}

// PutNullableInt16 appends v, or all-ones if v is nil.
func PutNullableInt16(dst []byte, v *int16) []byte {
	if v == nil {
		return PutUint16(dst, 0xFFFF)
	}
	return PutUint16(dst, uint16(*v))
}

// NullableUint32 reads a big-endian uint32 where all-ones means absent.
func NullableUint32(b []byte) (*uint32, []byte, error) {
	v, rest, err := Uint32(b)
	if err != nil {
		return nil, nil, err
	}
	if v == 0xFFFFFFFF {
		return nil, rest, nil
	}
	return &v, rest, nil
}

// PutNullableUint32 appends v, or all-ones if v is nil.
func PutNullableUint32(dst []byte, v *uint32) []byte {
	if v == nil {
		return PutUint32(dst, 0xFFFFFFFF)
	}
	return PutUint32(dst, *v)
}

// NullableUint64 reads a big-endian uint64 where all-ones means absent.
func NullableUint64(b []byte) (*uint64, []byte, error) {
	v, rest, err := Uint64(b)
	if err != nil {
		return nil, nil, err
	}
	if v == 0xFFFFFFFFFFFFFFFF {
		return nil, rest, nil
	}
	return &v, rest, nil
}

// PutNullableUint64 appends v, or all-ones if v is nil.
func PutNullableUint64(dst []byte, v *uint64) []byte {
	if v == nil {
		return PutUint64(dst, 0xFFFFFFFFFFFFFFFF)
	}
	return PutUint64(dst, *v)
}

// NullableUint16 reads a big-endian uint16 where all-ones means absent.
func NullableUint16(b []byte) (*uint16, []byte, error) {
	v, rest, err := Uint16(b)
	if err != nil {
		return nil, nil, err
	}
	if v == 0xFFFF {
		return nil, rest, nil
	}
	return &v, rest, nil
}

// PutNullableUint16 appends v, or all-ones if v is nil.
func PutNullableUint16(dst []byte, v *uint16) []byte {
	if v == nil {
		return PutUint16(dst, 0xFFFF)
	}
	return PutUint16(dst, *v)
}

// CompactString decodes a compact string: an unsigned varint length L, where
// L == 0 means absent (treated as empty), otherwise L-1 raw UTF-8 bytes
// follow.
func CompactString(b []byte) (string, []byte, error) {
	l, rest, err := Uvarint(b)
	if err != nil {
		return "", nil, errors.WithMessage(err, "compact string length")
	}
	if l == 0 {
		return "", rest, nil
	}
	n := int(l - 1)
	if err := need(rest, n); err != nil {
		return "", nil, errors.WithMessage(err, "compact string body")
	}
	s := rest[:n]
	if !utf8.Valid(s) {
		return "", nil, ErrBadUTF8
	}
	return string(s), rest[n:], nil
}

// PutCompactString appends the compact-string encoding of s.
func PutCompactString(dst []byte, s string) []byte {
	dst = PutUvarint(dst, uint64(len(s)+1))
	return append(dst, s...)
}

// CompactBytes decodes a compact byte array with the same length convention
// as CompactString but without the UTF-8 requirement.
func CompactBytes(b []byte) ([]byte, []byte, error) {
	l, rest, err := Uvarint(b)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "compact bytes length")
	}
	if l == 0 {
		return nil, rest, nil
	}
	n := int(l - 1)
	if err := need(rest, n); err != nil {
		return nil, nil, errors.WithMessage(err, "compact bytes body")
	}
	return rest[:n], rest[n:], nil
}

// PutCompactBytes appends the compact-bytes encoding of b.
func PutCompactBytes(dst []byte, b []byte) []byte {
	dst = PutUvarint(dst, uint64(len(b)+1))
	return append(dst, b...)
}

// CompactArrayLen decodes a compact array's length prefix. It returns
// (count, rest, ok); ok is false when the array is absent (L == 0).
func CompactArrayLen(b []byte) (int, []byte, bool, error) {
	l, rest, err := Uvarint(b)
	if err != nil {
		return 0, nil, false, errors.WithMessage(err, "compact array length")
	}
	if l == 0 {
		return 0, rest, false, nil
	}
	return int(l - 1), rest, true, nil
}

// PutCompactArrayLen appends the compact-array length prefix for n elements.
func PutCompactArrayLen(dst []byte, n int) []byte {
	return PutUvarint(dst, uint64(n+1))
}

// CompactUint32Array decodes a compact array of big-endian uint32 elements.
func CompactUint32Array(b []byte) ([]uint32, []byte, error) {
	n, rest, ok, err := CompactArrayLen(b)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, rest, nil
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		var v uint32
		v, rest, err = Uint32(rest)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "compact uint32 array element %d", i)
		}
		out[i] = v
	}
	return out, rest, nil
}

// PutCompactUint32Array appends a compact array of big-endian uint32s.
func PutCompactUint32Array(dst []byte, vs []uint32) []byte {
	dst = PutCompactArrayLen(dst, len(vs))
	for _, v := range vs {
		dst = PutUint32(dst, v)
	}
	return dst
}

// LegacyString decodes a non-compact, length-prefixed (i16) string, used
// only by the request header's client_id field. Do not unify this with the
// compact-string form used by request bodies.
func LegacyString(b []byte) (string, []byte, error) {
	n, rest, err := Int16(b)
	if err != nil {
		return "", nil, errors.WithMessage(err, "legacy string length")
	}
	if n < 0 {
		return "", rest, nil
	}
	if err := need(rest, int(n)); err != nil {
		return "", nil, errors.WithMessage(err, "legacy string body")
	}
	return string(rest[:n]), rest[n:], nil
}

// PutLegacyString appends the i16-length-prefixed encoding of s.
func PutLegacyString(dst []byte, s string) []byte {
	dst = PutUint16(dst, uint16(int16(len(s))))
	return append(dst, s...)
}

// UUID decodes 16 raw big-endian bytes into a uuid.UUID.
func UUID(b []byte) (uuid.UUID, []byte, error) {
	if err := need(b, 16); err != nil {
		return uuid.Nil, nil, errors.WithMessage(err, "uuid")
	}
	var u uuid.UUID
	copy(u[:], b[:16])
	return u, b[16:], nil
}

// PutUUID appends the 16 raw bytes of u.
func PutUUID(dst []byte, u uuid.UUID) []byte {
	return append(dst, u[:]...)
}

// TagBuffer decodes the single reserved tag-buffer byte.
func TagBuffer(b []byte) (byte, []byte, error) {
	return Uint8(b)
}

// PutTagBuffer appends the tag-buffer byte, always zero on emit.
func PutTagBuffer(dst []byte) []byte {
	return append(dst, 0)
}

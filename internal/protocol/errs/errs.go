// Package errs collects the broker's error taxonomy: a small iota-numbered
// set of language-neutral error kinds, each Error optionally carrying the
// wire-level types.ErrorCode it maps to. There is no lookup table from code
// to message.
package errs

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/protocol/types"
)

// Kind enumerates the broker's language-neutral error classes.
type Kind int

const (
	KindUnsupportedApiVersion Kind = iota
	KindUnsupportedApiKey
	KindUnknownTopicOrPartition
	KindUnknownRecordType
	KindMalformedFrame
	KindIoFailure
	KindWrapped
)

// Error is a broker-internal error carrying a Kind, an optional wire
// ErrorCode, and the correlation id it should be reported against once
// known.
type Error struct {
	Kind          Kind
	Code          types.ErrorCode
	CorrelationId types.CorrelationId
	HasCorrelation bool
	msg           string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// WithCorrelationId annotates err with the request's correlation id, as
// soon as it is known.
func (e *Error) WithCorrelationId(id types.CorrelationId) *Error {
	e.CorrelationId = id
	e.HasCorrelation = true
	return e
}

func newErr(kind Kind, code types.ErrorCode, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// UnsupportedApiVersion builds the error for a request whose version this
// broker does not advertise.
func UnsupportedApiVersion(apiKey types.ApiKey, version types.Version) *Error {
	return newErr(KindUnsupportedApiVersion, types.ErrUnsupportedVersion,
		fmt.Sprintf("unsupported api version %d for api key %s", version, apiKey))
}

// UnsupportedApiKey builds the error for a request whose api key this
// broker does not implement.
func UnsupportedApiKey(apiKey int16) *Error {
	return newErr(KindUnsupportedApiKey, types.ErrUnsupportedVersion,
		fmt.Sprintf("unsupported api key %d", apiKey))
}

// UnknownTopicOrPartition builds the error for a request naming a topic or
// partition this broker's metadata has no record of.
func UnknownTopicOrPartition(what string) *Error {
	return newErr(KindUnknownTopicOrPartition, types.ErrUnknownTopicOrPartition, what)
}

// UnknownTopic builds the error used on a Fetch response partition whose
// topic id was not found, or whose log file is missing on disk.
func UnknownTopic(what string) *Error {
	return newErr(KindUnknownTopicOrPartition, types.ErrUnknownTopic, what)
}

// UnknownRecordType builds the error for a record batch value whose type
// tag this broker does not recognize. Unknown tags are tolerated during
// decode (retained as Raw) — this error is for callers that need to
// reject them explicitly.
func UnknownRecordType(tag byte) *Error {
	return newErr(KindUnknownRecordType, types.ErrNoError, fmt.Sprintf("unknown record type tag 0x%02x", tag))
}

// MalformedFrame builds the error for a short read, bad varint, invalid
// UTF-8, or length overflow encountered while decoding.
func MalformedFrame(msg string) *Error {
	return newErr(KindMalformedFrame, types.ErrNoError, msg)
}

// IoFailure wraps a transport or filesystem I/O error.
func IoFailure(cause error) *Error {
	e := newErr(KindIoFailure, types.ErrNoError, "io failure")
	e.cause = cause
	return e
}

// Wrap annotates cause with additional context, the way
// github.com/pkg/errors.Wrap does for every other package boundary in this
// broker; Wrap itself is used when the annotated error needs to carry a
// Kind (e.g. for dispatch decisions in the connection state machine).
func Wrap(cause error, context string) *Error {
	e := newErr(KindWrapped, types.ErrNoError, context)
	e.cause = cause
	return e
}

// IsRecoverable reports whether the connection should stay open after this
// error: UnsupportedApiVersion/UnsupportedApiKey keep the connection open
// and reply with the 10-byte error response; everything else closes the
// connection without a reply.
func IsRecoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindUnsupportedApiVersion || e.Kind == KindUnsupportedApiKey
}

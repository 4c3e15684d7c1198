// Package apperr defines the error taxonomy shared by the core services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindDuplicate     Kind = "duplicate"
	KindSelfReference Kind = "self_reference"
	KindUpload        Kind = "upload"
	KindTransport     Kind = "transport"
	KindConsistency   Kind = "consistency"
	KindInternal      Kind = "internal"
)

// Error is a categorised failure with a caller-facing message.
// Err holds the underlying cause and is never shown to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrDuplicate     = &Error{Kind: KindDuplicate}
	ErrSelfReference = &Error{Kind: KindSelfReference}
	ErrUpload        = &Error{Kind: KindUpload}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrConsistency   = &Error{Kind: KindConsistency}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error    { return newf(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Error      { return newf(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) *Error     { return newf(KindForbidden, format, args...) }
func Duplicate(format string, args ...any) *Error     { return newf(KindDuplicate, format, args...) }
func SelfReference(format string, args ...any) *Error { return newf(KindSelfReference, format, args...) }

// Upload wraps a media store failure
func Upload(err error) *Error {
	return &Error{Kind: KindUpload, Message: "Failed to upload image", Err: err}
}

// Transport wraps a notification delivery failure
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "Failed to deliver event", Err: err}
}

// Consistency wraps a failure that aborted a multi-record update
func Consistency(err error) *Error {
	return &Error{Kind: KindConsistency, Message: "Update could not be applied atomically", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
// Uncategorised errors get a fixed message so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}

// Package apperr classifies failures into the small set of kinds the API
// exposes and carries the stable, user-facing message for each.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure, independent of the type that produced it.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindParse
	KindConflict
	KindNotFound
	KindAuthorization
	KindGone
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindParse:
		return "parse"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindGone:
		return "gone"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Error is a classified application error. Message is safe to show to users;
// Err holds the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code, so wrapped
// copies of a sentinel still match it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// New creates a sentinel-style error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap copies sentinel and attaches the internal cause.
func Wrap(sentinel *Error, err error) *Error {
	cp := *sentinel
	cp.Err = err
	return &cp
}

// WithMessage copies sentinel with a more specific message.
func WithMessage(sentinel *Error, format string, args ...any) *Error {
	cp := *sentinel
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// WithField copies sentinel and tags it with the offending field.
func WithField(sentinel *Error, field string) *Error {
	cp := *sentinel
	cp.Field = field
	return &cp
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION", Message: fmt.Sprintf(format, args...)}
}

func Parse(format string, args ...any) *Error {
	return &Error{Kind: KindParse, Code: "PARSE", Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. The message never reaches clients.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: fmt.Sprintf(format, args...), Err: err}
}

var (
	ErrForbidden       = New(KindAuthorization, "FORBIDDEN", "resource does not belong to the user")
	ErrUnauthenticated = New(KindUnauthenticated, "UNAUTHENTICATED", "authentication required")
	ErrInternal        = New(KindInternal, "INTERNAL", "internal server error")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

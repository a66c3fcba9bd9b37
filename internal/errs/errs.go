// Package errs defines the error kinds shared across the capture pipeline,
// so the HTTP layer can map any failure to a status code without knowing
// which component produced it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the handling policy it requires, not by the
// component that produced it.
type Kind int

const (
	// KindUnknown is the zero value; treated the same as KindStorage by callers.
	KindUnknown Kind = iota
	// KindTransport is an I/O or codec failure on the SMTP stream.
	KindTransport
	// KindProtocol is malformed SMTP syntax; the session continues.
	KindProtocol
	// KindAuthRequired means a command requires authentication first.
	KindAuthRequired
	// KindAuthFailed means credentials were presented but rejected.
	KindAuthFailed
	// KindStorage is a database error during save or read.
	KindStorage
	// KindNotFound means a requested id does not exist.
	KindNotFound
	// KindInvalidData means stored bytes could not be decompressed or
	// decoded when the caller required it (e.g. raw body as UTF-8).
	KindInvalidData
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuthRequired:
		return "auth_required"
	case KindAuthFailed:
		return "auth_failed"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindInvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a Kind-classified error from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindStorage for
// unclassified errors (the conservative choice: surfaces as HTTP 500
// rather than silently mapping to 404 or 2xx).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

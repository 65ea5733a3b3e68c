// Package apperr defines the failure kinds shared by the guest verification
// and payment packages. Every domain error wraps exactly one kind so callers
// at the edge can translate it without knowing the originating package.
package apperr

import (
	"errors"
	"net/http"
	"time"
)

// Failure kinds.
var (
	ErrNotFound        = errors.New("not found")
	ErrGone            = errors.New("gone")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported")
)

// Error is a domain error carrying a client-safe message and its kind.
type Error struct {
	kind error
	msg  string
}

// New returns an error of the given kind. kind must be one of the Err* kinds
// declared in this package.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the failure kind of err, or nil when err does not wrap one.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrGone, ErrForbidden, ErrBadRequest, ErrRateLimited, ErrInvalidArgument, ErrUnsupported} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps err to an HTTP status code. Errors without a kind are
// internal failures.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrGone:
		return http.StatusGone
	case ErrForbidden:
		return http.StatusForbidden
	case ErrBadRequest, ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterError is a rate-limit error that knows how long the caller must wait.
type RetryAfterError struct {
	Err  error
	Wait time.Duration
}

func (e *RetryAfterError) Error() string { return e.Err.Error() }

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter reports the wait carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.Wait, true
	}
	return 0, false
}

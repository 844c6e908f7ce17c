// Package apperrors classifies errors by kind rather than by type name, per
// spec.md §7's error taxonomy. Handlers map a Kind to an HTTP status and
// never leak a stack trace to the caller.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind is one of the six error categories spec.md §7 defines.
type Kind string

const (
	// KindInput: empty query, invalid limit, unknown language. No retry.
	KindInput Kind = "input"
	// KindAuth: source store or VLM credential invalid. Indexing halts.
	KindAuth Kind = "auth"
	// KindTransientUpstream: HTTP 5xx/429/timeouts from a provider or DB.
	// Retried with backoff by the caller; surfaced only once retries
	// exhaust.
	KindTransientUpstream Kind = "transient_upstream"
	// KindParse: malformed VLM JSON. Recovered locally, never fatal.
	KindParse Kind = "parse"
	// KindPartial: one analysis pass failed for one image. The image is
	// still persisted and served.
	KindPartial Kind = "partial"
	// KindFatal: DB schema mismatch, embedding dimension change. The
	// process exits on startup.
	KindFatal Kind = "fatal"
)

// AppError pairs a Kind with an operator-facing message and the
// underlying cause, if any.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New constructs an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap constructs an AppError of the given kind around an existing error.
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// HTTPStatus maps a Kind to the status code /search and friends respond
// with (spec.md §7).
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindTransientUpstream:
		return http.StatusServiceUnavailable
	case KindParse:
		return http.StatusBadGateway
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind of err if it is (or wraps) an *AppError,
// defaulting to KindFatal for anything unclassified so an unexpected
// error never silently degrades to a 200.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindFatal
}

// Sentinel errors for repository-level not-found/conflict conditions that
// don't need full AppError context at the point they're raised; callers
// wrap them into an AppError (KindInput for not-found-on-lookup, since a
// bad id is caller error) at the HTTP boundary.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Package apperr defines the error taxonomy shared by the hub, the HTTP
// services and the reconciler. Callers classify with errors.Is.
package apperr

import "errors"

var (
	// ErrInvalidInput covers empty content and malformed ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden covers non-participants and editor/deleter != sender.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	// ErrInvalidState covers mutations of an already-deleted message.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable marks an unreachable collaborator. Membership checks
	// treat it fail-closed, the same as ErrForbidden.
	ErrUnavailable = errors.New("dependency unavailable")
	// ErrConflict is a lost compare-and-set update; retryable.
	ErrConflict = errors.New("concurrency conflict")
)

// Reason maps an error to the wire reason code reported to the caller.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnavailable):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "invalid"
	}
}

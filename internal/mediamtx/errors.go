package mediamtx

import "fmt"

// ErrorClass is the normalized MediaMTX failure classification used by the
// recording/snapshot managers to decide retryability and circuit-breaker
// accounting.
type ErrorClass string

const (
	ErrUnreachable ErrorClass = "UNREACHABLE"
	ErrTimeout     ErrorClass = "TIMEOUT"
	ErrRejected    ErrorClass = "REJECTED"
	ErrNotFound    ErrorClass = "NOT_FOUND"
	ErrConflict    ErrorClass = "CONFLICT"
	ErrInternal    ErrorClass = "INTERNAL"
)

// Error wraps a classified MediaMTX failure.
type Error struct {
	Class   ErrorClass
	Op      string
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("mediamtx %s: %s (%s)", e.Op, e.Message, e.Class)
	}
	return fmt.Sprintf("mediamtx: %s (%s)", e.Message, e.Class)
}

// Retryable reports whether the operation that produced this error is safe
// to retry for an idempotent call (network failure or 5xx).
func (e *Error) Retryable() bool {
	switch e.Class {
	case ErrUnreachable, ErrTimeout, ErrInternal:
		return true
	default:
		return false
	}
}

func newError(op string, class ErrorClass, message string, status int) *Error {
	return &Error{Op: op, Class: class, Message: message, Status: status}
}

// classifyHTTPStatus maps an HTTP response status to the normalized class.
func classifyHTTPStatus(op string, status int, body string) *Error {
	switch {
	case status == 404:
		return newError(op, ErrNotFound, "not found", status)
	case status == 409:
		return newError(op, ErrConflict, "conflict", status)
	case status >= 400 && status < 500:
		return newError(op, ErrRejected, body, status)
	case status >= 500:
		return newError(op, ErrInternal, body, status)
	default:
		return newError(op, ErrInternal, body, status)
	}
}

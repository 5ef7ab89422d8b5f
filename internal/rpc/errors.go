package rpc

import "fmt"

// Code is a normalized error code string, replacing the teacher's legacy
// numeric JSON-RPC codes (spec §4.7).
type Code string

const (
	CodeParseError       Code = "PARSE_ERROR"
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeMethodNotFound   Code = "METHOD_NOT_FOUND"
	CodeInvalidParams    Code = "INVALID_PARAMS"
	CodeInternal         Code = "INTERNAL"
	CodeAuthRequired     Code = "AUTH_REQUIRED"
	CodeAuthFailed       Code = "AUTH_FAILED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeDependencyFailed Code = "DEPENDENCY_FAILED"
	CodeUnsupported      Code = "UNSUPPORTED"
)

// Error is the wire shape of a failed call.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newErrorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

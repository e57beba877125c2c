package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so wrapped or cloned
// errors still match the predefined values below.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss  = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrDisabled   = New("FEATURE_DISABLED", http.StatusNotFound, "feature disabled")
)

// Upstream fetch taxonomy.
var (
	ErrInvalidURL      = New("INVALID_URL", http.StatusInternalServerError, "invalid upstream url")
	ErrParse           = New("PARSE_ERROR", http.StatusBadGateway, "failed to decode upstream response")
	ErrNetworkBlocked  = New("NETWORK_BLOCKED", http.StatusServiceUnavailable, "timetable server unreachable, try disabling VPN")
	ErrNetwork         = New("NETWORK_ERROR", http.StatusServiceUnavailable, "network error")
	ErrInvalidResponse = New("INVALID_RESPONSE", http.StatusBadGateway, "invalid response from timetable server")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetail returns a copy of err carrying detail and the wrapped cause.
func WithDetail(err *Error, detail string, cause error) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Detail = detail
	clone.Err = cause
	return &clone
}

package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an Error into the categories callers are expected to
// handle distinctly.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindValidation
	KindRateLimit
	KindIntegrity
	KindTimeout
	KindServer
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindIntegrity:
		return "integrity"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the normalized error for every failure surfaced by the transport
// and the packages built on top of it. StatusCode, Code and RequestID are
// populated from controller responses when available so operators can
// correlate with controller-side logs.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string // machine error code from the response body
	Message    string
	RequestID  string
	RetryAfter time.Duration // set for rate-limit errors
	Err        error         // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d %s): %s", e.Kind, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an underlying cause into a kinded Error.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsConfiguration(err error) bool  { return IsKind(err, KindConfiguration) }
func IsAuthentication(err error) bool { return IsKind(err, KindAuthentication) }
func IsAuthorization(err error) bool  { return IsKind(err, KindAuthorization) }
func IsNotFound(err error) bool       { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool       { return IsKind(err, KindConflict) }
func IsValidation(err error) bool     { return IsKind(err, KindValidation) }
func IsRateLimit(err error) bool      { return IsKind(err, KindRateLimit) }
func IsIntegrity(err error) bool      { return IsKind(err, KindIntegrity) }
func IsTimeout(err error) bool        { return IsKind(err, KindTimeout) }
func IsServer(err error) bool         { return IsKind(err, KindServer) }

// kindForStatus maps an HTTP status to the error taxonomy.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindServer
	}
}

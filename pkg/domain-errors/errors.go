// Package domainerrors defines the closed set of gateway error codes and a
// small error type carrying one. Transport layers translate codes to HTTP
// status; services never return raw internal errors across the API boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a gateway failure category. The set is closed: every error
// surfaced to a caller maps to exactly one of these.
type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeNotFound         Code = "service_not_found"
	CodeMethodNotAllowed Code = "method_not_allowed"
	CodeRateLimited      Code = "rate_limit_exceeded"
	CodeUpstreamDown     Code = "upstream_unavailable"
	CodeUpstreamTimeout  Code = "upstream_timeout"
	CodeInternal         Code = "internal_error"
)

// GatewayError is the error type services return. Message is caller-safe; the
// wrapped cause (if any) is for logs only.
type GatewayError struct {
	Code    Code
	Message string
	cause   error
}

func (e GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e GatewayError) Unwrap() error { return e.cause }

// New creates a GatewayError with a caller-safe message.
func New(code Code, message string) GatewayError {
	return GatewayError{Code: code, Message: message}
}

// Wrap attaches a code and caller-safe message to an underlying cause.
func Wrap(err error, code Code, message string) GatewayError {
	return GatewayError{Code: code, Message: message, cause: err}
}

// CodeOf extracts the Code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var ge GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamDown:
		return http.StatusServiceUnavailable
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

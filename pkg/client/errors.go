package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrInvalidConfig is returned by New for a missing credential or an
	// out-of-range tunable. It is never retried.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrRetryExhausted marks a retryable failure that used up every attempt.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTerminal marks a failure classified as not worth retrying.
	ErrTerminal = errors.New("non-retryable error")
)

// RedactionMarker replaces the API key wherever it would appear in an error.
const RedactionMarker = "***"

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents HTTP 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassThrottle represents envelope errors from the throttle family.
	ErrorClassThrottle ErrorClass = "throttle"

	// ErrorClassApplication represents any other envelope error.
	ErrorClassApplication ErrorClass = "application"

	// ErrorClassNetwork represents transport failures and unreadable bodies.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents an attempt that hit its deadline.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Bungie PlatformErrorCodes the client acts on.
const (
	PlatformErrorSuccess                            = 1
	PlatformErrorSystemDisabled                     = 5
	PlatformErrorThrottleLimitExceeded              = 35
	PlatformErrorPerEndpointRequestThrottleExceeded = 36
)

// retryableErrorCodes are envelope codes that mean "back off and try again".
var retryableErrorCodes = map[int]bool{
	PlatformErrorSystemDisabled:                     true,
	PlatformErrorThrottleLimitExceeded:              true,
	PlatformErrorPerEndpointRequestThrottleExceeded: true,
}

// APIError describes a failed Bungie request.
//
// Err is ErrRetryExhausted or ErrTerminal once the client gives up, so
// callers can tell the two apart with errors.Is. Message never contains
// the API key.
type APIError struct {
	// StatusCode is the HTTP status, 0 if no response was received.
	StatusCode int

	// ErrorCode and ErrorStatus come from the response envelope, if any.
	ErrorCode   int
	ErrorStatus string

	Message   string
	Class     ErrorClass
	Retryable bool

	// Attempts is the number of dispatches made before giving up.
	Attempts int

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bungie %s error", e.Class)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.ErrorCode != 0 {
		fmt.Fprintf(&b, " (code %d %s)", e.ErrorCode, e.ErrorStatus)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
		if e.Attempts > 0 {
			fmt.Fprintf(&b, " after %d attempts", e.Attempts)
		}
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an APIError classified as transient.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// classifyStatus maps a non-2xx HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 500 && status < 600:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassThrottle, ErrorClassNetwork, ErrorClassTimeout:
		return true
	default:
		// 4xx and unrecognized envelope codes will fail the same way again
		return false
	}
}

// redactor scrubs a secret out of error text.
type redactor string

func (r redactor) redact(s string) string {
	if r == "" {
		return s
	}
	return strings.ReplaceAll(s, string(r), RedactionMarker)
}

// newError builds an APIError with every free-text field redacted.
func (r redactor) newError(e APIError) *APIError {
	e.Message = r.redact(e.Message)
	e.ErrorStatus = r.redact(e.ErrorStatus)
	e.Retryable = shouldRetry(e.Class)
	return &e
}

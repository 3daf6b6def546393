package raidhub

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingAPIKey is returned by New when no key is configured.
	ErrMissingAPIKey = errors.New("RAIDHUB_API_KEY is required")

	// ErrTimeout marks a request that hit the client's deadline.
	ErrTimeout = errors.New("raidhub request timed out")

	// ErrUnsuccessful marks a 2xx response whose envelope reports success=false.
	ErrUnsuccessful = errors.New("raidhub response unsuccessful")
)

// APIError describes a failed RaidHub request. Message never contains
// the API key.
type APIError struct {
	// StatusCode is the HTTP status, 0 if no response was received.
	StatusCode int

	Endpoint string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("raidhub api error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " %s", e.Endpoint)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Package ratelimit implements the request spacing shared by every Bungie
// API client that talks to the same host.
//
// A Spacer guarantees that consecutive request dispatches are at least a
// minimum interval apart, no matter how many goroutines call Wait at once.
// It also honors ThrottleSeconds hints returned in Bungie response
// envelopes by refusing to dispatch until the hinted time has passed.
package ratelimit

import (
	"time"
)

// State is a point-in-time snapshot of a Spacer.
type State struct {
	// LastRequest is when the most recent request was released for dispatch.
	// Zero if no request has been dispatched yet.
	LastRequest time.Time `json:"last_request"`

	// ThrottledUntil is the earliest time the next request may be
	// dispatched because of an upstream ThrottleSeconds hint.
	ThrottledUntil time.Time `json:"throttled_until"`
}

// NextAllowed returns the earliest time a request may be dispatched given
// the minimum spacing between requests.
func (s State) NextAllowed(minInterval time.Duration) time.Time {
	next := s.LastRequest.Add(minInterval)
	if s.LastRequest.IsZero() {
		next = time.Time{}
	}
	if s.ThrottledUntil.After(next) {
		return s.ThrottledUntil
	}
	return next
}

// TimeUntilNext returns how long a caller arriving at now would wait.
// Returns 0 if a request could be dispatched immediately.
func (s State) TimeUntilNext(now time.Time, minInterval time.Duration) time.Duration {
	wait := s.NextAllowed(minInterval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// IsThrottled reports whether an upstream throttle hint is still active at now.
func (s State) IsThrottled(now time.Time) bool {
	return s.ThrottledUntil.After(now)
}

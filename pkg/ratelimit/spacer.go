package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Spacer serializes request dispatch so that no two requests leave closer
// together than the caller's minimum interval.
//
// A single Spacer is meant to be created once per upstream host and passed
// to every client talking to that host.
type Spacer struct {
	// turn is a single-slot queue. Holding the slot is the only way to
	// read-then-stamp lastRequest.
	turn chan struct{}

	mu             sync.Mutex // guards lastRequest and throttledUntil
	lastRequest    time.Time
	throttledUntil time.Time

	now    func() time.Time
	logger zerolog.Logger
}

// NewSpacer creates a Spacer with no dispatch history.
func NewSpacer(logger zerolog.Logger) *Spacer {
	return &Spacer{
		turn:   make(chan struct{}, 1),
		now:    time.Now,
		logger: logger,
	}
}

// Wait blocks until the caller may dispatch a request, then records the
// dispatch. The wait covers both the minimum interval since the previous
// dispatch and any active throttle hint.
//
// If ctx is done while queued or waiting, Wait returns ctx.Err() and does
// not record a dispatch.
func (s *Spacer) Wait(ctx context.Context, minInterval time.Duration) error {
	start := s.now()

	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.turn }()

	for {
		wait := s.State().TimeUntilNext(s.now(), minInterval)
		if wait <= 0 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// A throttle hint may have arrived while sleeping; re-check.
	}

	s.mu.Lock()
	s.lastRequest = s.now()
	s.mu.Unlock()

	spacerWaitSeconds.Observe(s.now().Sub(start).Seconds())
	return nil
}

// Throttle delays the next dispatch until at least d from now.
// Non-positive durations are ignored, and a shorter hint never shortens
// an existing one.
func (s *Spacer) Throttle(d time.Duration) {
	if d <= 0 {
		return
	}

	until := s.now().Add(d)

	s.mu.Lock()
	extended := until.After(s.throttledUntil)
	if extended {
		s.throttledUntil = until
	}
	s.mu.Unlock()

	if extended {
		spacerThrottlesTotal.Inc()
		s.logger.Warn().
			Dur("throttle", d).
			Time("throttled_until", until).
			Msg("Upstream requested throttling")
	}
}

// State returns a snapshot of the spacer's dispatch history.
func (s *Spacer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		LastRequest:    s.lastRequest,
		ThrottledUntil: s.throttledUntil,
	}
}

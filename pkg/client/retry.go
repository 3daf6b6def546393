package client

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff parameters shared by every client.
const (
	// BackoffBase is the delay before the first retry, before jitter.
	BackoffBase = 500 * time.Millisecond

	// BackoffCap bounds any single retry delay.
	BackoffCap = 30 * time.Second

	// BackoffJitter is the maximum fraction added on top of the
	// exponential delay.
	BackoffJitter = 0.25
)

// Backoff returns the delay to wait after the given zero-based failed
// attempt: min(cap, base * 2^attempt * (1 + U[0, 0.25])).
func Backoff(attempt int) time.Duration {
	return backoffWithJitter(attempt, rand.Float64())
}

// backoffWithJitter computes Backoff for a jitter sample r in [0, 1).
func backoffWithJitter(attempt int, r float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 500ms * 2^6 already exceeds the cap
	if attempt > 6 {
		return BackoffCap
	}

	delay := float64(BackoffBase) * math.Pow(2, float64(attempt)) * (1 + r*BackoffJitter)
	if delay > float64(BackoffCap) {
		return BackoffCap
	}
	return time.Duration(delay)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package cache

import (
	"time"

	json "github.com/goccy/go-json"
)

// Entry is one cached payload.
type Entry struct {
	// Key is the caller-chosen cache key.
	Key string `json:"key"`

	// FetchedAt is when the payload was retrieved upstream.
	FetchedAt time.Time `json:"fetchedAt"`

	// Payload is the opaque upstream result.
	Payload json.RawMessage `json:"payload"`
}

// Age returns how long ago the payload was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Fresh reports whether the entry is younger than maxAge. A non-positive
// maxAge means entries never go stale.
func (e *Entry) Fresh(now time.Time, maxAge time.Duration) bool {
	return maxAge <= 0 || e.Age(now) <= maxAge
}

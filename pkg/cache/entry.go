package cache

import (
	"time"
)

// Entry is a cached page body with its freshness window. Redis expires
// the key as well; Expires guards against keys whose TTL was lost.
type Entry struct {
	// Data is the raw JSON envelope as received from the API.
	Data []byte `json:"data"`

	CachedAt time.Time `json:"cached_at"`
	Expires  time.Time `json:"expires"`
}

func newEntry(data []byte, now time.Time, ttl time.Duration) Entry {
	return Entry{Data: data, CachedAt: now, Expires: now.Add(ttl)}
}

// ExpiredAt reports whether the entry is stale at now.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Remaining returns how long the entry stays fresh after now, or 0.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if d := e.Expires.Sub(now); d > 0 {
		return d
	}
	return 0
}

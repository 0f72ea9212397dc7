package server

import (
	"sync"
	"time"
)

// TriggerRateLimiter allows one direct sync trigger per source per
// interval. Each source gets an independent bucket.
type TriggerRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]time.Time
	interval time.Duration
}

// NewTriggerRateLimiter creates a limiter with the given minimum interval
// between triggers of the same source. The default interval is 30 seconds.
func NewTriggerRateLimiter(interval time.Duration) *TriggerRateLimiter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &TriggerRateLimiter{
		buckets:  make(map[string]time.Time),
		interval: interval,
	}
}

// Allow reports whether a trigger of source is permitted now, or how long
// until the next one is.
func (rl *TriggerRateLimiter) Allow(source string) (bool, time.Duration) {
	return rl.allowAt(source, time.Now())
}

func (rl *TriggerRateLimiter) allowAt(source string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	last, ok := rl.buckets[source]
	if ok {
		if next := last.Add(rl.interval); now.Before(next) {
			return false, next.Sub(now)
		}
	}
	rl.buckets[source] = now
	return true, 0
}

// Reset forgets every source.
func (rl *TriggerRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]time.Time)
}

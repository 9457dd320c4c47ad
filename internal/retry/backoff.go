// Package retry computes delays between attempts of queued work and outbound
// calls.
package retry

import "time"

// MaxDelay bounds every computed delay so that a task stuck in retries is
// still picked up within a few minutes.
const MaxDelay = 5 * time.Minute

// Backoff doubles Base on every attempt up to Max. A zero Max means MaxDelay.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = MaxDelay
	}
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for range attempt {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// ExponentialBackoff returns base * 2^attempt, capped at MaxDelay.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return Backoff{Base: base}.Delay(attempt)
}

// Package ratelimit bounds the rate at which a session may dispatch
// non-Join frames to the server.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultCapacity is the default token bucket size and per-second refill
// rate: a burst of up to 10 frames is allowed at once. The bucket refills
// continuously (one token every 100ms at this rate), so more than 10 frames
// can be dispatched within a single second once the burst is spent.
const DefaultCapacity = 10

// Limiter wraps a token bucket per session. It is safe for concurrent use,
// though in practice each Session only calls it from its own read pump.
type Limiter struct {
	bucket *rate.Limiter
}

// New returns a Limiter refilling capacity tokens per second, with burst
// equal to capacity.
func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(capacity), capacity)}
}

// Allow reports whether a frame may be dispatched right now, consuming a
// token if so. It never blocks — a caller exceeding its budget gets false
// immediately, which the session translates into an ErrRateLimited error.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done. Unused by the
// session's Active-phase dispatch (which is always non-blocking per the
// rate limiter's contract), but kept for callers such as admin tooling
// that can tolerate blocking.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

package runner

import (
	"context"
	"math/rand"
	"time"
)

// Pacer inserts a randomized delay between items so requests to the remote
// service never arrive at a fixed interval. The zero value performs no wait.
type Pacer struct {
	Min time.Duration
	Max time.Duration
}

// Sample draws a uniform duration from [Min, Max]
func (p Pacer) Sample() time.Duration {
	if p.Max <= 0 || p.Max < p.Min {
		return 0
	}
	if p.Max == p.Min {
		return p.Min
	}
	// Int63n excludes its bound, so widen by one to keep Max reachable
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)+1))
}

// Wait sleeps for d or until the context is cancelled. Cancellation during
// the wait is returned so the caller can stop before starting the next item.
func (p Pacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ctx.Err()
	}
}

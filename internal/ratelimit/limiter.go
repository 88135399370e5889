// Package ratelimit enforces a minimum spacing between calls to an upstream
// service. Spacing is measured from the start of the previous permitted call.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so limiters can be driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock. time.Now carries a monotonic reading, so
// elapsed intervals never go backward.
var RealClock Clock = realClock{}

// Limiter blocks callers until at least the configured interval has passed
// since the start of the previous permitted call. One Limiter per upstream
// service; it is safe for concurrent use.
type Limiter struct {
	name    string
	clock   Clock
	limiter *rate.Limiter
}

// Config holds limiter configuration.
type Config struct {
	// Name identifies the upstream in errors.
	Name string

	// Interval is the minimum spacing between call starts.
	Interval time.Duration

	// Clock defaults to RealClock.
	Clock Clock
}

// New creates a limiter. A burst of one keeps every pair of call starts at
// least Interval apart, including after idle periods.
func New(cfg Config) *Limiter {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock
	}
	return &Limiter{
		name:    cfg.Name,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// Wait blocks until the caller may issue its request. Concurrent callers get
// successive slots. If ctx is cancelled while waiting, Wait returns an error
// wrapping ctx.Err() and the slot is handed back.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return l.wrap(err)
	}

	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		r.CancelAt(l.clock.Now())
		return l.wrap(ctx.Err())
	case <-l.clock.After(delay):
		return nil
	}
}

func (l *Limiter) wrap(err error) error {
	if l.name == "" {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return fmt.Errorf("%s rate limiter: %w", l.name, err)
}

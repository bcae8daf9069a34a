package framework

import (
	"context"
	"sync"
	"time"
)

// Clock is the timer service used by the scheduler.
type Clock interface {
	TimeSource
	// WaitUntil blocks until the clock reaches t, wake fires or ctx is
	// done. A zero t means no deadline: only wake or ctx return.
	WaitUntil(ctx context.Context, t time.Time, wake <-chan struct{}) error
}

// WallClock is the real-time Clock.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time {
	return time.Now()
}

// WaitUntil implements Clock.
func (WallClock) WaitUntil(ctx context.Context, t time.Time, wake <-chan struct{}) error {
	var timeout <-chan time.Time
	if !t.IsZero() {
		d := time.Until(t)
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timeout:
	}
	return nil
}

// SimClock is a virtual Clock. Waiting for a deadline advances the
// clock instantly, so simulated hours run in microseconds.
type SimClock struct {
	now  time.Time
	lock sync.RWMutex
}

// SimEpoch is the default start time of a SimClock.
var SimEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewSimClock creates a SimClock starting at SimEpoch.
func NewSimClock() *SimClock {
	return &SimClock{now: SimEpoch}
}

// Now implements Clock.
func (c *SimClock) Now() time.Time {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *SimClock) Advance(d time.Duration) time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set moves the clock to t if t is later than now.
func (c *SimClock) Set(t time.Time) {
	c.lock.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.lock.Unlock()
}

// Elapsed returns the virtual time since SimEpoch.
func (c *SimClock) Elapsed() time.Duration {
	return c.Now().Sub(SimEpoch)
}

// WaitUntil implements Clock.
func (c *SimClock) WaitUntil(ctx context.Context, t time.Time, wake <-chan struct{}) error {
	if !t.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Set(t)
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	}
}

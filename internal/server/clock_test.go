package server

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a manually driven Clock. Sleep advances the clock
// instead of blocking, which lets delay-sensitive paths run instantly
// while still observing elapsed time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

type fakeTimer struct {
	mu     sync.Mutex
	c      chan time.Time
	resets []time.Duration
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *fakeTimer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets = append(t.resets, d)
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) fire(at time.Time) {
	t.c <- at
}

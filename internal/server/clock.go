package server

import (
	"context"
	"time"
)

// Clock abstracts wall time and re-armable timers so the orchestrator's
// self-rescheduling playback loop can be tested without real time
// passing.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Timer is a re-armable single-fire timer.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type realTimer struct {
	t *time.Timer
}

func (rt *realTimer) C() <-chan time.Time {
	return rt.t.C
}

func (rt *realTimer) Reset(d time.Duration) {
	rt.t.Reset(d)
}

func (rt *realTimer) Stop() {
	rt.t.Stop()
}

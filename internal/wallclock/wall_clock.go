// Package wallclock abstracts the parts of context and time that the
// protocol engine needs, so tests can interpose on apparent time.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts a subset of functionality from packages context and
	// time.
	WallClock interface {
		WithTimeoutCause(
			parent context.Context,
			timeout time.Duration,
			cause error,
		) (context.Context, context.CancelFunc)
		NewTimer(d time.Duration) Timer
		Now() time.Time
	}

	// Timer abstracts the functionality of time.Timer.
	Timer interface {
		C() <-chan time.Time
		Stop() bool
	}

	wallClock struct{}

	timer struct{ *time.Timer }
)

func (wallClock) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, timeout, cause)
}

func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{time.NewTimer(d)}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (t timer) C() <-chan time.Time {
	return t.Timer.C
}

// Instance is a WallClock singleton used for indirect time-based references
// to packages context and time. Test code can replace it to control apparent
// time without sleeping.
var Instance WallClock = wallClock{}

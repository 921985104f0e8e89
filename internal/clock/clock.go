// Package clock abstracts time so the probe aggregation window can be
// driven by a fake clock in tests. The interface is a subset of the
// jonboulle/clockwork API so a clockwork.FakeClock satisfies it directly;
// clockwork itself is only imported from test code.
package clock

import "time"

// Clock is the time surface the controller needs.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// file: internals/helpers/dbtime/clock.go
package dbtime

import (
	"sync"
	"time"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// NowUTC is the production clock; timestamps are stored in UTC (timestamptz).
func NowUTC() time.Time { return time.Now().UTC() }

// OrDefault returns c, or NowUTC when c is nil.
func (c Clock) OrDefault() Clock {
	if c == nil {
		return NowUTC
	}
	return c
}

// FakeClock is a manually advanced clock for tests and simulations.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Clock adapts the fake to the Clock func type.
func (f *FakeClock) Clock() Clock { return f.Now }

// MsSince returns elapsed milliseconds between start and c().
func MsSince(c Clock, start time.Time) int64 {
	return c.OrDefault()().Sub(start).Milliseconds()
}

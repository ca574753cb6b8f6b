// Package scan runs control logic in fixed-duration scan cycles.
package scan

import (
	"errors"
	"log"
	"runtime"
	"runtime/debug"
	"time"
)

// Clock is the time source used by a Timer.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Timer pads every cycle out to a target duration and publishes the
// measured length of the last completed cycle.
type Timer struct {
	target      time.Duration
	clock       Clock
	maintenance []func()

	// gcPercent is the collector setting to restore on Close, or -1 if
	// the collector was left alone.
	gcPercent int

	start    time.Time
	last     time.Duration
	overruns uint64
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithMaintenance adds a hook that runs at the end of every cycle,
// before the remaining budget is computed. Hooks run in the order their
// options were given.
func WithMaintenance(fn func()) Option {
	return func(t *Timer) { t.maintenance = append(t.maintenance, fn) }
}

// WithManualGC turns off the collector's pacer and instead collects once
// per cycle from a maintenance hook, so pauses only ever happen at the
// end of a cycle.
func WithManualGC() Option {
	return func(t *Timer) {
		if t.gcPercent < 0 {
			t.gcPercent = debug.SetGCPercent(-1)
		}
		t.maintenance = append(t.maintenance, runtime.GC)
	}
}

// New returns a Timer for cycles of the given target duration. The heap
// is collected once before returning.
func New(target time.Duration, opts ...Option) (*Timer, error) {
	if target <= 0 {
		return nil, errors.New("scan: target cycle duration must be positive")
	}
	t := &Timer{
		target:    target,
		clock:     wallClock{},
		gcPercent: -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	// Start with a clean heap so the first timed cycles are not charged
	// for garbage left over from startup.
	runtime.GC()
	t.start = t.clock.Now()
	return t, nil
}

// Close restores the collector setting changed by WithManualGC.
func (t *Timer) Close() {
	if t.gcPercent >= 0 {
		debug.SetGCPercent(t.gcPercent)
		t.gcPercent = -1
	}
}

func (t *Timer) Target() time.Duration {
	return t.target
}

// Last returns the measured duration of the most recently completed
// cycle, or zero before the first cycle completes.
func (t *Timer) Last() time.Duration {
	return t.last
}

// Overruns returns how many cycles took longer than the target.
func (t *Timer) Overruns() uint64 {
	return t.overruns
}

// Begin resets the stopwatch.
func (t *Timer) Begin() {
	t.start = t.clock.Now()
}

// End runs the maintenance hooks, sleeps for whatever is left of the
// target duration and publishes the measured cycle length.
func (t *Timer) End() time.Duration {
	for _, fn := range t.maintenance {
		fn()
	}
	elapsed := t.clock.Now().Sub(t.start)
	if remaining := t.target - elapsed; remaining > 0 {
		t.clock.Sleep(remaining)
	} else {
		t.overruns++
		log.Printf("scan overrun: cycle took %v, target %v", elapsed, t.target)
	}
	last := t.clock.Now().Sub(t.start)
	if last < 0 {
		last = 0
	}
	t.last = last
	return last
}

// Cycle runs fn as one scan cycle. fn receives the length of the
// previous cycle. The end-of-cycle accounting runs even if fn fails or
// panics; the failure is then passed on to the caller.
func (t *Timer) Cycle(fn func(step time.Duration) error) error {
	step := t.last
	t.Begin()
	defer t.End()
	return fn(step)
}

// Package control runs the scan loop: read buttons, step the drive machine
// inside a fixed-length scan cycle, then push the results to the sinks.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/w1xm/scan_drive/drive"
	"github.com/w1xm/scan_drive/scan"
)

// Inputs reports the buttons currently held down.
type Inputs interface {
	Pressed() (drive.Events, error)
}

type InputsFunc func() (drive.Events, error)

func (f InputsFunc) Pressed() (drive.Events, error) { return f() }

// Merge combines several button sources; a button counts as pressed if
// any source reports it.
func Merge(inputs ...Inputs) Inputs {
	return InputsFunc(func() (drive.Events, error) {
		var all drive.Events
		for _, in := range inputs {
			events, err := in.Pressed()
			if err != nil {
				return 0, err
			}
			all |= events
		}
		return all, nil
	})
}

// Output routes one value of the drive state to a sink.
type Output struct {
	Name  string
	Apply func(state drive.State) error
}

// Cycle describes one completed scan.
type Cycle struct {
	Seq    uint64
	Events drive.Events
	State  drive.State
	// Step is the time-step the machine integrated over.
	Step time.Duration
	// Elapsed is the measured length of this scan.
	Elapsed time.Duration
	Overrun bool
}

type Observer interface {
	Observe(c Cycle)
}

type ObserverFunc func(c Cycle)

func (f ObserverFunc) Observe(c Cycle) { f(c) }

type Loop struct {
	Timer     *scan.Timer
	Machine   *drive.Machine
	Inputs    Inputs
	Outputs   []Output
	Observers []Observer

	seq uint64
}

// RunCycle performs one scan. Any error is a control fault; the caller
// must stop commanding the actuator.
func (l *Loop) RunCycle() error {
	l.seq++
	events, err := l.Inputs.Pressed()
	if err != nil {
		return fmt.Errorf("scan %d: reading inputs: %w", l.seq, err)
	}
	var (
		state drive.State
		step  time.Duration
	)
	if err := l.Timer.Cycle(func(s time.Duration) error {
		step = s
		state = l.Machine.Step(events, s)
		return nil
	}); err != nil {
		return fmt.Errorf("scan %d: %w", l.seq, err)
	}
	for _, o := range l.Outputs {
		if err := o.Apply(state); err != nil {
			return fmt.Errorf("scan %d: output %s: %w", l.seq, o.Name, err)
		}
	}
	elapsed := l.Timer.Last()
	c := Cycle{
		Seq:     l.seq,
		Events:  events,
		State:   state,
		Step:    step,
		Elapsed: elapsed,
		Overrun: elapsed > l.Timer.Target(),
	}
	for _, o := range l.Observers {
		o.Observe(c)
	}
	return nil
}

// Seq returns the number of scans started.
func (l *Loop) Seq() uint64 { return l.seq }

// Run performs scans until ctx is done or a scan fails.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.RunCycle(); err != nil {
			return err
		}
	}
}

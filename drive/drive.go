// Package drive turns operator button presses into a speed command for a
// single open-loop actuator.
package drive

import (
	"math"
	"time"
)

type State struct {
	// Speed is the commanded speed in degrees/second, positive forward.
	Speed float64
	// ProfiledSpeed is Speed with the dead-zone profile applied. It is
	// only maintained for profiled deployments.
	ProfiledSpeed float64
	// Braking is set while a brake-to-stop ramp is in progress.
	Braking bool
	Color   Color

	profiled bool
}

// Command returns the speed to send to the actuator.
func (s State) Command() float64 {
	if s.profiled {
		return s.ProfiledSpeed
	}
	return s.Speed
}

type Machine struct {
	cfg   Config
	state State
}

func New(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		cfg: cfg,
		state: State{
			Color:    NeutralColor,
			profiled: cfg.Profiled,
		},
	}, nil
}

func (m *Machine) Config() Config {
	return m.cfg
}

func (m *Machine) State() State {
	return m.state
}

// Step advances the machine by one scan. step is the measured length of
// the previous scan; negative values are treated as zero.
func (m *Machine) Step(events Events, step time.Duration) State {
	dt := step.Seconds()
	if dt < 0 {
		dt = 0
	}
	s := &m.state

	if e, ok := events.First(); ok {
		switch e {
		case Increase:
			s.Speed = m.clamp(s.Speed + m.cfg.AccelerationRate*dt)
			s.Braking = false
		case Decrease:
			s.Speed = m.clamp(s.Speed - m.cfg.DecelerationRate*dt)
			s.Braking = false
		case Brake:
			s.Braking = true
		case Stop:
			s.Speed = 0
		}
	}

	if s.Braking {
		delta := m.cfg.BrakingRate * dt
		if math.Abs(s.Speed) <= delta {
			s.Speed = 0
			s.Braking = false
		} else if s.Speed > 0 {
			s.Speed = m.clamp(s.Speed - delta)
		} else {
			s.Speed = m.clamp(s.Speed + delta)
		}
	}

	// The lamp keeps its last direction when stopped.
	switch {
	case s.Speed > 0:
		s.Color = ForwardColor
	case s.Speed < 0:
		s.Color = ReverseColor
	}

	if m.cfg.Profiled {
		s.ProfiledSpeed = profile(s.Speed, m.cfg.MinSpeed)
	}
	return *s
}

func (m *Machine) clamp(speed float64) float64 {
	return math.Max(-m.cfg.MaxSpeed, math.Min(m.cfg.MaxSpeed, speed))
}

// profile lifts nonzero speeds out of the actuator's dead zone.
func profile(speed, min float64) float64 {
	switch {
	case speed > 0:
		return speed + min
	case speed < 0:
		return speed - min
	}
	return 0
}

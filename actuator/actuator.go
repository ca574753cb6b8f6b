// Package actuator defines the sinks the control loop drives.
package actuator

import "github.com/w1xm/scan_drive/drive"

// Actuator accepts a signed speed command in degrees/second.
type Actuator interface {
	SetVelocity(degPerSec float64) error
	Stop() error
}

// Indicator shows the drive direction on a lamp.
type Indicator interface {
	SetColor(c drive.Color) error
}

// Func adapts a plain function to Actuator. Stop sends zero.
type Func func(degPerSec float64) error

func (f Func) SetVelocity(degPerSec float64) error { return f(degPerSec) }
func (f Func) Stop() error                         { return f(0) }

// Multi fans one command out to several actuators. The first error wins
// but every actuator is still commanded.
type Multi []Actuator

func (m Multi) SetVelocity(degPerSec float64) error {
	var first error
	for _, a := range m {
		if err := a.SetVelocity(degPerSec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Stop() error {
	var first error
	for _, a := range m {
		if err := a.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Indicators fans one color out to several lamps.
type Indicators []Indicator

func (is Indicators) SetColor(c drive.Color) error {
	var first error
	for _, i := range is {
		if err := i.SetColor(c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

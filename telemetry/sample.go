// Package telemetry exports one record per scan cycle.
package telemetry

import (
	"time"

	"github.com/w1xm/scan_drive/control"
)

// Sample is the JSON form of a scan cycle.
type Sample struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Pressed   []string  `json:"pressed"`
	Speed     float64   `json:"speed"`
	Command   float64   `json:"command"`
	Braking   bool      `json:"braking"`
	Color     string    `json:"color"`
	Intensity float64   `json:"intensity"`
	StepMS    float64   `json:"step_ms"`
	ElapsedMS float64   `json:"elapsed_ms"`
	Overrun   bool      `json:"overrun"`
}

func NewSample(c control.Cycle, now time.Time) Sample {
	pressed := []string{}
	for _, e := range c.Events.List() {
		pressed = append(pressed, e.String())
	}
	return Sample{
		Seq:       c.Seq,
		Time:      now,
		Pressed:   pressed,
		Speed:     c.State.Speed,
		Command:   c.State.Command(),
		Braking:   c.State.Braking,
		Color:     c.State.Color.Hue.String(),
		Intensity: c.State.Color.Intensity,
		StepMS:    milliseconds(c.Step),
		ElapsedMS: milliseconds(c.Elapsed),
		Overrun:   c.Overrun,
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// fields flattens a sample for a time series point.
func (s Sample) fields() map[string]interface{} {
	return map[string]interface{}{
		"seq":        int64(s.Seq),
		"speed":      s.Speed,
		"command":    s.Command,
		"braking":    s.Braking,
		"color":      s.Color,
		"intensity":  s.Intensity,
		"step_ms":    s.StepMS,
		"elapsed_ms": s.ElapsedMS,
		"overrun":    s.Overrun,
		"pressed":    len(s.Pressed),
	}
}

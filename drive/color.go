package drive

import "fmt"

// Hue is the indicator lamp's color family.
type Hue uint8

const (
	// Neutral is only ever shown before the actuator first moves.
	Neutral Hue = iota
	Forward
	Reverse
)

func (h Hue) String() string {
	switch h {
	case Neutral:
		return "NEUTRAL"
	case Forward:
		return "FORWARD"
	case Reverse:
		return "REVERSE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(h))
}

// Color is a hue at an intensity between 0 and 1.
type Color struct {
	Hue       Hue
	Intensity float64
}

var (
	NeutralColor = Color{Neutral, 0.5}
	ForwardColor = Color{Forward, 0.5}
	ReverseColor = Color{Reverse, 0.5}
	// RemoteColor is shown on the operator's remote while it is connected.
	RemoteColor = Color{Forward, 0.1}
)

// RGB returns the lamp color scaled by intensity. Neutral is orange,
// Forward white and Reverse red.
func (c Color) RGB() (r, g, b uint8) {
	var fr, fg, fb float64
	switch c.Hue {
	case Neutral:
		fr, fg, fb = 255, 165, 0
	case Forward:
		fr, fg, fb = 255, 255, 255
	case Reverse:
		fr, fg, fb = 255, 0, 0
	}
	i := c.Intensity
	if i < 0 {
		i = 0
	} else if i > 1 {
		i = 1
	}
	return uint8(fr * i), uint8(fg * i), uint8(fb * i)
}

func (c Color) String() string {
	return fmt.Sprintf("%s*%.2f", c.Hue, c.Intensity)
}

func (h Hue) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hue) UnmarshalText(text []byte) error {
	for _, c := range []Hue{Neutral, Forward, Reverse} {
		if c.String() == string(text) {
			*h = c
			return nil
		}
	}
	return fmt.Errorf("unknown hue %q", text)
}

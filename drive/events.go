package drive

import (
	"fmt"
	"strings"
)

// Event is one of the momentary operator buttons.
type Event uint8

const (
	Increase Event = 1 << iota
	Decrease
	Brake
	Stop
)

// priority lists events in the order the machine acts on them.
var priority = []Event{Increase, Decrease, Brake, Stop}

func (e Event) String() string {
	switch e {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	case Brake:
		return "brake"
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(e))
}

func ParseEvent(name string) (Event, error) {
	for _, e := range priority {
		if e.String() == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Events is the set of buttons held down during one scan.
type Events uint8

func Of(events ...Event) Events {
	var s Events
	for _, e := range events {
		s |= Events(e)
	}
	return s
}

func (s Events) Has(e Event) bool {
	return s&Events(e) != 0
}

// First returns the highest priority event in the set.
func (s Events) First() (Event, bool) {
	for _, e := range priority {
		if s.Has(e) {
			return e, true
		}
	}
	return 0, false
}

// List returns the events in priority order.
func (s Events) List() []Event {
	var out []Event
	for _, e := range priority {
		if s.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s Events) String() string {
	var names []string
	for _, e := range s.List() {
		names = append(names, e.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

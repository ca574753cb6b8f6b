// Package panel reads the operator's buttons from a Modbus I/O module and
// drives the direction lamp wired to the same module.
//
// Discrete inputs 0-3 are the increase, decrease, brake and stop buttons.
// Holding register 0 takes the lamp hue and register 1 its intensity in
// per mille.
package panel

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/scan_drive/drive"
	"github.com/w1xm/scan_drive/internal/modbus"
)

// buttons lists the event wired to each discrete input.
var buttons = []drive.Event{drive.Increase, drive.Decrease, drive.Brake, drive.Stop}

const (
	hueRegister   = 0
	pollInterval  = 20 * time.Millisecond
	defaultSlave  = 1
	intensityUnit = 1000
)

type Options struct {
	// Port and BaudRate select a local RTU connection
	Port     string
	BaudRate int
	// Address selects Modbus TCP
	Address string
	// URL and Password select a modbus_server bridge
	URL      string
	Password string
}

type Status struct {
	Connected bool
	Pressed   drive.Events
	Color     drive.Color
}

type StatusCallback func(status Status)

type Panel struct {
	statusCallback StatusCallback
	client         *modbus.Client

	mu      sync.Mutex
	inputs  []bool
	pressed drive.Events
	// color is the requested lamp color; written is what the module
	// last accepted.
	color    drive.Color
	written  drive.Color
	hasColor bool
	synced   bool
}

func Connect(ctx context.Context, opts Options, statusCallback StatusCallback) (*Panel, error) {
	p := &Panel{
		client: &modbus.Client{
			Port:         opts.Port,
			BaudRate:     opts.BaudRate,
			Address:      opts.Address,
			URL:          opts.URL,
			Password:     opts.Password,
			SlaveId:      defaultSlave,
			PollInterval: pollInterval,
		},
		statusCallback: statusCallback,
	}
	p.client.Poll = p.pollOnce
	p.client.OnDisconnect = p.disconnected
	return p, p.client.Connect(ctx)
}

func (p *Panel) pollOnce() error {
	results, err := p.client.ReadDiscreteInputs(0, uint16(len(buttons)))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.inputs = modbus.BytesToBits(results)
	p.pressed = inputsToEvents(p.inputs)
	color, write := p.color, p.hasColor && (!p.synced || p.color != p.written)
	p.mu.Unlock()

	if write {
		if err := p.client.WriteRegisters(hueRegister, colorRegisters(color)...); err != nil {
			return err
		}
		p.mu.Lock()
		p.written = color
		p.synced = true
		p.mu.Unlock()
	}
	p.notifyStatus(true)
	return nil
}

func (p *Panel) disconnected() {
	p.mu.Lock()
	p.pressed = 0
	// The module may have been power cycled; repaint the lamp.
	p.synced = false
	p.mu.Unlock()
	log.Printf("panel disconnected; releasing all buttons")
	p.notifyStatus(false)
}

func (p *Panel) notifyStatus(connected bool) {
	if p.statusCallback == nil {
		return
	}
	p.mu.Lock()
	status := Status{
		Connected: connected,
		Pressed:   p.pressed,
		Color:     p.written,
	}
	p.mu.Unlock()
	p.statusCallback(status)
}

// Pressed returns the buttons held down at the last poll. While the
// module is unreachable no buttons are reported.
func (p *Panel) Pressed() (drive.Events, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressed, nil
}

// SetColor queues a lamp update; it is written on the next poll.
func (p *Panel) SetColor(c drive.Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.color = c
	p.hasColor = true
	return nil
}

func inputsToEvents(inputs []bool) drive.Events {
	var events drive.Events
	for i, e := range buttons {
		if i < len(inputs) && inputs[i] {
			events |= drive.Of(e)
		}
	}
	return events
}

func colorRegisters(c drive.Color) []uint16 {
	i := math.Round(c.Intensity * intensityUnit)
	if i < 0 {
		i = 0
	} else if i > intensityUnit {
		i = intensityUnit
	}
	return []uint16{uint16(c.Hue), uint16(i)}
}

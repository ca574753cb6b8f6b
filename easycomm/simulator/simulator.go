// Package simulator emulates an EasyComm III axis with a motor dead zone,
// for running the drive without hardware.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/scan_drive/easycomm/internal/status"
	"golang.org/x/sync/errgroup"
)

// Loosely inspired by https://github.com/rolandturner/ground-simulator/blob/master/Simulator.js

type Simulator struct {
	conn    io.ReadWriteCloser
	mu      sync.Mutex
	status  status.Status
	last    status.Status
	verbose bool
}

func New() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return newSimulator(a), b
}

func newSimulator(conn io.ReadWriteCloser) *Simulator {
	s := &Simulator{conn: conn, status: status.Status{Version: "sim", Temperature: 21}}
	s.status.SetStatusRegister(1)
	s.status.SetErrorRegister(1)
	return s
}

// SetVerbose logs every line exchanged with the controller.
func (s *Simulator) SetVerbose(v bool) {
	s.verbose = v
}

var cmdRE = regexp.MustCompile(`^([\?A-Z]+)(.*)$`)

func (s *Simulator) parseInput(input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := cmdRE.FindStringSubmatch(input)
	if parts == nil {
		return fmt.Errorf("unrecognized command %q", input)
	}
	cmd, arg := parts[1], parts[2]
	switch cmd {
	case "SA":
		s.status.SetStatusRegister(1)
		s.status.CommandVel = 0
		return nil
	case "AZ":
		if arg != "" {
			return fmt.Errorf("position commands are not supported: %q", input)
		}
	case "VL", "VR":
		if arg == "" {
			dir := "R"
			if s.status.CommandVel < 0 {
				dir = "L"
			}
			return s.send("V%s%3.2f", dir, math.Abs(s.status.CommandVel))
		}
		if err := status.ParseFloat(&s.status.CommandVel, arg); err != nil {
			return err
		}
		// Velocity commands are in mdeg/s
		s.status.CommandVel /= 1000
		if cmd[1] == 'L' {
			s.status.CommandVel = -s.status.CommandVel
		}
		s.status.SetStatusRegister(2)
		return nil
	}
	return s.sendStatus(nil, input)
}

const (
	// Maximum acceleration in degrees/second^2
	maxAccel = 2000
	// Maximum velocity in degrees/second
	maxVel = 1200
	// Commands below deadZone do not turn the motor
	deadZone = 45
	minVel   = 0.1
	// Acceleration due to drag when not driving
	dragAccel = 300
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			if err := s.step(); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		// Unblock the reader once we are shutting down.
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		input := scanner.Text()
		if s.verbose {
			log.Printf("srv->sim: %s", input)
		}
		if err := s.parseInput(input); err != nil {
			log.Printf("parsing %q: %v", input, err)
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading port: %w", err)
	}
	return io.EOF
}

// velServo returns an actual velocity for the given current and target velocity
func velServo(s, t float64) float64 {
	if math.Abs(t) < deadZone {
		t = 0
	}
	delta := math.Abs(t - s)
	if delta > maxAccel*stepSize.Seconds() {
		delta = maxAccel * stepSize.Seconds()
	}
	if t < s {
		delta = -delta
	}
	new := s + delta
	if math.Abs(new) < minVel {
		return 0
	}
	if new > maxVel {
		return maxVel
	} else if new < -maxVel {
		return -maxVel
	}
	return new
}

func drag(s float64) float64 {
	a := math.Abs(s)
	a -= dragAccel * stepSize.Seconds()
	if a < 0 {
		a = 0
	}
	if s < 0 {
		return -a
	}
	return a
}

func (s *Simulator) step() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if serr := s.sendStatus(&s.last, ""); serr != nil {
			log.Printf("sending status: %v", serr)
			if err == nil {
				err = serr
			}
		}
		s.last = s.status
	}()
	switch s.status.CommandFlags {
	case "VELOCITY":
		s.status.Vel = velServo(s.status.Vel, s.status.CommandVel)
	default:
		// Coasting
		s.status.Vel = drag(s.status.Vel)
	}
	s.status.Drive = math.Abs(s.status.Vel) / maxVel * 100
	s.status.Pos = math.Mod(s.status.Pos+s.status.Vel*stepSize.Seconds()+360, 360)
	return nil
}

// sendStatus reports the fields queried by cmd, or every field that
// changed since old when cmd is empty.
func (s *Simulator) sendStatus(old *status.Status, cmd string) error {
	var oldv reflect.Value
	if old != nil {
		oldv = reflect.ValueOf(*old)
	}
	v := reflect.ValueOf(s.status)
	found := false
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		tag := field.Tag.Get("report")
		if tag == "" || tag == "-" {
			continue
		}
		fv := v.Field(i)
		value := fv.Interface()
		if (cmd != "" && cmd != strings.TrimSuffix(tag, ",")) || (cmd == "" && old != nil && reflect.DeepEqual(value, oldv.Field(i).Interface())) {
			continue
		}
		found = true
		var err error
		switch fv.Kind() {
		case reflect.Float32, reflect.Float64:
			err = s.send("%s%3.2f", tag, value)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			err = s.send("%s%d", tag, value)
		case reflect.String:
			err = s.send("%s%s", tag, value)
		default:
			return fmt.Errorf("don't know how to send %s: %q (value %+v)", field.Name, tag, fv.Interface())
		}
		if err != nil {
			return err
		}
	}
	if cmd == "IP1" {
		var limits int
		if s.status.LimitCCW {
			limits |= 1
		}
		if s.status.LimitCW {
			limits |= 2
		}
		return s.send("IP1,%d", limits)
	}
	if cmd != "" && !found {
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (s *Simulator) send(cmd string, fields ...interface{}) error {
	if len(fields) > 0 {
		cmd = fmt.Sprintf(cmd, fields...)
	}
	if s.verbose {
		log.Printf("sim->srv: %s", cmd)
	}
	_, err := fmt.Fprintf(s.conn, "%s\n", cmd)
	return err
}

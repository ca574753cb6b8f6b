// Package easycomm drives a single EasyComm III axis as a velocity actuator.
package easycomm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/scan_drive/easycomm/internal/status"
	"golang.org/x/sync/errgroup"
)

// Protocol docs at https://github.com/Hamlib/Hamlib/blob/master/rotators/easycomm/easycomm.txt

type Status = status.Status

type StatusCallback func(status Status)

// Rotator implements support for an EasyComm III rotator driven in
// velocity mode.
type Rotator struct {
	statusCallback StatusCallback

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	status Status
	// command is the last requested velocity in degrees/second. It is
	// resent whenever a new connection comes up.
	command float64
	stopped bool
}

// pollCommands are sent once per poll interval to refresh Status.
var pollCommands = []string{
	`AZ`,
	`GS`,
	`GE`,
	`VE`,
	`IP0`,
	`IP1`,
	`IP5`,
	`IP7`,
	`CR12`,
}

const pollInterval = 1 * time.Second

// NewRotator wraps an already open connection. Call Run to start
// exchanging data.
func NewRotator(conn io.ReadWriteCloser, statusCallback StatusCallback) *Rotator {
	return &Rotator{conn: conn, statusCallback: statusCallback, stopped: true}
}

func ConnectTCP(ctx context.Context, addr string, statusCallback StatusCallback) (*Rotator, error) {
	r := &Rotator{statusCallback: statusCallback, stopped: true}
	dialer := &net.Dialer{
		Timeout: time.Second,
	}
	go r.reconnectLoop(ctx, addr, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return dialer.DialContext(ctx, "tcp", addr)
	})
	return r, nil
}

func ConnectSerial(ctx context.Context, port string, baud int, statusCallback StatusCallback) (*Rotator, error) {
	r := &Rotator{statusCallback: statusCallback, stopped: true}
	go r.reconnectLoop(ctx, port, func(context.Context) (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	})
	return r, nil
}

func (r *Rotator) reconnectLoop(ctx context.Context, port string, open func(context.Context) (io.ReadWriteCloser, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		conn, err := open(ctx)
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("watching %q: %v", port, err)
		}
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
	}
}

// Run exchanges commands and status with the rotator until the
// connection fails or ctx is canceled. A connection that reaches EOF
// returns io.EOF.
func (r *Rotator) Run(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-ctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(conn)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			input := scanner.Text()
			if err := r.parseInput(input); err != nil {
				log.Printf("parsing %q: %v", input, err)
				continue
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		return io.EOF
	})
	g.Go(func() error {
		if err := r.resend(); err != nil {
			return err
		}
		for {
			for _, cmd := range pollCommands {
				if err := r.send(cmd); err != nil {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	})
	return g.Wait()
}

func (r *Rotator) parseInput(input string) error {
	if len(input) < 2 {
		return errors.New("truncated output")
	}
	r.mu.Lock()
	old := r.status
	defer func() {
		new := r.status
		r.mu.Unlock()
		if new != old {
			r.notifyStatus()
		}
	}()
	s := &r.status
	switch {
	case input[:2] == "AZ": // AZxxx.x
		return status.ParseFloat(&s.Pos, input[2:])
	case input[:2] == "GS": // GSxxx
		i, err := strconv.ParseUint(input[2:], 10, 64)
		if err != nil {
			return err
		}
		s.SetStatusRegister(i)
	case input[:2] == "GE": // GExxx
		i, err := strconv.ParseUint(input[2:], 10, 64)
		if err != nil {
			return err
		}
		s.SetErrorRegister(i)
	case input[:2] == "VE": // VEaaaaaa
		s.Version = input[2:]
	case input[:2] == "VR", input[:2] == "VL": // VRxxx.x
		if err := status.ParseFloat(&s.CommandVel, input[2:]); err != nil {
			return err
		}
		if input[1] == 'L' {
			s.CommandVel = -s.CommandVel
		}
	case input[:2] == "IP": // IPn,value
		parts := strings.SplitN(input[2:], ",", 2)
		if len(parts) != 2 {
			return errors.New("truncated list")
		}
		switch parts[0] {
		case "0":
			return status.ParseFloat(&s.Temperature, parts[1])
		case "1":
			i, err := strconv.Atoi(parts[1])
			if err != nil {
				return err
			}
			s.LimitCCW = i&1 != 0
			s.LimitCW = i&2 != 0
		case "5":
			return status.ParseFloat(&s.Drive, parts[1])
		case "7":
			return status.ParseFloat(&s.Vel, parts[1])
		default:
			return fmt.Errorf("unknown input register %q", parts[0])
		}
	case input[:2] == "CR": // CRn,value
		parts := strings.SplitN(input[2:], ",", 2)
		if len(parts) != 2 {
			return errors.New("truncated list")
		}
		if parts[0] != "12" {
			return fmt.Errorf("unknown config register %q", parts[0])
		}
		return status.ParseFloat(&s.CommandVel, parts[1])
	default:
		return errors.New("unknown rotator output")
	}
	return nil
}

func (r *Rotator) notifyStatus() {
	if r.statusCallback == nil {
		return
	}
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()
	r.statusCallback(status)
}

// Status returns the most recently reported status.
func (r *Rotator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Rotator) send(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendLocked(cmd)
}

func (r *Rotator) sendLocked(cmd string) error {
	if r.conn == nil {
		return nil
	}
	if _, err := r.conn.Write([]byte(cmd + "\n")); err != nil {
		return err
	}
	return nil
}

// resend repeats the last command on a fresh connection.
func (r *Rotator) resend() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return r.sendLocked("SA")
	}
	return r.sendLocked(velocityCommand(r.command))
}

func velocityCommand(degPerSec float64) string {
	dir := "R"
	if degPerSec < 0 {
		dir = "L"
	}
	// Velocity commands are in mdeg/s
	return fmt.Sprintf("V%s%03.0f", dir, math.Abs(degPerSec)*1000)
}

// SetVelocity commands the axis to turn at degPerSec, positive
// clockwise. While disconnected the command is held and sent once the
// rotator comes back.
func (r *Rotator) SetVelocity(degPerSec float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command = degPerSec
	r.stopped = false
	return r.sendLocked(velocityCommand(degPerSec))
}

func (r *Rotator) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command = 0
	r.stopped = true
	return r.sendLocked("SA")
}

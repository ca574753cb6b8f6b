package easycomm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type NoopCloser struct {
	io.Reader
	write bytes.Buffer
}

func (nc *NoopCloser) Write(p []byte) (n int, err error) {
	return nc.write.Write(p)
}

func (nc *NoopCloser) Close() error {
	return nil
}

func TestParsing(t *testing.T) {
	for _, test := range []struct {
		input  string
		status Status
	}{
		{"AZ170.00", Status{Pos: 170}},
		{`IP7,1.5`, Status{Vel: 1.5}},
		{`GS262`, Status{StatusRegister: 262, Moving: true, CommandFlags: "POSITION"}},
		{`GS2`, Status{StatusRegister: 2, Moving: true, CommandFlags: "VELOCITY"}},
		{`GE6`, Status{ErrorRegister: 6, ErrorFlags: struct{ NoError, SensorError, HomingError, MotorError bool }{SensorError: true, HomingError: true}}},
		{`IP0,35.6`, Status{Temperature: 35.6}},
		{`IP1,2`, Status{LimitCW: true}},
		{`IP5,10 IP5,11 IP5,12`, Status{Drive: 12}},
		{`CR12,10.5`, Status{CommandVel: 10.5}},
		{`VL2.50`, Status{CommandVel: -2.5}},
		{`VEsim`, Status{Version: "sim"}},
		{`XX1 AZ1`, Status{Pos: 1}},
	} {
		t.Run(test.input, func(t *testing.T) {
			ctx := context.Background()
			conn := &NoopCloser{
				Reader: strings.NewReader(test.input),
			}
			var status Status
			r := NewRotator(conn, func(s Status) {
				status = s
			})
			if err := r.Run(ctx); err != io.EOF {
				t.Errorf("Run failed: got %v, want EOF", err)
			}
			if diff := cmp.Diff(status, test.status); diff != "" {
				t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestVelocityCommands(t *testing.T) {
	for _, test := range []struct {
		velocity float64
		want     string
	}{
		{12.5, "VR12500\n"},
		{-1.25, "VL1250\n"},
		{0, "VR000\n"},
	} {
		conn := &NoopCloser{Reader: strings.NewReader("")}
		r := NewRotator(conn, nil)
		if err := r.SetVelocity(test.velocity); err != nil {
			t.Fatalf("SetVelocity(%v): %v", test.velocity, err)
		}
		if got := conn.write.String(); got != test.want {
			t.Errorf("SetVelocity(%v) wrote %q, want %q", test.velocity, got, test.want)
		}
	}
}

func TestStop(t *testing.T) {
	conn := &NoopCloser{Reader: strings.NewReader("")}
	r := NewRotator(conn, nil)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if got, want := conn.write.String(), "SA\n"; got != want {
		t.Errorf("Stop wrote %q, want %q", got, want)
	}
}

func TestHeldCommandResentOnRun(t *testing.T) {
	r := NewRotator(nil, nil)
	// Not connected: the command is held.
	if err := r.SetVelocity(3); err != nil {
		t.Fatal(err)
	}
	conn := &NoopCloser{Reader: strings.NewReader("")}
	r.conn = conn
	if err := r.Run(context.Background()); err != io.EOF {
		t.Errorf("Run failed: got %v, want EOF", err)
	}
	if got := conn.write.String(); !strings.HasPrefix(got, "VR3000\n") {
		t.Errorf("first write %q, want held velocity command", got)
	}
}

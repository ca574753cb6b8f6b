package drive

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var testConfig = Config{
	MaxSpeed:         1000,
	AccelerationRate: 40,
	DecelerationRate: 40,
	BrakingRate:      120,
}

func newMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

var approx = cmp.Options{
	cmpopts.EquateApprox(0, 1e-9),
	cmpopts.IgnoreUnexported(State{}),
}

func TestInitialState(t *testing.T) {
	m := newMachine(t, testConfig)
	want := State{Color: NeutralColor}
	if diff := cmp.Diff(m.State(), want, approx); diff != "" {
		t.Errorf("unexpected state: got(-)/want(+):\n%s", diff)
	}
}

func TestBrakingExample(t *testing.T) {
	m := newMachine(t, testConfig)
	for _, test := range []struct {
		name   string
		events Events
		step   time.Duration
		want   State
	}{
		{"accelerate", Of(Increase), time.Second, State{Speed: 40, Color: ForwardColor}},
		{"brake", Of(Brake), 200 * time.Millisecond, State{Speed: 16, Braking: true, Color: ForwardColor}},
		{"stopped", Of(Brake), 200 * time.Millisecond, State{Speed: 0, Color: ForwardColor}},
	} {
		got := m.Step(test.events, test.step)
		if diff := cmp.Diff(got, test.want, approx); diff != "" {
			t.Fatalf("%s: unexpected state: got(-)/want(+):\n%s", test.name, diff)
		}
	}
}

func TestIntentPriority(t *testing.T) {
	for _, test := range []struct {
		events Events
		want   State
	}{
		{Of(Increase, Decrease, Brake, Stop), State{Speed: 4, Color: ForwardColor}},
		{Of(Decrease, Brake, Stop), State{Speed: -4, Color: ReverseColor}},
		// Brake applies its first ramp step in the same scan.
		{Of(Brake, Stop), State{Speed: 0, Color: NeutralColor}},
		{Of(Stop), State{Speed: 0, Color: NeutralColor}},
		{Of(), State{Speed: 0, Color: NeutralColor}},
	} {
		t.Run(test.events.String(), func(t *testing.T) {
			m := newMachine(t, testConfig)
			got := m.Step(test.events, 100*time.Millisecond)
			if diff := cmp.Diff(got, test.want, approx); diff != "" {
				t.Errorf("unexpected state: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestLinearAcceleration(t *testing.T) {
	for _, step := range []time.Duration{0, 10 * time.Millisecond, 150 * time.Millisecond, 200 * time.Millisecond} {
		m := newMachine(t, testConfig)
		for n := 1; n <= 20; n++ {
			got := m.Step(Of(Increase), step)
			want := float64(n) * testConfig.AccelerationRate * step.Seconds()
			if math.Abs(got.Speed-want) > 1e-9 {
				t.Fatalf("step %v n=%d: speed %v, want %v", step, n, got.Speed, want)
			}
			if got.Braking {
				t.Fatalf("step %v n=%d: braking during acceleration", step, n)
			}
		}
	}
}

func TestSpeedClamped(t *testing.T) {
	m := newMachine(t, testConfig)
	for i := 0; i < 10; i++ {
		m.Step(Of(Increase), 10*time.Second)
	}
	if got := m.State().Speed; got != testConfig.MaxSpeed {
		t.Errorf("speed %v, want %v", got, testConfig.MaxSpeed)
	}
	for i := 0; i < 20; i++ {
		m.Step(Of(Decrease), 10*time.Second)
	}
	if got := m.State().Speed; got != -testConfig.MaxSpeed {
		t.Errorf("speed %v, want %v", got, -testConfig.MaxSpeed)
	}
}

func TestRandomSequencesStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := newMachine(t, testConfig)
	prev := m.State()
	for i := 0; i < 5000; i++ {
		events := Events(rng.Intn(16))
		step := time.Duration(rng.Int63n(int64(3 * time.Second)))
		got := m.Step(events, step)
		if math.Abs(got.Speed) > testConfig.MaxSpeed {
			t.Fatalf("iteration %d: speed %v out of bounds", i, got.Speed)
		}
		if events.Has(Stop) && !events.Has(Increase) && !events.Has(Decrease) && !events.Has(Brake) {
			if got.Speed != 0 || got.Braking {
				t.Fatalf("iteration %d: stop left %+v", i, got)
			}
		}
		switch {
		case got.Speed > 0 && got.Color != ForwardColor:
			t.Fatalf("iteration %d: speed %v with color %v", i, got.Speed, got.Color)
		case got.Speed < 0 && got.Color != ReverseColor:
			t.Fatalf("iteration %d: speed %v with color %v", i, got.Speed, got.Color)
		case got.Speed == 0 && got.Color != prev.Color:
			t.Fatalf("iteration %d: color changed from %v to %v at zero speed", i, prev.Color, got.Color)
		}
		if got.Braking && got.Speed == 0 {
			t.Fatalf("iteration %d: braking flag left set at zero speed", i)
		}
		prev = got
	}
}

func TestBrakingTerminates(t *testing.T) {
	for _, start := range []Event{Increase, Decrease} {
		m := newMachine(t, testConfig)
		for i := 0; i < 50; i++ {
			m.Step(Of(start), 150*time.Millisecond)
		}
		m.Step(Of(Brake), 150*time.Millisecond)
		steps := 0
		for m.State().Braking {
			m.Step(Of(), 150*time.Millisecond)
			steps++
			if steps > 1000 {
				t.Fatalf("%v: braking did not terminate", start)
			}
		}
		if got := m.State().Speed; got != 0 {
			t.Errorf("%v: braking ended at speed %v", start, got)
		}
		for i := 0; i < 10; i++ {
			if s := m.Step(Of(), 150*time.Millisecond); s.Braking || s.Speed != 0 {
				t.Fatalf("%v: state changed after braking finished: %+v", start, s)
			}
		}
	}
}

func TestStopWhileBraking(t *testing.T) {
	m := newMachine(t, testConfig)
	m.Step(Of(Increase), 10*time.Second)
	m.Step(Of(Brake), 100*time.Millisecond)
	if !m.State().Braking {
		t.Fatal("expected braking")
	}
	got := m.Step(Of(Stop), 100*time.Millisecond)
	if diff := cmp.Diff(got, State{Speed: 0, Color: ForwardColor}, approx); diff != "" {
		t.Errorf("unexpected state: got(-)/want(+):\n%s", diff)
	}
}

func TestDriveCancelsBraking(t *testing.T) {
	m := newMachine(t, testConfig)
	m.Step(Of(Increase), 10*time.Second)
	m.Step(Of(Brake), 100*time.Millisecond)
	got := m.Step(Of(Increase), 100*time.Millisecond)
	if got.Braking {
		t.Error("increase did not cancel braking")
	}
	if want := 400 - 12 + 4.0; math.Abs(got.Speed-want) > 1e-9 {
		t.Errorf("speed %v, want %v", got.Speed, want)
	}
}

func TestNegativeStepIsIgnored(t *testing.T) {
	m := newMachine(t, testConfig)
	m.Step(Of(Decrease), 25*time.Second)
	got := m.Step(Of(Increase), -time.Hour)
	if got.Speed != -testConfig.MaxSpeed {
		t.Errorf("speed %v, want %v", got.Speed, -testConfig.MaxSpeed)
	}
}

func TestReverseIndicatorIsSticky(t *testing.T) {
	m := newMachine(t, testConfig)
	m.Step(Of(Decrease), time.Second)
	got := m.Step(Of(Stop), time.Second)
	if got.Color != ReverseColor {
		t.Errorf("color %v, want %v", got.Color, ReverseColor)
	}
}

func TestProfile(t *testing.T) {
	d, err := LookupDeployment("A")
	if err != nil {
		t.Fatal(err)
	}
	m := newMachine(t, d.Config)
	for _, test := range []struct {
		events  Events
		step    time.Duration
		speed   float64
		command float64
	}{
		{Of(Increase), time.Second, 40, 85},
		{Of(Stop), time.Second, 0, 0},
		{Of(Decrease), 500 * time.Millisecond, -20, -65},
	} {
		got := m.Step(test.events, test.step)
		if math.Abs(got.Speed-test.speed) > 1e-9 || math.Abs(got.Command()-test.command) > 1e-9 {
			t.Errorf("%v: speed %v command %v, want %v and %v", test.events, got.Speed, got.Command(), test.speed, test.command)
		}
	}
}

func TestUnprofiledCommandIsSpeed(t *testing.T) {
	d, err := LookupDeployment("B")
	if err != nil {
		t.Fatal(err)
	}
	m := newMachine(t, d.Config)
	got := m.Step(Of(Increase), time.Second)
	if got.Command() != got.Speed || got.ProfiledSpeed != 0 {
		t.Errorf("command %v profiled %v, want %v and 0", got.Command(), got.ProfiledSpeed, got.Speed)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, name := range DeploymentNames() {
		d, _ := LookupDeployment(name)
		if err := d.Config.Validate(); err != nil {
			t.Errorf("deployment %s: %v", name, err)
		}
	}
	bad := testConfig
	bad.BrakingRate = 0
	if _, err := New(bad); err == nil {
		t.Error("New accepted zero braking rate")
	}
	bad = testConfig
	bad.MinSpeed = -1
	if err := bad.Validate(); err == nil {
		t.Error("Validate accepted negative min speed")
	}
	if _, err := LookupDeployment("C"); err == nil {
		t.Error("LookupDeployment accepted unknown name")
	}
}

func TestEvents(t *testing.T) {
	s := Of(Stop, Increase)
	if got, want := s.String(), "[increase stop]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	for _, e := range []Event{Increase, Decrease, Brake, Stop} {
		got, err := ParseEvent(e.String())
		if err != nil || got != e {
			t.Errorf("ParseEvent(%q) = %v, %v", e.String(), got, err)
		}
	}
	if _, err := ParseEvent("reverse"); err == nil {
		t.Error("ParseEvent accepted unknown name")
	}
}

func TestColorRGB(t *testing.T) {
	for _, test := range []struct {
		c       Color
		r, g, b uint8
	}{
		{NeutralColor, 127, 82, 0},
		{ForwardColor, 127, 127, 127},
		{ReverseColor, 127, 0, 0},
		{Color{Forward, 2}, 255, 255, 255},
	} {
		r, g, b := test.c.RGB()
		if r != test.r || g != test.g || b != test.b {
			t.Errorf("%v.RGB() = %d,%d,%d, want %d,%d,%d", test.c, r, g, b, test.r, test.g, test.b)
		}
	}
}

package drive

import (
	"fmt"
	"sort"
	"time"
)

// Config holds the fixed dynamics of one deployment. Speeds are in
// degrees/second and rates in degrees/second^2.
type Config struct {
	MaxSpeed         float64
	AccelerationRate float64
	DecelerationRate float64
	BrakingRate      float64

	// Profiled enables the dead-zone profile: nonzero speeds are pushed
	// MinSpeed further from zero before being sent to the actuator.
	Profiled bool
	MinSpeed float64
}

func (c Config) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"max speed", c.MaxSpeed},
		{"acceleration rate", c.AccelerationRate},
		{"deceleration rate", c.DecelerationRate},
		{"braking rate", c.BrakingRate},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", f.name, f.value)
		}
	}
	if c.MinSpeed < 0 {
		return fmt.Errorf("min speed must not be negative, got %v", c.MinSpeed)
	}
	return nil
}

// Deployment pairs a scan cycle with the dynamics used on one machine.
type Deployment struct {
	Name   string
	Cycle  time.Duration
	Config Config
}

const brakingMultiplier = 3

var deployments = map[string]Deployment{
	"A": {
		Name:  "A",
		Cycle: 150 * time.Millisecond,
		Config: Config{
			MaxSpeed:         1000,
			AccelerationRate: 40,
			DecelerationRate: 40,
			BrakingRate:      40 * brakingMultiplier,
			Profiled:         true,
			MinSpeed:         45,
		},
	},
	"B": {
		Name:  "B",
		Cycle: 200 * time.Millisecond,
		Config: Config{
			MaxSpeed:         1000,
			AccelerationRate: 40,
			DecelerationRate: 40,
			BrakingRate:      40 * brakingMultiplier,
		},
	},
}

func LookupDeployment(name string) (Deployment, error) {
	d, ok := deployments[name]
	if !ok {
		return Deployment{}, fmt.Errorf("unknown deployment %q (known: %v)", name, DeploymentNames())
	}
	return d, nil
}

func DeploymentNames() []string {
	var out []string
	for name := range deployments {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

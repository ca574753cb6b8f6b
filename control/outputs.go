package control

import (
	"github.com/w1xm/scan_drive/actuator"
	"github.com/w1xm/scan_drive/drive"
)

// Speed sends the commanded (profiled, where enabled) speed to a.
func Speed(a actuator.Actuator) Output {
	return Output{
		Name: "speed",
		Apply: func(s drive.State) error {
			return a.SetVelocity(s.Command())
		},
	}
}

// Light sends the indicator color to i.
func Light(i actuator.Indicator) Output {
	return Output{
		Name: "light",
		Apply: func(s drive.State) error {
			return i.SetColor(s.Color)
		},
	}
}

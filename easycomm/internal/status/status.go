package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Status is the state of a single EasyComm III axis. Fields tagged with
// report are what the simulator answers when queried with the tag.
type Status struct {
	// AZ command returns:
	Pos float64 `report:"AZ"`

	// IP0 returns temperature
	Temperature float64 `report:"IP0,"`

	// IP1 returns the endstops as a bitmask (1 = CCW, 2 = CW)
	LimitCCW, LimitCW bool

	// IP5 returns drive load
	Drive float64 `report:"IP5,"`
	// IP7 returns speed in degrees/second
	Vel float64 `report:"IP7,"`

	// CR12 returns the velocity setpoint in degrees/second
	CommandVel float64 `report:"CR12,"`

	// GS command returns:
	StatusRegister uint64 `report:"GS"`
	// GE command returns
	ErrorRegister uint64 `report:"GE"`
	ErrorFlags    struct {
		NoError     bool
		SensorError bool
		HomingError bool
		MotorError  bool
	}

	// VE command returns:
	Version string `report:"VE"`

	Moving bool

	CommandFlags string
}

// SetStatusRegister decodes the GS register.
func (s *Status) SetStatusRegister(reg uint64) {
	s.StatusRegister = reg
	s.CommandFlags = RegToFlags(reg & 0xFF)
	s.Moving = reg&0x02 != 0
}

// SetErrorRegister decodes the GE register.
func (s *Status) SetErrorRegister(reg uint64) {
	s.ErrorRegister = reg
	s.ErrorFlags.NoError = reg&1 != 0
	s.ErrorFlags.SensorError = reg&2 != 0
	s.ErrorFlags.HomingError = reg&4 != 0
	s.ErrorFlags.MotorError = reg&8 != 0
}

func RegToFlags(reg uint64) string {
	switch reg {
	case 1:
		return "NONE"
	case 2:
		return "VELOCITY"
	case 4, 6:
		return "POSITION"
	case 8:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", reg)
}

func ParseFloat(dest *float64, input string) error {
	f, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return err
	}
	*dest = f
	return nil
}

func ParseFloatArray(dest []*float64, input string) error {
	parts := strings.Split(input, ",")
	for i, field := range dest {
		if i >= len(parts) {
			return errors.New("truncated list")
		}
		if err := ParseFloat(field, parts[i]); err != nil {
			return err
		}
	}
	return nil
}

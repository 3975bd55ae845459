package motion

import (
	"fmt"
	"time"

	"github.com/cjeanneret/DipGo/internal/logic/button"
	"github.com/cjeanneret/DipGo/internal/logic/limits"
)

// Mode is the supervisor's top-level state.
type Mode int

const (
	ModeStopped Mode = iota
	ModeMovingUp
	ModeMovingDown
	ModeEmergencyStopped
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeMovingUp:
		return "moving_up"
	case ModeMovingDown:
		return "moving_down"
	case ModeEmergencyStopped:
		return "emergency_stopped"
	default:
		return "unknown"
	}
}

// MarshalText makes the mode render by name in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	for c := ModeStopped; c <= ModeEmergencyStopped; c++ {
		if c.String() == string(text) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}

// Moving reports whether the mode drives the carriage.
func (m Mode) Moving() bool {
	return m == ModeMovingUp || m == ModeMovingDown
}

// Direction returns +1 for up, -1 for down and 0 otherwise.
func (m Mode) Direction() int {
	switch m {
	case ModeMovingUp:
		return 1
	case ModeMovingDown:
		return -1
	}
	return 0
}

// Reason records why the last transition happened.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonEStop      Reason = "estop"
	ReasonReset      Reason = "reset"
	ReasonStopButton Reason = "stop_button"
	ReasonUpperLimit Reason = "upper_limit"
	ReasonLowerLimit Reason = "lower_limit"
	ReasonReleased   Reason = "start_released"
	ReasonSoftLimit  Reason = "soft_limit"
	ReasonStartUp    Reason = "start_up"
	ReasonStartDown  Reason = "start_down"
)

// State is everything the supervisor carries from one tick to the next.
// The zero value is a stopped, unhomed, disarmed axis.
type State struct {
	Mode        Mode
	PulseRate   int     // last commanded rate, signed
	SpeedMmPerS float64 // speed matching PulseRate, signed
	Clamped     bool    // the run speed exceeded the ceiling
	PositionMM  float64 // estimated carriage position, 0 at the lower limit once homed
	Homed       bool
	Reason      Reason
	// Armed is cleared whenever the axis stops. A start button that stays
	// down through a stop or an E-stop reset cannot restart the axis; the
	// start buttons must be seen released, or pressed afresh, first.
	Armed bool
}

// EStopLatched reports whether the emergency stop is latched.
func (s State) EStopLatched() bool {
	return s.Mode == ModeEmergencyStopped
}

// Inputs is one tick's worth of sampled inputs.
type Inputs struct {
	StartUp   button.Reading
	StartDown button.Reading
	Stop      button.Reading
	EStop     button.Reading
	Limits    limits.Status
	Dt        time.Duration // time since the previous tick
}

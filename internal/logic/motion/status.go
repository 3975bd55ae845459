package motion

import (
	"fmt"

	"github.com/cjeanneret/DipGo/internal/logic/limits"
)

// DisplayPort receives the operator-facing status once per tick.
type DisplayPort interface {
	Show(Status) error
}

// Status is the snapshot pushed to displays.
type Status struct {
	Mode         Mode          `json:"mode"`
	Reason       Reason        `json:"reason,omitempty"`
	SpeedMmPerS  float64       `json:"speed_mm_s"`
	PulseRate    int           `json:"pulse_rate"`
	PositionMM   float64       `json:"position_mm"`
	Homed        bool          `json:"homed"`
	Limits       limits.Status `json:"limits"`
	Clamped      bool          `json:"clamped"`
	EStopLatched bool          `json:"estop_latched"`
	Buttons      ButtonStates  `json:"buttons"`
}

// ButtonStates carries the debounced button states by name.
type ButtonStates struct {
	StartUp   string `json:"start_up"`
	StartDown string `json:"start_down"`
	Stop      string `json:"stop"`
	EStop     string `json:"estop"`
}

// NewStatus builds the display snapshot for a state and the inputs that
// produced it.
func NewStatus(s State, in Inputs) Status {
	return Status{
		Mode:         s.Mode,
		Reason:       s.Reason,
		SpeedMmPerS:  s.SpeedMmPerS,
		PulseRate:    s.PulseRate,
		PositionMM:   s.PositionMM,
		Homed:        s.Homed,
		Limits:       in.Limits,
		Clamped:      s.Clamped,
		EStopLatched: s.EStopLatched(),
		Buttons: ButtonStates{
			StartUp:   in.StartUp.State.String(),
			StartDown: in.StartDown.State.String(),
			Stop:      in.Stop.State.String(),
			EStop:     in.EStop.State.String(),
		},
	}
}

// Flags lists the informational flags raised in the status.
func (s Status) Flags() []string {
	var flags []string
	if s.EStopLatched {
		flags = append(flags, "ESTOP")
	}
	if s.Clamped {
		flags = append(flags, "CLAMP")
	}
	if !s.Homed {
		flags = append(flags, "NOHOME")
	}
	return flags
}

func (s Status) String() string {
	str := fmt.Sprintf("%s speed=%.2fmm/s pos=%.1fmm limits=%s", s.Mode, s.SpeedMmPerS, s.PositionMM, s.Limits)
	if s.Reason != ReasonNone {
		str += " (" + string(s.Reason) + ")"
	}
	for _, f := range s.Flags() {
		str += " " + f
	}
	return str
}

package motion

import (
	"time"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/logic/button"
	"github.com/cjeanneret/DipGo/internal/logic/units"
)

// Step computes the next supervisor state and the driver commands for one
// tick. It has no side effects; the caller executes the commands in order.
//
// Rules are evaluated in priority order:
//  1. an E-stop press latches EmergencyStopped from any state;
//  2. EmergencyStopped is left only by the reset gesture (Stop held while
//     the E-stop button is released);
//  3. a moving axis stops on Stop, on its limit, on release of its start
//     button, or on the soft travel limit;
//  4. a stopped, armed axis starts when a start button is held and its
//     limit is clear.
func Step(cfg *config.Config, conv *units.Converter, prev State, in Inputs) (State, []Command) {
	next := prev

	// Integrate the motion commanded during the elapsed interval.
	if prev.Mode.Moving() && in.Dt > 0 {
		next.PositionMM += conv.PulsesToMM(float64(prev.PulseRate)) * in.Dt.Seconds()
		if next.Homed {
			next.PositionMM, _ = conv.ClampTravel(next.PositionMM)
		}
	}
	if in.Limits.AtLowerBound {
		next.PositionMM = 0
		next.Homed = true
	}

	if in.EStop.Events.Has(button.EventPressed) {
		return halt(next, ModeEmergencyStopped, ReasonEStop), StopCommands()
	}

	switch prev.Mode {
	case ModeEmergencyStopped:
		if in.Stop.Events.Has(button.EventHeld) && in.EStop.State == button.StateIdle {
			next.Mode = ModeStopped
			next.Reason = ReasonReset
			next.Armed = false
		}
		return next, nil

	case ModeMovingUp, ModeMovingDown:
		if r := stopReason(conv, prev.Mode, next, in); r != ReasonNone {
			return halt(next, ModeStopped, r), StopCommands()
		}
		next = drive(cfg, conv, next, prev.Mode.Direction())
		return next, []Command{SetPulseRate(next.PulseRate)}

	default:
		if rearm(in) {
			next.Armed = true
		}
		if !next.Armed {
			return next, nil
		}
		mode, r := startRequest(in)
		if mode == ModeStopped {
			return next, nil
		}
		moving := drive(cfg, conv, next, mode.Direction())
		if mode == ModeMovingUp && pastSoftLimit(conv, moving, in.Dt) {
			return next, nil
		}
		moving.Mode = mode
		moving.Reason = r
		return moving, []Command{SetEnable(true), SetPulseRate(moving.PulseRate)}
	}
}

func halt(s State, mode Mode, r Reason) State {
	s.Mode = mode
	s.Reason = r
	s.PulseRate = 0
	s.SpeedMmPerS = 0
	s.Clamped = false
	s.Armed = false
	return s
}

func drive(cfg *config.Config, conv *units.Converter, s State, dir int) State {
	rate, clamped := conv.PulseRate(float64(dir) * cfg.RunSpeedMmPerS())
	s.PulseRate = rate
	s.SpeedMmPerS = conv.SpeedFromPulseRate(rate)
	s.Clamped = clamped
	return s
}

func stopReason(conv *units.Converter, mode Mode, s State, in Inputs) Reason {
	if in.Stop.Events.Has(button.EventPressed) {
		return ReasonStopButton
	}
	start := in.StartUp
	atLimit, limitReason := in.Limits.AtUpperBound, ReasonUpperLimit
	if mode == ModeMovingDown {
		start = in.StartDown
		atLimit, limitReason = in.Limits.AtLowerBound, ReasonLowerLimit
	}
	if atLimit {
		return limitReason
	}
	if start.Events.Has(button.EventReleased) || !start.State.Down() {
		return ReasonReleased
	}
	if mode == ModeMovingUp && pastSoftLimit(conv, s, in.Dt) {
		return ReasonSoftLimit
	}
	return ReasonNone
}

// pastSoftLimit reports whether one more interval at the state's rate would
// carry a homed axis to the end of travel.
func pastSoftLimit(conv *units.Converter, s State, dt time.Duration) bool {
	if !s.Homed {
		return false
	}
	ahead := s.PositionMM + conv.PulsesToMM(float64(s.PulseRate))*dt.Seconds()
	return ahead >= conv.MaxTravel()
}

// rearm reports whether the operator has let go of both start buttons, or
// pressed one afresh while the other is up, since the axis last stopped.
func rearm(in Inputs) bool {
	up, down := in.StartUp, in.StartDown
	switch {
	case up.State.Down() && down.State.Down():
		return false
	case up.State.Down():
		return freshPress(up)
	case down.State.Down():
		return freshPress(down)
	}
	return true
}

func freshPress(r button.Reading) bool {
	return r.Events.Has(button.EventPressed) || r.Events.Has(button.EventHeld)
}

func startRequest(in Inputs) (Mode, Reason) {
	if in.EStop.State.Down() || in.Stop.State.Down() {
		return ModeStopped, ReasonNone
	}
	up := in.StartUp.State.HeldDown()
	down := in.StartDown.State.HeldDown()
	switch {
	case up && down:
		// conflicting request
		return ModeStopped, ReasonNone
	case up && !in.Limits.AtUpperBound:
		return ModeMovingUp, ReasonStartUp
	case down && !in.Limits.AtLowerBound:
		return ModeMovingDown, ReasonStartDown
	}
	return ModeStopped, ReasonNone
}

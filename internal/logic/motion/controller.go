package motion

import (
	"fmt"

	"go.uber.org/multierr"
)

// StepperDriver is the low-level pulse generator the supervisor commands.
// The sign of the pulse rate selects the direction: positive is up.
type StepperDriver interface {
	SetEnable(on bool) error
	SetPulseRate(pulsesPerSecond int) error
}

// CommandKind identifies a stepper driver call.
type CommandKind int

const (
	CmdSetPulseRate CommandKind = iota
	CmdSetEnable
)

// Command is one stepper driver call produced by Step.
type Command struct {
	Kind      CommandKind
	PulseRate int  // CmdSetPulseRate
	Enable    bool // CmdSetEnable
}

func (c Command) String() string {
	switch c.Kind {
	case CmdSetPulseRate:
		return fmt.Sprintf("SetPulseRate(%d)", c.PulseRate)
	case CmdSetEnable:
		return fmt.Sprintf("SetEnable(%t)", c.Enable)
	default:
		return "unknown"
	}
}

// SetPulseRate builds a pulse rate command.
func SetPulseRate(pulsesPerSecond int) Command {
	return Command{Kind: CmdSetPulseRate, PulseRate: pulsesPerSecond}
}

// SetEnable builds an enable command.
func SetEnable(on bool) Command {
	return Command{Kind: CmdSetEnable, Enable: on}
}

// StopCommands halts pulse output and then releases the driver.
func StopCommands() []Command {
	return []Command{SetPulseRate(0), SetEnable(false)}
}

// Apply executes cmds on d in order. A failing command does not prevent the
// following ones from running: a stop sequence must still reach the enable
// line if the rate write fails. All errors are returned together.
func Apply(d StepperDriver, cmds []Command) error {
	var errs error
	for _, c := range cmds {
		var err error
		switch c.Kind {
		case CmdSetPulseRate:
			err = d.SetPulseRate(c.PulseRate)
		case CmdSetEnable:
			err = d.SetEnable(c.Enable)
		default:
			err = fmt.Errorf("unknown command kind %d", c.Kind)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	return errs
}

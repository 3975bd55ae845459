// Package control runs the fixed-period tick that samples the operator
// inputs, advances the motion supervisor and drives the stepper and display.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/logic/button"
	"github.com/cjeanneret/DipGo/internal/logic/limits"
	"github.com/cjeanneret/DipGo/internal/logic/motion"
	"github.com/cjeanneret/DipGo/internal/logic/units"
)

// Switch is a digital input read as asserted or not.
type Switch interface {
	Active() (bool, error)
}

// LimitReader reads the travel limit switches.
type LimitReader interface {
	Read() (limits.Status, error)
}

// Deps are the collaborators of a Loop.
type Deps struct {
	StartUp   Switch
	StartDown Switch
	Stop      Switch
	EStop     Switch
	Limits    LimitReader
	Stepper   motion.StepperDriver
	Display   motion.DisplayPort // optional
}

// Loop owns the buttons and the supervisor state. Tick is not safe for
// concurrent use; Status may be called from any goroutine.
type Loop struct {
	cfg  *config.Config
	conv *units.Converter
	deps Deps

	startUp   *button.Button
	startDown *button.Button
	stop      *button.Button
	estop     *button.Button

	state    motion.State
	lastTick time.Time

	mu     sync.RWMutex
	status motion.Status
}

// New creates a loop in the Stopped state.
func New(cfg *config.Config, conv *units.Converter, deps Deps) *Loop {
	t := button.TimingFromConfig(cfg)
	return &Loop{
		cfg:       cfg,
		conv:      conv,
		deps:      deps,
		startUp:   button.New("start_up", t),
		startDown: button.New("start_down", t),
		stop:      button.New("stop", t),
		estop:     button.New("estop", t),
	}
}

// Inputs are the GPIO-backed switches built by NewInputs.
type Inputs struct {
	StartUp, StartDown, Stop, EStop *gpio.DigitalInput
	Limits                          *limits.Sensor
}

// NewInputs configures the button and limit pins on drv.
func NewInputs(drv gpio.Driver, cfg *config.Config) (*Inputs, error) {
	b := cfg.Buttons
	var in Inputs
	for _, p := range []struct {
		name string
		pin  int
		dst  **gpio.DigitalInput
	}{
		{"start up", b.StartUpPin, &in.StartUp},
		{"start down", b.StartDownPin, &in.StartDown},
		{"stop", b.StopPin, &in.Stop},
		{"estop", b.EStopPin, &in.EStop},
	} {
		sw, err := gpio.NewDigitalInput(drv, p.pin, b.ActiveLow)
		if err != nil {
			return nil, fmt.Errorf("%s button: %w", p.name, err)
		}
		*p.dst = sw
	}
	sensor, err := limits.NewSensor(drv, cfg.Limits)
	if err != nil {
		return nil, err
	}
	in.Limits = sensor
	return &in, nil
}

// State returns the supervisor state after the last tick.
func (l *Loop) State() motion.State {
	return l.state
}

// Status returns the last status pushed to the display.
func (l *Loop) Status() motion.Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run ticks at the configured period until ctx is cancelled, then stops
// the axis. A driver error while stopping is returned.
func (l *Loop) Run(ctx context.Context) error {
	period := l.cfg.Tick()
	debug.Info("Control loop: tick %v", period)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case now := <-ticker.C:
			if err := l.Tick(now); err != nil {
				_ = l.shutdown()
				return err
			}
		}
	}
}

// Tick runs one control cycle at time now. The E-stop is sampled first so
// it is never starved by the other inputs.
func (l *Loop) Tick(now time.Time) error {
	var dt time.Duration
	if !l.lastTick.IsZero() {
		dt = now.Sub(l.lastTick)
	}
	l.lastTick = now

	in := motion.Inputs{Dt: dt}
	in.EStop = l.estop.Update(now, l.sample(l.deps.EStop, l.estop.Name(), true))
	in.Stop = l.stop.Update(now, l.sample(l.deps.Stop, l.stop.Name(), false))
	in.StartUp = l.startUp.Update(now, l.sample(l.deps.StartUp, l.startUp.Name(), false))
	in.StartDown = l.startDown.Update(now, l.sample(l.deps.StartDown, l.startDown.Name(), false))

	lim, err := l.deps.Limits.Read()
	if err != nil {
		debug.Error(fmt.Errorf("limits: %w", err))
	}
	in.Limits = lim

	prev := l.state
	next, cmds := motion.Step(l.cfg, l.conv, prev, in)
	if next.Mode != prev.Mode {
		debug.Transition(prev.Mode, next.Mode, string(next.Reason))
	}
	if next.Clamped && !prev.Clamped {
		debug.Clamp(l.cfg.RunSpeedMmPerS()*l.conv.PulsesPerMM(), next.PulseRate)
	}
	for _, c := range cmds {
		debug.Trace("Control: %s", c)
	}
	l.state = next

	if err := motion.Apply(l.deps.Stepper, cmds); err != nil {
		if !next.Mode.Moving() {
			return fmt.Errorf("stepper: %w", err)
		}
		debug.Error(fmt.Errorf("stepper: %w", err))
	}

	st := motion.NewStatus(next, in)
	l.mu.Lock()
	l.status = st
	l.mu.Unlock()

	if l.deps.Display != nil {
		if err := l.deps.Display.Show(st); err != nil {
			debug.Error(fmt.Errorf("display: %w", err))
		}
	}
	return nil
}

// sample reads a switch. On a read error the switch is taken as failSafe.
func (l *Loop) sample(sw Switch, name string, failSafe bool) bool {
	active, err := sw.Active()
	if err != nil {
		debug.Error(fmt.Errorf("%s button: %w", name, err))
		return failSafe
	}
	return active
}

func (l *Loop) shutdown() error {
	debug.Info("Control loop: stopping axis")
	if err := motion.Apply(l.deps.Stepper, motion.StopCommands()); err != nil {
		return fmt.Errorf("stop on shutdown: %w", err)
	}
	return nil
}

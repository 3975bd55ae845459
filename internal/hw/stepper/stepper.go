package stepper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
)

// inhibitPoll is how often a held-off generator rechecks the inhibit line.
const inhibitPoll = time.Millisecond

// Config holds the hardware configuration for a stepper driver.
type Config struct {
	StepPin   int
	DirPin    int
	EnablePin int  // ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	InvertDir bool // DIR LOW means up
	MaxRate   int  // pulses/s; requests above are capped. 0 = no cap.
}

// Stepper generates STEP pulses at a commanded rate. The control loop only
// sets the rate and the enable line; the pulse train itself is produced by
// Run on its own goroutine, independent of the control tick.
type Stepper struct {
	gpio gpio.Driver
	cfg  Config

	// Inhibit, when set, is checked before every pulse. While it returns
	// true no pulse is emitted, whatever the commanded rate.
	Inhibit func() bool

	mu      sync.Mutex
	rate    int
	enabled bool
	wake    chan struct{}

	pulses atomic.Int64 // net signed pulse count
}

// NewStepper configures the STEP, DIR and ENABLE pins. The driver starts
// disabled with a zero rate.
func NewStepper(g gpio.Driver, cfg Config) (*Stepper, error) {
	for _, pin := range []int{cfg.StepPin, cfg.DirPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}
	if err := g.WritePin(cfg.StepPin, gpio.Low); err != nil {
		return nil, fmt.Errorf("reset step pin: %w", err)
	}

	s := &Stepper{
		gpio: g,
		cfg:  cfg,
		wake: make(chan struct{}, 1),
	}

	// A4988/TB6600 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup enable pin: %w", err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.High); err != nil {
			return nil, fmt.Errorf("disable driver: %w", err)
		}
	}
	return s, nil
}

// SetEnable switches the driver output stage. Disabled, the motor
// freewheels with no holding torque.
func (s *Stepper) SetEnable(on bool) error {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
	s.notify()

	debug.Verbose("Stepper: enable=%t", on)
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Level(!on))
}

// SetPulseRate sets the signed pulse rate. The DIR line is updated before
// the new rate is visible to the generator, so no pulse goes out with a
// stale direction. If the DIR write fails the previous rate stays in place.
func (s *Stepper) SetPulseRate(pulsesPerSecond int) error {
	if s.cfg.MaxRate > 0 {
		pulsesPerSecond = max(-s.cfg.MaxRate, min(s.cfg.MaxRate, pulsesPerSecond))
	}

	s.mu.Lock()
	prev := s.rate
	if pulsesPerSecond != 0 && (prev == 0 || (prev > 0) != (pulsesPerSecond > 0)) {
		up := pulsesPerSecond > 0
		if err := s.gpio.WritePin(s.cfg.DirPin, gpio.Level(up != s.cfg.InvertDir)); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("set direction: %w", err)
		}
	}
	s.rate = pulsesPerSecond
	s.mu.Unlock()

	if prev != pulsesPerSecond {
		debug.Verbose("Stepper: rate %d -> %d pulses/s", prev, pulsesPerSecond)
		s.notify()
	}
	return nil
}

// Rate returns the commanded pulse rate.
func (s *Stepper) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Pulses returns the net number of pulses emitted, positive up.
func (s *Stepper) Pulses() int64 {
	return s.pulses.Load()
}

func (s *Stepper) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run emits pulses until ctx is cancelled. It returns nil on cancellation
// and the first GPIO error otherwise.
func (s *Stepper) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	inhibited := false
	for {
		s.mu.Lock()
		rate, enabled := s.rate, s.enabled
		s.mu.Unlock()

		if rate == 0 || !enabled {
			select {
			case <-ctx.Done():
				return s.idle()
			case <-s.wake:
			}
			continue
		}

		if s.Inhibit != nil && s.Inhibit() {
			if !inhibited {
				debug.Info("Stepper: inhibit line active, pulses held off")
				inhibited = true
			}
			if !s.wait(ctx, timer, inhibitPoll) {
				return s.idle()
			}
			continue
		}
		if inhibited {
			debug.Info("Stepper: inhibit line released")
			inhibited = false
		}

		// the rising edge is taken under the lock that guards DIR
		s.mu.Lock()
		rate = s.rate
		if rate == 0 || !s.enabled {
			s.mu.Unlock()
			continue
		}
		err := s.gpio.WritePin(s.cfg.StepPin, gpio.High)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("step pulse: %w", err)
		}
		half := halfPeriod(rate)
		time.Sleep(half)
		if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
			return fmt.Errorf("step pulse: %w", err)
		}
		if rate > 0 {
			s.pulses.Add(1)
		} else {
			s.pulses.Add(-1)
		}
		if !s.wait(ctx, timer, half) {
			return s.idle()
		}
	}
}

// wait sleeps for d, returning early on a rate change. It returns false if
// ctx was cancelled.
func (s *Stepper) wait(ctx context.Context, timer *time.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-s.wake:
		timer.Stop()
		return true
	case <-timer.C:
		return true
	}
}

func (s *Stepper) idle() error {
	debug.Verbose("Stepper: generator stopped")
	return nil
}

// halfPeriod returns half the pulse period for a signed rate.
func halfPeriod(pulsesPerSecond int) time.Duration {
	if pulsesPerSecond < 0 {
		pulsesPerSecond = -pulsesPerSecond
	}
	f := physic.Frequency(pulsesPerSecond) * physic.Hertz
	return f.Period() / 2
}

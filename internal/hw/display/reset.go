package display

import (
	"time"

	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
)

// ResetTiming controls the display reset sequence.
type ResetTiming struct {
	Pulse time.Duration // how long RESET is held LOW
	Boot  time.Duration // wait after release before the unit accepts frames
}

// Reset drives the display unit's RESET line:
// 1. RESET to LOW (unit held in reset)
// 2. hold for the pulse time
// 3. RESET back to HIGH
// 4. wait for the unit to boot
func Reset(g gpio.Driver, pin int, t ResetTiming) error {
	debug.Printf("Display: resetting unit (pin %d)", pin)

	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return err
	}

	debug.Verbose("Display: RESET (pin %d -> LOW)", pin)
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(t.Pulse)

	debug.Verbose("Display: releasing RESET (pin %d -> HIGH)", pin)
	if err := g.WritePin(pin, gpio.High); err != nil {
		return err
	}

	debug.Verbose("Display: waiting for boot (%v)", t.Boot)
	time.Sleep(t.Boot)
	return nil
}

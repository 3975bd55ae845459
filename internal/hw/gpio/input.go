package gpio

import "fmt"

// DigitalInput is a single digital input line with its electrical polarity folded
// in: Active reports the logical "asserted" state regardless of whether the
// switch pulls the line high or low.
type DigitalInput struct {
	drv       Driver
	pin       int
	activeLow bool
}

// NewDigitalInput configures pin as an input. Active-low lines get the internal
// pull-up so an open switch reads inactive.
func NewDigitalInput(drv Driver, pin int, activeLow bool) (*DigitalInput, error) {
	mode := Input
	if activeLow {
		mode = InputPullUp
	}
	if err := drv.SetupPin(pin, mode); err != nil {
		return nil, fmt.Errorf("setup input pin %d: %w", pin, err)
	}
	return &DigitalInput{drv: drv, pin: pin, activeLow: activeLow}, nil
}

// Pin returns the BCM pin number.
func (in *DigitalInput) Pin() int {
	return in.pin
}

// Active reads the line and reports whether it is asserted.
func (in *DigitalInput) Active() (bool, error) {
	level, err := in.drv.ReadPin(in.pin)
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", in.pin, err)
	}
	return bool(level) != in.activeLow, nil
}

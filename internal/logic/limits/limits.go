// Package limits reads the two travel limit switches that bound the rail.
package limits

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
)

// Status is the instantaneous state of both limit switches.
type Status struct {
	AtUpperBound bool `json:"at_upper_bound"`
	AtLowerBound bool `json:"at_lower_bound"`
}

func (s Status) String() string {
	switch {
	case s.AtUpperBound && s.AtLowerBound:
		return "both"
	case s.AtUpperBound:
		return "upper"
	case s.AtLowerBound:
		return "lower"
	}
	return "clear"
}

// Sensor reads the limit switches directly. Switches are mechanical stops,
// so there is no debouncing and no memory between reads.
type Sensor struct {
	up   *gpio.DigitalInput
	down *gpio.DigitalInput
}

// NewSensor configures both limit pins.
func NewSensor(drv gpio.Driver, cfg config.LimitsConfig) (*Sensor, error) {
	up, err := gpio.NewDigitalInput(drv, cfg.UpPin, cfg.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("upper limit: %w", err)
	}
	down, err := gpio.NewDigitalInput(drv, cfg.DownPin, cfg.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("lower limit: %w", err)
	}
	return &Sensor{up: up, down: down}, nil
}

// Read samples both switches. A switch that cannot be read is reported as
// reached, and the read error is returned alongside the status.
func (s *Sensor) Read() (Status, error) {
	var st Status
	var errs error

	up, err := s.up.Active()
	if err != nil {
		up = true
		errs = multierr.Append(errs, fmt.Errorf("upper limit: %w", err))
	}
	down, err := s.down.Active()
	if err != nil {
		down = true
		errs = multierr.Append(errs, fmt.Errorf("lower limit: %w", err))
	}

	st.AtUpperBound = up
	st.AtLowerBound = down
	return st, errs
}

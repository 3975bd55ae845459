// Package units converts between carriage motion in millimetres and
// stepper driver pulses.
package units

import (
	"math"
	"time"

	"github.com/cjeanneret/DipGo/internal/config"
)

// Converter translates linear speeds and distances into driver pulses.
// It is immutable once built and safe to share.
type Converter struct {
	pulsesPerMM  float64
	maxPulseRate float64 // effective ceiling, pulses/s
	maxSpeed     float64 // mm/s
	maxTravel    float64 // mm
}

// NewConverter derives the conversion factors from a validated configuration.
func NewConverter(cfg *config.Config) *Converter {
	ppm := cfg.PulsesPerMM()
	maxSpeed := cfg.MaxSpeedMmPerS()
	return &Converter{
		pulsesPerMM:  ppm,
		maxPulseRate: math.Min(cfg.Machine.MaxStepperSpeed, maxSpeed*ppm),
		maxSpeed:     maxSpeed,
		maxTravel:    cfg.Machine.MovementDistanceMm,
	}
}

// PulsesPerMM returns the fixed pulses-per-millimetre factor.
func (c *Converter) PulsesPerMM() float64 {
	return c.pulsesPerMM
}

// MaxPulseRate returns the pulse rate ceiling: the lower of the driver limit
// and the linear speed limit expressed in pulses.
func (c *Converter) MaxPulseRate() int {
	return int(math.Floor(c.maxPulseRate))
}

// MaxSpeed returns the linear speed ceiling in mm/s.
func (c *Converter) MaxSpeed() float64 {
	return c.maxSpeed
}

// MaxTravel returns the maximum carriage travel in mm.
func (c *Converter) MaxTravel() float64 {
	return c.maxTravel
}

// PulseRate converts a signed speed in mm/s to a signed pulse rate.
// Requests beyond the ceiling are clamped, never rejected; clamped reports
// whether that happened.
func (c *Converter) PulseRate(speedMmPerS float64) (pulsesPerSecond int, clamped bool) {
	if math.IsNaN(speedMmPerS) {
		return 0, true
	}
	ceiling := c.MaxPulseRate()
	raw := speedMmPerS * c.pulsesPerMM
	switch {
	case raw > c.maxPulseRate:
		return ceiling, true
	case raw < -c.maxPulseRate:
		return -ceiling, true
	}
	// rounding may step past a fractional ceiling
	rate := int(math.Round(raw))
	return max(-ceiling, min(ceiling, rate)), false
}

// SpeedFromPulseRate converts a pulse rate back to mm/s.
func (c *Converter) SpeedFromPulseRate(pulsesPerSecond int) float64 {
	return float64(pulsesPerSecond) / c.pulsesPerMM
}

// PulsesToMM converts a pulse count to millimetres.
func (c *Converter) PulsesToMM(pulses float64) float64 {
	return pulses / c.pulsesPerMM
}

// MMToPulses converts millimetres to the nearest whole pulse count.
func (c *Converter) MMToPulses(mm float64) int {
	return int(math.Round(mm * c.pulsesPerMM))
}

// SpeedFromDistance returns the speed in mm/s that covers mm in d.
func SpeedFromDistance(mm float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return mm / d.Seconds()
}

// ClampTravel clamps a carriage position to [0, MaxTravel].
func (c *Converter) ClampTravel(mm float64) (clampedMM float64, clamped bool) {
	switch {
	case mm < 0:
		return 0, true
	case mm > c.maxTravel:
		return c.maxTravel, true
	}
	return mm, false
}

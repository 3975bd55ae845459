package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// MachineConfig holds the mechanical train and the motion ceilings.
// All fields are required: a revision that omits one cannot be run safely.
type MachineConfig struct {
	StepDegrees        float64 `yaml:"step_degrees"`         // stepper full-step angle (e.g. 1.8)
	MicroSteps         float64 `yaml:"micro_steps"`          // driver microstep factor
	GearboxRatio       float64 `yaml:"gearbox_ratio"`        // e.g. 100 for 100:1
	TeethStepper       float64 `yaml:"teeth_stepper"`        // teeth on the stepper-side wheel
	TeethDrive         float64 `yaml:"teeth_drive"`          // teeth on the belt-side wheel
	TeethBelt          float64 `yaml:"teeth_belt"`           // teeth on the main belt pulley
	BeltMmPerTooth     float64 `yaml:"belt_mm_per_tooth"`    // belt pitch
	MovementDistanceMm float64 `yaml:"movement_distance_mm"` // maximum travel of the carriage
	MaxStepperSpeed    float64 `yaml:"max_stepper_speed"`    // pulses/s
	MaxMmPerMin        float64 `yaml:"max_mm_per_min"`       // linear speed ceiling
}

// StepperConfig holds the driver pins.
type StepperConfig struct {
	StepPin   int `yaml:"step_pin"`
	DirPin    int `yaml:"dir_pin"`
	EnablePin int `yaml:"enable_pin"` // ENABLE pin (BCM). 0 = not used. Active LOW.
	// InvertDir swaps which DIR level means "up".
	InvertDir bool `yaml:"invert_dir"`
}

// ButtonsConfig describes the operator buttons and their debounce feel.
type ButtonsConfig struct {
	StartUpPin   int  `yaml:"start_up_pin"`
	StartDownPin int  `yaml:"start_down_pin"`
	StopPin      int  `yaml:"stop_pin"`
	EStopPin     int  `yaml:"estop_pin"`
	ActiveLow    bool `yaml:"active_low"` // buttons pull the line to GND when pressed

	Threshold       int `yaml:"threshold"`         // consecutive consistent samples
	DelayMs         int `yaml:"delay_ms"`          // minimum spacing between accepted samples
	HeldMs          int `yaml:"held_ms"`           // press duration before Held
	RepeatInitialMs int `yaml:"repeat_initial_ms"` // Held duration before first Repeat
	RepeatMs        int `yaml:"repeat_ms"`         // spacing between Repeats
}

// LimitsConfig describes the two travel limit switches.
type LimitsConfig struct {
	UpPin     int  `yaml:"up_pin"`
	DownPin   int  `yaml:"down_pin"`
	ActiveLow bool `yaml:"active_low"`
}

// DisplayConfig selects how status is pushed to the operator.
type DisplayConfig struct {
	Type         string `yaml:"type"`           // "serial", "log" or "none"
	Port         string `yaml:"port"`           // serial device, e.g. /dev/ttyUSB0
	Baud         int    `yaml:"baud"`           // serial baud rate
	ResetPin     int    `yaml:"reset_pin"`      // display RESET line (BCM). 0 = not used.
	ResetPulseMs int    `yaml:"reset_pulse_ms"` // how long RESET is held low
	BootMs       int    `yaml:"boot_ms"`        // wait after reset before sending frames
	UpdateMs     int    `yaml:"update_ms"`      // tick period for buttons, decisions and display
}

// MotionConfig holds the run parameters.
type MotionConfig struct {
	RunSpeedMmPerMin float64 `yaml:"run_speed_mm_per_min"` // commanded speed while a start button is held
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Machine  MachineConfig  `yaml:"machine"`
	Stepper  StepperConfig  `yaml:"stepper"`
	Buttons  ButtonsConfig  `yaml:"buttons"`
	Limits   LimitsConfig   `yaml:"limits"`
	Display  DisplayConfig  `yaml:"display"`
	Motion   MotionConfig   `yaml:"motion"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath ensures the path points to a .yaml file directly inside
// a configs/ directory and does not traverse out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	b := &c.Buttons
	if b.Threshold <= 0 {
		b.Threshold = 5
	}
	if b.DelayMs <= 0 {
		b.DelayMs = 5
	}
	if b.HeldMs <= 0 {
		b.HeldMs = 800
	}
	if b.RepeatInitialMs <= 0 {
		b.RepeatInitialMs = 1000
	}
	if b.RepeatMs <= 0 {
		b.RepeatMs = 300
	}

	if c.Display.Type == "" {
		c.Display.Type = "log"
	}
	if c.Display.Baud <= 0 {
		c.Display.Baud = 9600
	}
	if c.Display.ResetPulseMs <= 0 {
		c.Display.ResetPulseMs = 100
	}
	if c.Display.BootMs <= 0 {
		c.Display.BootMs = 3000
	}
	if c.Display.UpdateMs <= 0 {
		c.Display.UpdateMs = 100
	}

	if c.Motion.RunSpeedMmPerMin <= 0 {
		c.Motion.RunSpeedMmPerMin = c.Machine.MaxMmPerMin
	}
}

// Validate checks every invariant and reports all violations at once.
func (c *Config) Validate() error {
	var err error

	m := c.Machine
	positive := []struct {
		name string
		v    float64
	}{
		{"machine.step_degrees", m.StepDegrees},
		{"machine.micro_steps", m.MicroSteps},
		{"machine.gearbox_ratio", m.GearboxRatio},
		{"machine.teeth_stepper", m.TeethStepper},
		{"machine.teeth_drive", m.TeethDrive},
		{"machine.teeth_belt", m.TeethBelt},
		{"machine.belt_mm_per_tooth", m.BeltMmPerTooth},
		{"machine.movement_distance_mm", m.MovementDistanceMm},
		{"machine.max_stepper_speed", m.MaxStepperSpeed},
		{"machine.max_mm_per_min", m.MaxMmPerMin},
	}
	for _, p := range positive {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be > 0, got %g", p.name, p.v))
		}
	}
	if err == nil {
		if ppm := c.PulsesPerMM(); math.IsInf(ppm, 0) || ppm <= 0 {
			err = multierr.Append(err, fmt.Errorf("derived pulses/mm must be > 0, got %g", ppm))
		}
	}

	if c.Stepper.StepPin <= 0 || c.Stepper.DirPin <= 0 {
		err = multierr.Append(err, errors.New("stepper.step_pin and stepper.dir_pin are required"))
	}

	// every GPIO line in use must be distinct; 0 marks an unused optional line
	pins := []struct {
		name     string
		pin      int
		optional bool
	}{
		{"buttons.start_up_pin", c.Buttons.StartUpPin, false},
		{"buttons.start_down_pin", c.Buttons.StartDownPin, false},
		{"buttons.stop_pin", c.Buttons.StopPin, false},
		{"buttons.estop_pin", c.Buttons.EStopPin, false},
		{"limits.up_pin", c.Limits.UpPin, false},
		{"limits.down_pin", c.Limits.DownPin, false},
		{"stepper.step_pin", c.Stepper.StepPin, true}, // required, checked above
		{"stepper.dir_pin", c.Stepper.DirPin, true},
		{"stepper.enable_pin", c.Stepper.EnablePin, true},
		{"display.reset_pin", c.Display.ResetPin, true},
	}
	seen := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin <= 0 {
			if !p.optional {
				err = multierr.Append(err, fmt.Errorf("%s is required", p.name))
			}
			continue
		}
		if other, dup := seen[p.pin]; dup {
			err = multierr.Append(err, fmt.Errorf("%s and %s share pin %d", other, p.name, p.pin))
			continue
		}
		seen[p.pin] = p.name
	}

	switch c.Display.Type {
	case "log", "none":
	case "serial":
		if c.Display.Port == "" {
			err = multierr.Append(err, errors.New("display.port is required for serial display"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported display type: %s", c.Display.Type))
	}

	rs := c.Motion.RunSpeedMmPerMin
	if math.IsNaN(rs) || math.IsInf(rs, 0) || rs < 0 {
		err = multierr.Append(err, fmt.Errorf("motion.run_speed_mm_per_min must be a positive number, got %g", rs))
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		err = multierr.Append(err, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel))
	}

	return err
}

// PulsesPerMM returns the number of driver pulses per millimetre of carriage travel.
func (c *Config) PulsesPerMM() float64 {
	m := c.Machine
	stepsPerRev := 360.0 / m.StepDegrees
	return stepsPerRev * m.MicroSteps * m.GearboxRatio * (m.TeethStepper / m.TeethDrive) /
		(m.TeethBelt * m.BeltMmPerTooth)
}

// MaxSpeedMmPerS returns the linear speed ceiling in mm/s.
func (c *Config) MaxSpeedMmPerS() float64 {
	return c.Machine.MaxMmPerMin / 60.0
}

// RunSpeedMmPerS returns the commanded run speed in mm/s.
func (c *Config) RunSpeedMmPerS() float64 {
	return c.Motion.RunSpeedMmPerMin / 60.0
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Display.UpdateMs) * time.Millisecond
}

// DebounceDelay returns the minimum spacing between accepted button samples.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Buttons.DelayMs) * time.Millisecond
}

// Held returns the press duration before a button reports Held.
func (c *Config) Held() time.Duration {
	return time.Duration(c.Buttons.HeldMs) * time.Millisecond
}

// RepeatInitial returns the Held duration before the first Repeat.
func (c *Config) RepeatInitial() time.Duration {
	return time.Duration(c.Buttons.RepeatInitialMs) * time.Millisecond
}

// Repeat returns the spacing between Repeat events.
func (c *Config) Repeat() time.Duration {
	return time.Duration(c.Buttons.RepeatMs) * time.Millisecond
}

// ResetPulse returns how long the display RESET line is held low.
func (c *Config) ResetPulse() time.Duration {
	return time.Duration(c.Display.ResetPulseMs) * time.Millisecond
}

// DisplayBoot returns how long the display unit needs after a reset.
func (c *Config) DisplayBoot() time.Duration {
	return time.Duration(c.Display.BootMs) * time.Millisecond
}

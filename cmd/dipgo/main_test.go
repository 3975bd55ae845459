package main

import (
	"math"
	"testing"

	"github.com/jessevdk/go-flags"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/hw/stepper"
	"github.com/cjeanneret/DipGo/internal/logic/units"
)

// ---------- validateSpeedOverride ----------

func TestValidateSpeedOverride_Zero(t *testing.T) {
	if err := validateSpeedOverride(0, 450); err != nil {
		t.Errorf("zero should be valid (use config default), got: %v", err)
	}
}

func TestValidateSpeedOverride_Valid(t *testing.T) {
	for _, v := range []float64{0.001, 1, 300, 450} {
		if err := validateSpeedOverride(v, 450); err != nil {
			t.Errorf("validateSpeedOverride(%g) = %v, want nil", v, err)
		}
	}
}

func TestValidateSpeedOverride_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		speed float64
	}{
		{"negative", -1},
		{"above_ceiling", 450.5},
		{"nan", math.NaN()},
		{"pos_inf", math.Inf(1)},
		{"neg_inf", math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateSpeedOverride(tc.speed, 450); err == nil {
				t.Errorf("expected error for %g", tc.speed)
			}
		})
	}
}

// ---------- validatePort ----------

func TestValidatePort(t *testing.T) {
	cases := []struct {
		port    int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{8080, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}
	for _, tc := range cases {
		if err := validatePort(tc.port); (err != nil) != tc.wantErr {
			t.Errorf("validatePort(%d) = %v, wantErr %v", tc.port, err, tc.wantErr)
		}
	}
}

// ---------- applyOverrides ----------

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Motion.RunSpeedMmPerMin = 450

	applyOverrides(cfg, &RunCommand{})
	if cfg.Motion.RunSpeedMmPerMin != 450 || cfg.Defaults.MockGPIO {
		t.Errorf("empty overrides changed config: %+v", cfg)
	}

	applyOverrides(cfg, &RunCommand{SpeedMmMin: 300, MockGPIO: true})
	if cfg.Motion.RunSpeedMmPerMin != 300 {
		t.Errorf("run speed = %g, want 300", cfg.Motion.RunSpeedMmPerMin)
	}
	if !cfg.Defaults.MockGPIO {
		t.Error("mock GPIO should be forced on")
	}
}

// ---------- flags ----------

func TestRunFlags_WebOptionalValue(t *testing.T) {
	cases := []struct {
		args []string
		want int
	}{
		{[]string{"run"}, 0},
		{[]string{"run", "--web"}, 8080},
		{[]string{"run", "--web=8980"}, 8980},
	}
	for _, tc := range cases {
		var o Options
		p := flags.NewParser(&o, flags.None)
		p.CommandHandler = func(flags.Commander, []string) error { return nil }
		if _, err := p.ParseArgs(tc.args); err != nil {
			t.Fatalf("ParseArgs(%v): %v", tc.args, err)
		}
		if o.Run.Web != tc.want {
			t.Errorf("ParseArgs(%v): web = %d, want %d", tc.args, o.Run.Web, tc.want)
		}
		if o.Run.Config != "configs/default.yaml" {
			t.Errorf("config default = %q", o.Run.Config)
		}
	}
}

// ---------- helpers ----------

func TestEstopInhibit(t *testing.T) {
	mock := gpio.NewMockDriver()
	in, err := gpio.NewDigitalInput(mock, 7, true)
	if err != nil {
		t.Fatalf("NewDigitalInput: %v", err)
	}
	inhibit := estopInhibit(in)

	if inhibit() {
		t.Error("idle E-stop should not inhibit")
	}
	mock.SetInput(7, gpio.Low)
	if !inhibit() {
		t.Error("pressed E-stop should inhibit")
	}
}

func TestSimPins(t *testing.T) {
	cfg := &config.Config{}
	cfg.Buttons = config.ButtonsConfig{StartUpPin: 5, StartDownPin: 11, StopPin: 6, EStopPin: 7}
	cfg.Limits = config.LimitsConfig{UpPin: 2, DownPin: 3}
	p := simPins(cfg)
	if p.StartUp != 5 || p.StartDown != 11 || p.Stop != 6 || p.EStop != 7 || p.UpperLimit != 2 || p.LowerLimit != 3 {
		t.Errorf("simPins = %+v", p)
	}
}

func TestStepperReport(t *testing.T) {
	cfg := &config.Config{Machine: config.MachineConfig{
		StepDegrees: 1.8, MicroSteps: 4, GearboxRatio: 100,
		TeethStepper: 40, TeethDrive: 40, TeethBelt: 20, BeltMmPerTooth: 8,
		MovementDistanceMm: 3000, MaxStepperSpeed: 5000, MaxMmPerMin: 450,
	}}
	motor, err := stepper.NewStepper(gpio.NewMockDriver(), stepper.Config{StepPin: 8, DirPin: 9})
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}
	if err := motor.SetPulseRate(-2500); err != nil {
		t.Fatalf("SetPulseRate: %v", err)
	}
	got := stepperReport(motor, units.NewConverter(cfg))
	want := "Stepper: final rate -2500 pulses/s, 0 pulses emitted (+0.00 mm net)"
	if got != want {
		t.Errorf("stepperReport = %q, want %q", got, want)
	}
}

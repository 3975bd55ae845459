package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/hw/display"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/hw/stepper"
	"github.com/cjeanneret/DipGo/internal/logic/control"
	"github.com/cjeanneret/DipGo/internal/logic/units"
	"github.com/cjeanneret/DipGo/internal/tui"
	"github.com/cjeanneret/DipGo/internal/web"
)

type RunCommand struct {
	Config     string  `long:"config" short:"c" default:"configs/default.yaml" description:"Path to config file"`
	Web        int     `long:"web" optional:"yes" optional-value:"8080" description:"Start the status web server; --web for port 8080, --web=8980 for a custom port"`
	TUI        bool    `long:"tui" description:"Show the terminal status mirror (keyboard drives the inputs with mock GPIO)"`
	MockGPIO   bool    `long:"mock-gpio" description:"Use the in-memory GPIO driver instead of the Raspberry Pi"`
	SpeedMmMin float64 `long:"speed-mm-min" description:"Override the run speed in mm/min (0 keeps the config value)"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validatePort(c.Web); err != nil {
		log.Fatalf("invalid --web: %v", err)
	}
	if err := validateSpeedOverride(c.SpeedMmMin, cfg.Machine.MaxMmPerMin); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, c)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", c.Config)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}

	debug.Step(2, "Configuring inputs")
	conv := units.NewConverter(cfg)
	inputs, err := control.NewInputs(drv, cfg)
	if err != nil {
		log.Fatalf("init inputs failed: %v", err)
	}
	debug.PrintStruct("Buttons config", cfg.Buttons)
	debug.PrintStruct("Limits config", cfg.Limits)

	debug.Step(3, "Initializing stepper")
	motor, err := stepper.NewStepper(drv, stepper.Config{
		StepPin:   cfg.Stepper.StepPin,
		DirPin:    cfg.Stepper.DirPin,
		EnablePin: cfg.Stepper.EnablePin,
		InvertDir: cfg.Stepper.InvertDir,
		MaxRate:   conv.MaxPulseRate(),
	})
	if err != nil {
		log.Fatalf("init stepper failed: %v", err)
	}
	motor.Inhibit = estopInhibit(inputs.EStop)
	debug.PrintStruct("Stepper config", cfg.Stepper)
	debug.Value("Pulses per mm", conv.PulsesPerMM())
	debug.Value("Max pulse rate", conv.MaxPulseRate())

	debug.Step(4, "Initializing display")
	hwDisplay, err := display.New(cfg.Display, drv, display.ResetTiming{
		Pulse: cfg.ResetPulse(),
		Boot:  cfg.DisplayBoot(),
	})
	if err != nil {
		log.Fatalf("init display failed: %v", err)
	}
	debug.Value("Display type", cfg.Display.Type)

	displays := display.Multi{hwDisplay}
	logOutputs := []io.Writer{}

	var broadcaster *web.StatusBroadcaster
	if c.Web > 0 {
		broadcaster = web.NewStatusBroadcaster()
		displays = append(displays, broadcaster)
		logOutputs = append(logOutputs, web.BroadcastWriter(broadcaster))
	}

	var screen *tui.Display
	if c.TUI {
		screen = tui.NewDisplay()
		displays = append(displays, screen)
		logOutputs = append(logOutputs, screen)
	} else {
		logOutputs = append(logOutputs, os.Stdout)
	}
	debug.SetOutput(io.MultiWriter(logOutputs...))

	loop := control.New(cfg, conv, control.Deps{
		StartUp:   inputs.StartUp,
		StartDown: inputs.StartDown,
		Stop:      inputs.Stop,
		EStop:     inputs.EStop,
		Limits:    inputs.Limits,
		Stepper:   motor,
		Display:   displays,
	})

	debug.Section("Running")
	runErr := run(ctx, cancel, motor, loop, c, cfg, conv, broadcaster, screen, drv)

	debug.Section("Shutdown")
	closeErr := multierr.Combine(displays.Close(), drv.Close())
	return multierr.Append(runErr, closeErr)
}

// run starts the pulse generator, the control loop and the optional
// front-ends, and waits for all of them. The pulse generator outlives the
// loop so the final stop commands still reach a running generator.
func run(
	ctx context.Context,
	cancel context.CancelFunc,
	motor *stepper.Stepper,
	loop *control.Loop,
	c *RunCommand,
	cfg *config.Config,
	conv *units.Converter,
	broadcaster *web.StatusBroadcaster,
	screen *tui.Display,
	drv gpio.Driver,
) error {
	stepCtx, stopStepper := context.WithCancel(context.Background())
	defer stopStepper()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	record := func(name string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		mu.Unlock()
		cancel()
	}

	stepperDone := make(chan struct{})
	go func() {
		defer close(stepperDone)
		record("stepper", motor.Run(stepCtx))
	}()

	if broadcaster != nil {
		srv := web.NewServer(fmt.Sprintf(":%d", c.Web), broadcaster, machineInfo(cfg, conv))
		wg.Go(func() { record("web server", srv.Run(ctx)) })
	}

	if screen != nil {
		var sim tui.Simulator
		if mock, ok := drv.(*gpio.MockDriver); ok {
			sim = mock
		}
		model := tui.NewModel(screen, sim, simPins(cfg), conv.MaxSpeed())
		wg.Go(func() {
			record("tui", tui.Run(ctx, model))
			// quitting the UI stops the rig
			cancel()
		})
	}

	record("control loop", loop.Run(ctx))
	cancel()
	wg.Wait()

	stopStepper()
	<-stepperDone
	debug.Info("%s", stepperReport(motor, conv))
	return errs
}

// stepperReport summarises what the generator actually emitted.
func stepperReport(motor *stepper.Stepper, conv *units.Converter) string {
	pulses := motor.Pulses()
	return fmt.Sprintf("Stepper: final rate %d pulses/s, %d pulses emitted (%+.2f mm net)",
		motor.Rate(), pulses, conv.PulsesToMM(float64(pulses)))
}

// estopInhibit reads the raw E-stop line before every pulse. A read error
// counts as pressed.
func estopInhibit(sw *gpio.DigitalInput) func() bool {
	return func() bool {
		pressed, err := sw.Active()
		return err != nil || pressed
	}
}

func machineInfo(cfg *config.Config, conv *units.Converter) web.MachineInfo {
	return web.MachineInfo{
		PulsesPerMM:    conv.PulsesPerMM(),
		MaxPulseRate:   conv.MaxPulseRate(),
		MaxSpeedMmPerS: conv.MaxSpeed(),
		MaxTravelMM:    conv.MaxTravel(),
		RunSpeedMmPerS: cfg.RunSpeedMmPerS(),
		TickMs:         cfg.Display.UpdateMs,
	}
}

func simPins(cfg *config.Config) tui.Pins {
	return tui.Pins{
		StartUp:    cfg.Buttons.StartUpPin,
		StartDown:  cfg.Buttons.StartDownPin,
		Stop:       cfg.Buttons.StopPin,
		EStop:      cfg.Buttons.EStopPin,
		UpperLimit: cfg.Limits.UpPin,
		LowerLimit: cfg.Limits.DownPin,
	}
}

// validateSpeedOverride checks a run speed override in mm/min.
// Zero means "use config default".
func validateSpeedOverride(speed, maxMmPerMin float64) error {
	if speed == 0 {
		return nil
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 || speed > maxMmPerMin {
		return fmt.Errorf("speed-mm-min must be in (0, %g], got %g", maxMmPerMin, speed)
	}
	return nil
}

// validatePort accepts 0 (web server disabled) or a TCP port.
func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", port)
	}
	return nil
}

// applyOverrides mutates cfg with the CLI overrides that were given.
func applyOverrides(cfg *config.Config, c *RunCommand) {
	if c.SpeedMmMin > 0 {
		cfg.Motion.RunSpeedMmPerMin = c.SpeedMmMin
	}
	if c.MockGPIO {
		cfg.Defaults.MockGPIO = true
	}
}

package main

import (
	"fmt"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/hw/display"
	"github.com/cjeanneret/DipGo/internal/logic/units"
)

type InfoCommand struct {
	Config string `long:"config" short:"c" default:"configs/default.yaml" description:"Path to config file"`
}

func (c *InfoCommand) Execute(args []string) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	conv := units.NewConverter(cfg)

	fmt.Printf("Pulses per mm:      %.3f\n", conv.PulsesPerMM())
	fmt.Printf("Max pulse rate:     %d pulses/s\n", conv.MaxPulseRate())
	fmt.Printf("Max speed:          %.2f mm/s (%.0f mm/min)\n", conv.MaxSpeed(), conv.MaxSpeed()*60)
	fmt.Printf("Max travel:         %.0f mm\n", conv.MaxTravel())
	rate, clamped := conv.PulseRate(cfg.RunSpeedMmPerS())
	fmt.Printf("Run speed:          %.2f mm/s -> %d pulses/s", cfg.RunSpeedMmPerS(), rate)
	if clamped {
		fmt.Print(" (clamped)")
	}
	fmt.Println()

	ports, err := display.Ports()
	if err != nil {
		fmt.Printf("Serial ports:       unavailable (%v)\n", err)
		return nil
	}
	if len(ports) == 0 {
		fmt.Println("Serial ports:       none found")
		return nil
	}
	fmt.Println("Serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

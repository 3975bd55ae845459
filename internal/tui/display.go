// Package tui is a terminal status mirror for the rig. With mock GPIO it
// also drives the simulated buttons and limit switches from the keyboard.
package tui

import (
	"strings"

	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

// Display is a display port that hands statuses to the terminal program.
// Only the latest status is kept; the UI never holds up the control loop.
type Display struct {
	statuses chan motion.Status
	logs     chan string
}

// NewDisplay creates a display with no program attached yet.
func NewDisplay() *Display {
	return &Display{
		statuses: make(chan motion.Status, 1),
		logs:     make(chan string, 64),
	}
}

// Show replaces any status the UI has not consumed yet.
func (d *Display) Show(st motion.Status) error {
	for {
		select {
		case d.statuses <- st:
			return nil
		default:
		}
		select {
		case <-d.statuses:
		default:
		}
	}
}

// Write implements io.Writer so debug output lands in the log box instead of
// tearing the alternate screen.
func (d *Display) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line == "" {
			continue
		}
		select {
		case d.logs <- line:
		default:
			// log box is behind, drop
		}
	}
	return len(p), nil
}

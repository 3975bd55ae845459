// Package display pushes the supervisor status to the operator: the serial
// display unit on the rig, the log, or several of them at once.
package display

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/cjeanneret/DipGo/internal/config"
	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

// New builds the display port selected in cfg. For a serial display the
// unit is reset through g before the port is opened.
func New(cfg config.DisplayConfig, g gpio.Driver, reset ResetTiming) (motion.DisplayPort, error) {
	switch cfg.Type {
	case "serial":
		if cfg.ResetPin > 0 {
			if err := Reset(g, cfg.ResetPin, reset); err != nil {
				return nil, fmt.Errorf("reset display: %w", err)
			}
		}
		return OpenSerial(cfg.Port, cfg.Baud)
	case "log":
		return &Log{}, nil
	case "none":
		return Multi{}, nil
	default:
		return nil, fmt.Errorf("unknown display type %q", cfg.Type)
	}
}

// Log prints status changes at the live debug level.
type Log struct {
	mu   sync.Mutex
	last string
}

func (l *Log) Show(st motion.Status) error {
	s := st.String()
	l.mu.Lock()
	changed := s != l.last
	l.last = s
	l.mu.Unlock()
	if changed {
		debug.Live("Display: %s", s)
	}
	return nil
}

// Multi fans a status out to several ports. Every port is tried; their
// errors are returned together.
type Multi []motion.DisplayPort

func (m Multi) Show(st motion.Status) error {
	var errs error
	for _, p := range m {
		errs = multierr.Append(errs, p.Show(st))
	}
	return errs
}

// Close closes every member that holds a resource.
func (m Multi) Close() error {
	var errs error
	for _, p := range m {
		if c, ok := p.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}

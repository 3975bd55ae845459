package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/cjeanneret/DipGo/internal/debug"
	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

// Port is the write side of a serial line.
type Port interface {
	io.Writer
	io.Closer
}

// Serial sends one text frame per status change to the display unit.
//
// Frame layout, semicolon separated and CR/LF terminated:
//
//	mode;speed_mm_s;position_mm;limits;flags
//
// e.g. "moving_up;5.00;123.4;clear;CLAMP\r\n".
type Serial struct {
	mu   sync.Mutex
	port Port
	last string
}

// OpenSerial opens the named device at baud, 8N1.
func OpenSerial(name string, baud int) (*Serial, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open display port %s: %w", name, err)
	}
	debug.Info("Display: serial %s at %d baud", name, baud)
	return NewSerial(p), nil
}

// NewSerial wraps an already open port.
func NewSerial(p Port) *Serial {
	return &Serial{port: p}
}

// Frame renders the display frame for a status.
func Frame(st motion.Status) string {
	return fmt.Sprintf("%s;%.2f;%.1f;%s;%s\r\n",
		st.Mode, st.SpeedMmPerS, st.PositionMM, st.Limits, strings.Join(st.Flags(), ","))
}

// Show writes the frame for st unless it matches the last one sent.
func (s *Serial) Show(st motion.Status) error {
	frame := Frame(st)

	s.mu.Lock()
	defer s.mu.Unlock()
	if frame == s.last {
		return nil
	}
	if _, err := io.WriteString(s.port, frame); err != nil {
		// resend on the next tick
		s.last = ""
		return fmt.Errorf("write display frame: %w", err)
	}
	debug.Trace("Display: sent %q", frame)
	s.last = frame
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Ports lists the serial devices present on the system, for diagnostics.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

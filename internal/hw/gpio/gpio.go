package gpio

import (
	"sync"

	"github.com/cjeanneret/DipGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullUp // input with the internal pull-up enabled (switches wired to GND)
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver is a development implementation that logs actions and keeps
// pin levels in memory. Input levels can be forced with SetInput to
// simulate buttons and limit switches.
// It is safe for concurrent use: the pulse generator writes STEP/DIR while
// the control loop reads inputs.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	modes  map[int]PinMode
}

// NewMockDriver returns an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) init() {
	if m.levels == nil {
		m.levels = make(map[int]Level)
		m.modes = make(map[int]PinMode)
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.modes[pin] = mode
	if mode == InputPullUp {
		if _, set := m.levels[pin]; !set {
			m.levels[pin] = High
		}
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	level := m.levels[pin]
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

// SetInput forces the level seen by ReadPin, as if the line were driven externally.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.levels[pin] = level
}

// Toggle inverts the level of pin and returns the new level.
func (m *MockDriver) Toggle(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.levels[pin] = !m.levels[pin]
	return m.levels[pin]
}

// Level returns the last level written or forced on pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return m.levels[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

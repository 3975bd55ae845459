package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

var testPins = Pins{StartUp: 5, StartDown: 11, Stop: 6, EStop: 7, UpperLimit: 2, LowerLimit: 3}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDisplay_ShowKeepsLatest(t *testing.T) {
	d := NewDisplay()
	for _, m := range []motion.Mode{motion.ModeStopped, motion.ModeMovingUp, motion.ModeEmergencyStopped} {
		if err := d.Show(motion.Status{Mode: m}); err != nil {
			t.Fatalf("Show: %v", err)
		}
	}
	got := <-d.statuses
	if got.Mode != motion.ModeEmergencyStopped {
		t.Errorf("pending status = %s, want the latest", got.Mode)
	}
	select {
	case st := <-d.statuses:
		t.Errorf("unexpected extra status %s", st.Mode)
	default:
	}
}

func TestDisplay_WriteSplitsLines(t *testing.T) {
	d := NewDisplay()
	n, err := d.Write([]byte("first\nsecond\n\n"))
	if err != nil || n != len("first\nsecond\n\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if got := <-d.logs; got != "first" {
		t.Errorf("first line = %q", got)
	}
	if got := <-d.logs; got != "second" {
		t.Errorf("second line = %q", got)
	}
}

func TestDisplay_WriteNeverBlocks(t *testing.T) {
	d := NewDisplay()
	for i := 0; i < 200; i++ {
		d.Write([]byte("line\n"))
	}
	if len(d.logs) != cap(d.logs) {
		t.Errorf("log buffer = %d, want full (%d)", len(d.logs), cap(d.logs))
	}
}

func TestModel_SimulationKeysToggleMockPins(t *testing.T) {
	mock := gpio.NewMockDriver()
	for _, pin := range []int{5, 11, 6, 7, 2, 3} {
		mock.SetupPin(pin, gpio.InputPullUp)
	}
	m := NewModel(NewDisplay(), mock, testPins, 7.5)

	cases := []struct {
		key string
		pin int
	}{
		{"u", 5}, {"d", 11}, {"s", 6}, {"e", 7}, {"]", 2}, {"[", 3},
	}
	for _, tc := range cases {
		updated, _ := m.Update(key(tc.key))
		m = updated.(Model)
		if got := mock.Level(tc.pin); got != gpio.Low {
			t.Errorf("key %q: pin %d = %s, want LOW", tc.key, tc.pin, got)
		}
	}

	// second press releases
	updated, _ := m.Update(key("u"))
	m = updated.(Model)
	if got := mock.Level(5); got != gpio.High {
		t.Errorf("pin 5 = %s after second toggle, want HIGH", got)
	}
	if len(m.logs) != maxLogs {
		t.Errorf("log box holds %d lines, want %d", len(m.logs), maxLogs)
	}
}

func TestModel_KeysIgnoredOnRealHardware(t *testing.T) {
	m := NewModel(NewDisplay(), nil, testPins, 7.5)
	updated, cmd := m.Update(key("e"))
	if cmd != nil {
		t.Error("unexpected command")
	}
	if len(updated.(Model).logs) != 0 {
		t.Error("simulation key should do nothing without a simulator")
	}
	if !strings.Contains(m.View(), "Press 'q' to quit") {
		t.Error("help should not advertise simulation keys")
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := NewModel(NewDisplay(), nil, testPins, 7.5)
	updated, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit the program")
	}
	if !updated.(Model).quitting {
		t.Error("model should be quitting")
	}
}

func TestModel_StatusRendered(t *testing.T) {
	d := NewDisplay()
	m := NewModel(d, nil, testPins, 7.5)
	if !strings.Contains(m.View(), "waiting for first tick") {
		t.Error("expected waiting message before the first status")
	}

	st := motion.Status{
		Mode:         motion.ModeEmergencyStopped,
		Reason:       motion.ReasonEStop,
		EStopLatched: true,
		Homed:        true,
		PositionMM:   12.5,
	}
	updated, cmd := m.Update(statusMsg(st))
	if cmd == nil {
		t.Error("status update should wait for the next status")
	}
	view := updated.(Model).View()
	for _, want := range []string{"emergency_stopped", "estop", "ESTOP", "clear"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_WindowResize(t *testing.T) {
	m := NewModel(NewDisplay(), nil, testPins, 7.5)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	got := updated.(Model)
	w, h := got.chartSize()
	if w != 116 || h != 22 {
		t.Errorf("chartSize() = %dx%d, want 116x22", w, h)
	}
}

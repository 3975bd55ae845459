package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"periph.io/x/conn/v3/physic"

	"github.com/cjeanneret/DipGo/internal/hw/gpio"
	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

const (
	headerHeight = 9 // title, status table, blank line
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	speedSeries  = "speed"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	flagStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("88")).Padding(0, 1)
)

var modeStyles = map[motion.Mode]lipgloss.Style{
	motion.ModeStopped:          lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250")),
	motion.ModeMovingUp:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
	motion.ModeMovingDown:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
	motion.ModeEmergencyStopped: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
}

// Simulator flips simulated input lines. *gpio.MockDriver implements it.
type Simulator interface {
	Toggle(pin int) gpio.Level
}

// Pins maps the simulation keys to input pins.
type Pins struct {
	StartUp, StartDown, Stop, EStop int
	UpperLimit, LowerLimit          int
}

type keyBinding struct {
	name string
	pin  func(Pins) int
}

var keyBindings = map[string]keyBinding{
	"u": {"start up", func(p Pins) int { return p.StartUp }},
	"d": {"start down", func(p Pins) int { return p.StartDown }},
	"s": {"stop", func(p Pins) int { return p.Stop }},
	"e": {"estop", func(p Pins) int { return p.EStop }},
	"]": {"upper limit", func(p Pins) int { return p.UpperLimit }},
	"[": {"lower limit", func(p Pins) int { return p.LowerLimit }},
}

// Model is the bubbletea model of the status mirror.
type Model struct {
	display *Display
	sim     Simulator // nil on real hardware
	pins    Pins

	chart    *streamlinechart.Model
	status   motion.Status
	hasState bool
	width    int
	height   int
	logs     []string
	quitting bool
}

// NewModel builds the UI. sim may be nil, in which case the simulation keys
// are disabled.
func NewModel(d *Display, sim Simulator, pins Pins, maxSpeedMmPerS float64) Model {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-maxSpeedMmPerS, maxSpeedMmPerS),
	)
	chart.SetDataSetStyles(speedSeries, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return Model{
		display: d,
		sim:     sim,
		pins:    pins,
		chart:   &chart,
	}
}

// Messages from the control loop
type statusMsg motion.Status
type logMsg string

func waitForStatus(d *Display) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-d.statuses)
	}
}

func waitForLog(d *Display) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-d.logs)
	}
}

func (m *Model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *Model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-footerHeight-borderSize, 6)
	return width, height
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForStatus(m.display),
		waitForLog(m.display),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		if key == "q" || key == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if b, ok := keyBindings[key]; ok && m.sim != nil {
			pin := b.pin(m.pins)
			level := m.sim.Toggle(pin)
			m.addLog(fmt.Sprintf("sim: %s (pin %d) -> %s", b.name, pin, level))
		}
		return m, nil

	case statusMsg:
		st := motion.Status(msg)
		m.status = st
		m.hasState = true
		m.chart.PushDataSet(speedSeries, st.SpeedMmPerS)
		m.chart.DrawAll()
		return m, waitForStatus(m.display)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.display)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "DipGo status mirror closed.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("DipGo"))
	if m.sim != nil {
		sb.WriteString(statusStyle.Render("  [simulated inputs]"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 40))

	logLines := statusStyle.Render(m.help())
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStatus() string {
	if !m.hasState {
		return statusStyle.Render("waiting for first tick...") + "\n"
	}
	st := m.status
	row := func(label, value string) string {
		return labelStyle.Render(label) + value + "\n"
	}

	mode := modeStyles[st.Mode].Render(st.Mode.String())
	if st.Reason != motion.ReasonNone {
		mode += statusStyle.Render(" (" + string(st.Reason) + ")")
	}
	pos := "not homed"
	if st.Homed {
		pos = physic.Distance(st.PositionMM * float64(physic.MilliMetre)).String()
	}
	var flags []string
	for _, f := range st.Flags() {
		flags = append(flags, flagStyle.Render(f))
	}

	var sb strings.Builder
	sb.WriteString(row("State", mode))
	sb.WriteString(row("Speed", fmt.Sprintf("%+.2f mm/s  %+d pulses/s", st.SpeedMmPerS, st.PulseRate)))
	sb.WriteString(row("Position", pos))
	sb.WriteString(row("Limits", st.Limits.String()))
	sb.WriteString(row("Buttons", fmt.Sprintf("up=%s down=%s stop=%s estop=%s",
		st.Buttons.StartUp, st.Buttons.StartDown, st.Buttons.Stop, st.Buttons.EStop)))
	sb.WriteString(row("Flags", strings.Join(flags, " ")))
	return sb.String()
}

func (m Model) help() string {
	if m.sim == nil {
		return "Press 'q' to quit"
	}
	return "u/d start up/down   s stop   e estop   [/] lower/upper limit   q quit"
}

// Run shows the UI until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Tabs
const (
	tabLog = iota
	tabButtons
)

var tabLabels = []string{"Log", "Buttons"}

// Button rows on the Buttons tab: the tone row, then one row per motor
const rowTone = 0

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// brick is the part of the driver the control TUI uses
type brick interface {
	Connect(ctx context.Context) error
	PlayTone(ctx context.Context, frequency int, duration time.Duration) error
	RunMotor(ctx context.Context, port nxt.Port, power int) error
	IdleMotor(ctx context.Context, port nxt.Port) error
	Snapshot() device.Snapshot
	Stats() nxt.Statistics
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	dev      brick
	connInfo string

	// Mirrored device state, refreshed from snapshots
	state    device.State
	log      []string
	readings map[nxt.Port]device.Reading
	firmware *nxt.FirmwareVersion
	stats    nxt.Statistics

	// UI state
	tab         int
	selectedRow int
	logView     viewport.Model
	lastError   string
	busy        string // Name of the call in progress from this UI
	width       int
	height      int
	quitting    bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type deviceEventMsg struct {
	event device.Event
}

type connectRequestMsg struct{}

type callDoneMsg struct {
	name string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(dev brick, connInfo string) controlModel {
	vp := viewport.New(80, 12)

	m := controlModel{
		dev:      dev,
		connInfo: connInfo,
		readings: make(map[nxt.Port]device.Reading),
		tab:      tabLog,
		logView:  vp,
		width:    80,
		height:   24,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case controlTickMsg:
		m.stats = m.dev.Stats()
		return m, controlTickCmd()

	case deviceEventMsg:
		m.refresh()

	case connectRequestMsg:
		return m.connect()

	case callDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.lastError = fmt.Sprintf("%s: %v", msg.name, msg.err)
		} else {
			m.lastError = ""
		}
		m.refresh()
	}

	if m.tab == tabLog {
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.tab = (m.tab + 1) % len(tabLabels)
		return m, nil

	case "c":
		return m.connect()

	case "t":
		return m.playTone()
	}

	if m.tab == tabButtons {
		switch msg.String() {
		case "up", "k":
			m.selectedRow = (m.selectedRow + len(nxt.Ports)) % (len(nxt.Ports) + 1)
		case "down", "j":
			m.selectedRow = (m.selectedRow + 1) % (len(nxt.Ports) + 1)
		case "enter", " ":
			if m.selectedRow == rowTone {
				return m.playTone()
			}
			return m.runMotor(m.selectedPort())
		case "r":
			if m.selectedRow != rowTone {
				return m.runMotor(m.selectedPort())
			}
		case "i":
			if m.selectedRow != rowTone {
				return m.idleMotor(m.selectedPort())
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// Driver calls block, so each runs in a tea.Cmd goroutine

func (m controlModel) connect() (tea.Model, tea.Cmd) {
	if m.state.Kind != device.StateStart {
		return m, nil
	}
	m.busy = "connect"
	dev := m.dev
	return m, func() tea.Msg {
		return callDoneMsg{name: "connect", err: dev.Connect(context.Background())}
	}
}

func (m controlModel) playTone() (tea.Model, tea.Cmd) {
	if !m.buttonsEnabled() {
		return m, nil
	}
	m.busy = "playTone"
	dev := m.dev
	return m, func() tea.Msg {
		err := dev.PlayTone(context.Background(), device.DefaultToneFrequency, device.DefaultToneDuration)
		return callDoneMsg{name: "playTone", err: err}
	}
}

func (m controlModel) runMotor(port nxt.Port) (tea.Model, tea.Cmd) {
	if !m.buttonsEnabled() {
		return m, nil
	}
	m.busy = "runMotor"
	dev := m.dev
	return m, func() tea.Msg {
		return callDoneMsg{name: "runMotor", err: dev.RunMotor(context.Background(), port, device.DefaultMotorPower)}
	}
}

func (m controlModel) idleMotor(port nxt.Port) (tea.Model, tea.Cmd) {
	if !m.buttonsEnabled() {
		return m, nil
	}
	m.busy = "idleMotor"
	dev := m.dev
	return m, func() tea.Msg {
		return callDoneMsg{name: "idleMotor", err: dev.IdleMotor(context.Background(), port)}
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	activeTabStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	tabStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Padding(0, 2)

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 1)

	disabledButtonStyle := buttonStyle.
		Background(lipgloss.Color("238")).
		Foreground(lipgloss.Color("245"))

	// Header
	s.WriteString(titleStyle.Render("BRICKSTAT CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", m.connInfo, m.helpText())))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s", labelStyle.Render("State:"), m.renderState(valueStyle, warningStyle, errorStyle)))
	if m.firmware != nil {
		s.WriteString(fmt.Sprintf("  %s %s  %s %s",
			labelStyle.Render("Firmware:"), valueStyle.Render(m.firmware.Firmware.String()),
			labelStyle.Render("Protocol:"), valueStyle.Render(m.firmware.Protocol.String())))
	}
	s.WriteString("\n\n")

	// Terminal failure replaces the tabs
	if m.state.Kind == device.StateGone {
		msg := "Connection lost"
		if m.state.Reason != nil {
			msg = m.state.Reason.Error()
		}
		s.WriteString(boxStyle.Width(m.width - 4).Render(
			errorStyle.Render("*** "+msg+" ***") + "\n\n" + headerStyle.Render("Press q to quit, then run control again to reconnect.")))
		return s.String()
	}

	// Tab bar
	for i, label := range tabLabels {
		if i == m.tab {
			s.WriteString(activeTabStyle.Render(label))
		} else {
			s.WriteString(tabStyle.Render(label))
		}
	}
	s.WriteString("\n")

	switch m.tab {
	case tabLog:
		s.WriteString(boxStyle.Width(m.width - 4).Render(m.logView.View()))
	case tabButtons:
		s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderButtons(labelStyle, valueStyle, buttonStyle, disabledButtonStyle)))
	}
	s.WriteString("\n")

	if m.lastError != "" {
		s.WriteString(errorStyle.Render(" " + m.lastError))
		s.WriteString("\n")
	}
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) helpText() string {
	switch {
	case m.state.Kind == device.StateStart:
		return "c=connect q=quit"
	case m.tab == tabButtons:
		return "q=quit Tab=log ↑↓=select Enter=press r=run i=idle t=tone"
	default:
		return "q=quit Tab=buttons ↑↓=scroll t=tone"
	}
}

func (m controlModel) renderState(valueStyle, warningStyle, errorStyle lipgloss.Style) string {
	switch m.state.Kind {
	case device.StateReady:
		return valueStyle.Render(m.state.String())
	case device.StateGone:
		return errorStyle.Render(m.state.Kind.String())
	default:
		return warningStyle.Render(m.state.String())
	}
}

func (m controlModel) renderButtons(labelStyle, valueStyle, buttonStyle, disabledButtonStyle lipgloss.Style) string {
	var s strings.Builder
	style := buttonStyle
	if !m.buttonsEnabled() {
		style = disabledButtonStyle
	}

	cursor := func(row int) string {
		if row == m.selectedRow {
			return "> "
		}
		return "  "
	}

	s.WriteString(cursor(rowTone))
	s.WriteString(style.Render("Play Tone"))
	s.WriteString(fmt.Sprintf("  %d Hz, %s\n\n", device.DefaultToneFrequency, device.DefaultToneDuration))

	for i, port := range nxt.Ports {
		s.WriteString(cursor(i + 1))
		s.WriteString(labelStyle.Render(fmt.Sprintf("Motor %s:", port)))
		s.WriteString(" ")
		s.WriteString(style.Render("Run"))
		s.WriteString(" ")
		s.WriteString(style.Render("Idle"))

		pos, power := "-", "-"
		if r, ok := m.readings[port]; ok {
			pos = fmt.Sprintf("%d", r.Position)
			power = fmt.Sprintf("%d", r.Power)
		}
		s.WriteString(fmt.Sprintf(" Pos=%s Power=%s\n", valueStyle.Render(pos), valueStyle.Render(power)))
	}

	if m.busy != "" {
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("Waiting for %s...", m.busy))
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	errs := valueStyle.Render("0")
	if n := m.stats.Errors(); n > 0 {
		errs = errorStyle.Render(fmt.Sprintf("%d", n))
	}
	return fmt.Sprintf(" %s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesSent)),
		labelStyle.Render("Recv:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesReceived)),
		labelStyle.Render("Calls:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.CallRate)),
		labelStyle.Render("Latency:"), valueStyle.Render(m.stats.LastCallLatency.Round(time.Millisecond).String()),
		labelStyle.Render("Errors:"), errs)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// refresh mirrors the device snapshot into the model
func (m *controlModel) refresh() {
	snap := m.dev.Snapshot()
	m.state = snap.State
	m.firmware = snap.Firmware
	for _, r := range snap.Readings {
		m.readings[r.Port] = r
	}

	if !slices.Equal(m.log, snap.Log) {
		atBottom := m.logView.AtBottom()
		m.log = snap.Log
		m.logView.SetContent(strings.Join(m.log, "\n"))
		if atBottom {
			m.logView.GotoBottom()
		}
	}
}

func (m *controlModel) resizeLog() {
	// Header, tab bar, borders, error and statistics lines
	height := m.height - 10
	if height < 3 {
		height = 3
	}
	m.logView.Width = m.width - 8
	m.logView.Height = height
}

func (m controlModel) buttonsEnabled() bool {
	return m.state.Kind == device.StateReady && m.busy == ""
}

func (m controlModel) selectedPort() nxt.Port {
	return nxt.Ports[m.selectedRow-1]
}

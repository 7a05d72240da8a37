package tui

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"devscope/internal/config"
	"devscope/internal/health"
	"devscope/internal/process"
	"devscope/internal/state"
)

type PanelFocus int

const (
	FocusServers PanelFocus = iota
	FocusScripts
)

type tickMsg time.Time

type ServerProvider interface {
	Servers() []state.Entity
	TriggerScan(ctx context.Context)
}

type ScriptProvider interface {
	Scripts() []state.Entity
	TriggerScan(ctx context.Context)
}

type HealthProvider interface {
	Records() []health.Record
}

type Model struct {
	width    int
	height   int
	keys     KeyMap
	quitting bool

	cfg config.Config

	servers ServerProvider
	scripts ScriptProvider
	hp      HealthProvider

	panelFocus   PanelFocus
	serverCursor int
	scriptCursor int

	killConfirm    bool
	killTargetPID  int
	killTargetInfo string

	statusMessage string
	lastRefresh   time.Time

	refreshRate time.Duration

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	m := Model{
		keys:        DefaultKeyMap(),
		cfg:         cfg,
		lastRefresh: time.Now(),
		refreshRate: time.Duration(cfg.Display.RefreshRateMS) * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

type ModelOption func(*Model)

func WithServerProvider(s ServerProvider) ModelOption {
	return func(m *Model) { m.servers = s }
}

func WithScriptProvider(s ScriptProvider) ModelOption {
	return func(m *Model) { m.scripts = s }
}

func WithHealthProvider(h HealthProvider) ModelOption {
	return func(m *Model) { m.hp = h }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.lastRefresh = time.Time(msg)
		m.clampCursors()
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// clampCursors keeps the cursors in range as rows appear and vanish
// between refreshes.
func (m *Model) clampCursors() {
	if n := len(m.serverRows()); m.serverCursor >= n {
		m.serverCursor = n - 1
	}
	if m.serverCursor < 0 {
		m.serverCursor = 0
	}
	if n := len(m.scriptRows()); m.scriptCursor >= n {
		m.scriptCursor = n - 1
	}
	if m.scriptCursor < 0 {
		m.scriptCursor = 0
	}
}

func (m Model) serverRows() []state.Entity {
	if m.servers == nil {
		return nil
	}
	return m.servers.Servers()
}

func (m Model) scriptRows() []state.Entity {
	if m.scripts == nil {
		return nil
	}
	return m.scripts.Scripts()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.killConfirm {
		return m.handleKillConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.panelFocus == FocusServers {
			m.panelFocus = FocusScripts
		} else {
			m.panelFocus = FocusServers
		}
		return m, nil

	case key.Matches(msg, m.keys.Rescan):
		if m.servers != nil {
			m.servers.TriggerScan(context.Background())
		}
		if m.scripts != nil {
			m.scripts.TriggerScan(context.Background())
		}
		m.statusMessage = "Rescanning..."
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.panelFocus == FocusServers {
			if m.serverCursor > 0 {
				m.serverCursor--
			}
		} else if m.scriptCursor > 0 {
			m.scriptCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.panelFocus == FocusServers {
			if m.serverCursor < len(m.serverRows())-1 {
				m.serverCursor++
			}
		} else if m.scriptCursor < len(m.scriptRows())-1 {
			m.scriptCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Kill):
		return m.initiateKill()

	case key.Matches(msg, m.keys.Open):
		if ent, ok := m.selectedEntity(); ok && ent.CWD != "" {
			if err := process.OpenPath(ent.CWD); err != nil {
				m.statusMessage = "Open failed: " + err.Error()
			} else {
				m.statusMessage = "Opened " + ent.CWD
			}
		}
		return m, nil
	}

	return m, nil
}

func (m Model) selectedEntity() (state.Entity, bool) {
	var rows []state.Entity
	var cursor int
	if m.panelFocus == FocusServers {
		rows, cursor = m.serverRows(), m.serverCursor
	} else {
		rows, cursor = m.scriptRows(), m.scriptCursor
	}
	if cursor < 0 || cursor >= len(rows) {
		return state.Entity{}, false
	}
	return rows[cursor], true
}

func (m Model) initiateKill() (tea.Model, tea.Cmd) {
	ent, ok := m.selectedEntity()
	if !ok {
		return m, nil
	}

	m.killConfirm = true
	m.killTargetPID = int(ent.PID)
	if ent.Class == state.ClassServer {
		m.killTargetInfo = ent.Name + " (pid " + strconv.Itoa(int(ent.PID)) + ", port " + strconv.Itoa(ent.Port) + ")"
	} else {
		m.killTargetInfo = ent.ScriptName + " (pid " + strconv.Itoa(int(ent.PID)) + ")"
	}
	return m, nil
}

func (m Model) handleKillConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		if err := process.Terminate(m.killTargetPID); err != nil && !process.IsNoSuchProcess(err) {
			m.statusMessage = "Kill failed: " + err.Error()
		} else {
			m.statusMessage = "Terminated pid " + strconv.Itoa(m.killTargetPID)
		}
		m.killConfirm = false
		m.killTargetPID = 0
		m.killTargetInfo = ""
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.killConfirm = false
		m.killTargetPID = 0
		m.killTargetInfo = ""
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	return m.renderDashboard()
}

// healthByKey indexes the latest probe records for row rendering.
func (m Model) healthByKey() map[string]health.Record {
	if m.hp == nil {
		return nil
	}
	records := m.hp.Records()
	byKey := make(map[string]health.Record, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	return byKey
}

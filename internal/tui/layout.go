package tui

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type panelDimensions struct {
	serverListW, serverListH int
	scriptListW, scriptListH int
	headerH                  int
	statusH                  int
}

const (
	minWidth  = 40
	minHeight = 10

	headerHeight = 1
	statusHeight = 1
)

func computeDimensions(totalW, totalH int) panelDimensions {
	if totalW < minWidth {
		totalW = minWidth
	}
	if totalH < minHeight {
		totalH = minHeight
	}

	d := panelDimensions{
		headerH: headerHeight,
		statusH: statusHeight,
	}

	usableH := totalH - headerHeight - statusHeight
	if usableH < 6 {
		usableH = 6
	}

	// Servers get the larger share; scripts sit below.
	d.serverListW = totalW
	d.serverListH = usableH * 65 / 100
	if d.serverListH < 4 {
		d.serverListH = 4
	}

	d.scriptListW = totalW
	d.scriptListH = usableH - d.serverListH
	if d.scriptListH < 3 {
		d.scriptListH = 3
	}

	return d
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	focusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63"))

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	slowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	killDialogStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 3).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func renderBorderedPanel(content string, w, h int, focused bool) string {
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	lines := strings.Split(content, "\n")
	if len(lines) > contentH {
		lines = lines[:contentH]
		content = strings.Join(lines, "\n")
	}

	style := panelBorderStyle
	if focused {
		style = focusedBorderStyle
	}

	return style.
		Width(w - 2).
		Height(contentH).
		Render(content)
}

func (m Model) renderDashboard() string {
	dims := computeDimensions(m.width, m.height)

	header := m.renderHeader()
	serverPanel := m.renderServerPanel(dims.serverListW, dims.serverListH)
	scriptPanel := m.renderScriptPanel(dims.scriptListW, dims.scriptListH)
	statusBar := m.renderStatusBar()

	layout := lipgloss.JoinVertical(lipgloss.Left, header, serverPanel, scriptPanel, statusBar)

	if m.killConfirm {
		layout = m.overlayKillDialog(layout)
	}

	return layout
}

func (m Model) renderHeader() string {
	title := " devscope"
	counts := ""
	if m.servers != nil {
		counts = " " + strconv.Itoa(len(m.servers.Servers())) + " servers"
	}
	if m.scripts != nil {
		counts += " | " + strconv.Itoa(len(m.scripts.Scripts())) + " scripts"
	}

	help := "r:Rescan  Tab:Panel  o:Open  Ctrl+K:Kill  q:Quit "

	padding := m.width - lipgloss.Width(title) - lipgloss.Width(counts) - lipgloss.Width(help)
	if padding < 0 {
		padding = 0
	}

	return headerStyle.Width(m.width).Render(title + counts + strings.Repeat(" ", padding) + help)
}

func (m Model) renderStatusBar() string {
	msg := m.statusMessage
	if msg == "" {
		msg = "last refresh " + m.lastRefresh.Format("15:04:05")
	}
	return statusBarStyle.Render(" " + msg)
}

func (m Model) overlayKillDialog(base string) string {
	dialog := killDialogStyle.Render(
		"Kill process?\n\n" +
			m.killTargetInfo + "\n\n" +
			"[Enter] Kill  [Esc] Cancel")

	return lipgloss.Place(
		lipgloss.Width(base),
		lipgloss.Height(base),
		lipgloss.Center,
		lipgloss.Center,
		dialog,
		lipgloss.WithWhitespaceChars(" "),
	)
}

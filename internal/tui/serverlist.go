package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"devscope/internal/health"
	"devscope/internal/metrics"
	"devscope/internal/state"
)

// renderServerPanel renders the server table with columns for port, pid,
// framework, health, latency, CPU trend and memory.
func (m Model) renderServerPanel(w, h int) string {
	servers := m.serverRows()
	records := m.healthByKey()

	contentW := w - 4
	if contentW < 16 {
		contentW = 16
	}
	contentH := h - 4
	if contentH < 2 {
		contentH = 2
	}

	var lines []string
	lines = append(lines, panelTitleStyle.Render("Servers"))

	if len(servers) == 0 {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("No dev servers detected"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus == FocusServers)
	}

	header := formatServerHeader(contentW)
	lines = append(lines, dimStyle.Render(header))
	lines = append(lines, dimStyle.Render(strings.Repeat("─", minInt(contentW, len(header)))))

	for i, s := range servers {
		line := formatServerRow(&s, records, contentW)
		if m.panelFocus == FocusServers && i == m.serverCursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}

	// Keep title, header and separator fixed; trim the rows.
	const fixed = 3
	if len(lines) > contentH && contentH > fixed {
		visible := contentH - fixed
		dataLines := lines[fixed:]
		offset := 0
		if m.panelFocus == FocusServers && m.serverCursor >= visible {
			offset = m.serverCursor - visible + 1
		}
		if offset > len(dataLines)-visible {
			offset = len(dataLines) - visible
		}
		lines = append(lines[:fixed], dataLines[offset:offset+visible]...)
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus == FocusServers)
}

func formatServerHeader(maxW int) string {
	if maxW >= 100 {
		return fmt.Sprintf("%-6s %-7s %-16s %-10s %-7s %-7s %-7s %-8s %s",
			"Port", "PID", "Framework", "Health", "RTT", "CPU", "Trend", "Mem", "CWD")
	}
	if maxW >= 60 {
		return fmt.Sprintf("%-6s %-7s %-14s %-10s %-7s %-8s",
			"Port", "PID", "Framework", "Health", "CPU", "Mem")
	}
	return fmt.Sprintf("%-6s %-7s %-10s", "Port", "PID", "Health")
}

func formatServerRow(s *state.Entity, records map[string]health.Record, maxW int) string {
	framework := s.Framework
	if framework == "" {
		framework = s.Name
	}

	healthStr, rttStr := renderHealth(records, s.Key)
	cpu := fmt.Sprintf("%.1f%%", s.CPUPercent)
	mem := formatBytes(s.MemoryRSS)
	trend := sparkline(s.CPUHistory)
	cwd := truncateCWD(s.CWD, maxW-80)

	if maxW >= 100 {
		return fmt.Sprintf("%-6d %-7d %-16s %-10s %-7s %-7s %-7s %-8s %s",
			s.Port, s.PID, truncateStr(framework, 16), healthStr, rttStr, cpu, trend, mem, cwd)
	}
	if maxW >= 60 {
		return fmt.Sprintf("%-6d %-7d %-14s %-10s %-7s %-8s",
			s.Port, s.PID, truncateStr(framework, 14), healthStr, cpu, mem)
	}
	return fmt.Sprintf("%-6d %-7d %-10s", s.Port, s.PID, healthStr)
}

// renderHealth returns the styled health badge and RTT column for a key.
// The style widths are invisible to fmt padding, so the badge is padded
// before styling.
func renderHealth(records map[string]health.Record, key string) (string, string) {
	rec, ok := records[key]
	if !ok {
		return dimStyle.Render(fmt.Sprintf("%-10s", "—")), "—"
	}

	badge := fmt.Sprintf("%-10s", string(rec.Status))
	rtt := "—"
	if rec.RTT > 0 {
		rtt = fmt.Sprintf("%dms", rec.RTT.Milliseconds())
	}

	switch rec.Status {
	case health.StatusHealthy:
		return healthyStyle.Render(badge), rtt
	case health.StatusSlow:
		return slowStyle.Render(badge), rtt
	default:
		return downStyle.Render(badge), rtt
	}
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// sparkline renders a CPU history as a fixed-width bar chart. Values are
// scaled against the window maximum so a quiet process still shows shape.
func sparkline(h *metrics.History) string {
	if h == nil || h.Len() == 0 {
		return strings.Repeat(" ", metrics.HistorySize)
	}

	values := h.Values()
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	for i := 0; i < metrics.HistorySize-len(values); i++ {
		b.WriteByte(' ')
	}
	for _, v := range values {
		idx := 0
		if max > 0 {
			idx = int(v / max * float64(len(sparkChars)-1))
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

func formatBytes(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.1fG", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.0fM", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.0fK", float64(n)/kib)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// truncateCWD shortens a path by replacing the home directory with ~
// and trimming from the left so the project name stays visible.
func truncateCWD(cwd string, maxLen int) string {
	if cwd == "" {
		return "—"
	}

	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(cwd, home) {
		cwd = "~" + cwd[len(home):]
	}

	if maxLen <= 0 || len(cwd) <= maxLen {
		return cwd
	}
	if maxLen <= 3 {
		return cwd[len(cwd)-maxLen:]
	}
	return "..." + cwd[len(cwd)-(maxLen-3):]
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "."
}

func formatUptime(since time.Time, now time.Time) string {
	if since.IsZero() {
		return "—"
	}
	d := now.Sub(since)
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

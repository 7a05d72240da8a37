package tui

import (
	"fmt"
	"strings"
	"time"

	"devscope/internal/state"
)

func (m Model) renderScriptPanel(w, h int) string {
	scripts := m.scriptRows()

	contentW := w - 4
	if contentW < 16 {
		contentW = 16
	}
	contentH := h - 4
	if contentH < 2 {
		contentH = 2
	}

	var lines []string
	lines = append(lines, panelTitleStyle.Render("Scripts"))

	if len(scripts) == 0 {
		lines = append(lines, dimStyle.Render("No long-running scripts"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus == FocusScripts)
	}

	header := formatScriptHeader(contentW)
	lines = append(lines, dimStyle.Render(header))
	lines = append(lines, dimStyle.Render(strings.Repeat("─", minInt(contentW, len(header)))))

	now := time.Now()
	for i, s := range scripts {
		line := formatScriptRow(&s, contentW, now)
		if m.panelFocus == FocusScripts && i == m.scriptCursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}

	const fixed = 3
	if len(lines) > contentH && contentH > fixed {
		visible := contentH - fixed
		dataLines := lines[fixed:]
		offset := 0
		if m.panelFocus == FocusScripts && m.scriptCursor >= visible {
			offset = m.scriptCursor - visible + 1
		}
		if offset > len(dataLines)-visible {
			offset = len(dataLines) - visible
		}
		lines = append(lines[:fixed], dataLines[offset:offset+visible]...)
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus == FocusScripts)
}

func formatScriptHeader(maxW int) string {
	if maxW >= 70 {
		return fmt.Sprintf("%-24s %-7s %-10s %-7s %-7s %-8s %s",
			"Script", "PID", "Runtime", "CPU", "Trend", "Mem", "Uptime")
	}
	return fmt.Sprintf("%-20s %-7s %-7s %-8s", "Script", "PID", "CPU", "Mem")
}

func formatScriptRow(s *state.Entity, maxW int, now time.Time) string {
	name := s.ScriptName
	if name == "" {
		name = s.Name
	}
	cpu := fmt.Sprintf("%.1f%%", s.CPUPercent)
	mem := formatBytes(s.MemoryRSS)

	if maxW >= 70 {
		return fmt.Sprintf("%-24s %-7d %-10s %-7s %-7s %-8s %s",
			truncateStr(name, 24), s.PID, truncateStr(s.Name, 10), cpu,
			sparkline(s.CPUHistory), mem, formatUptime(s.FirstSeen, now))
	}
	return fmt.Sprintf("%-20s %-7d %-7s %-8s", truncateStr(name, 20), s.PID, cpu, mem)
}

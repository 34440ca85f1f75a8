package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/equityscope/research-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	barFillStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	kind := string(m.snap.Kind)
	if kind == "" {
		kind = "idle"
	}
	header := fmt.Sprintf(" Research Orchestrator │ %s │ %s ", kind, m.stateLabel())
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	// Progress
	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderProgress()))
	b.WriteString("\n")

	// Log tail
	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLog()))
	b.WriteString("\n")

	// Status bar
	bar := " q: quit │ c: cancel run │ r: refresh "
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) stateLabel() string {
	switch {
	case m.cancelRequested:
		return warningStyle.Render("cancelling")
	case m.snap.State == domain.RunRunning:
		return runningStyle.Render("running")
	case m.snap.State == "":
		return dimmedStyle.Render("no run")
	default:
		return string(m.snap.State)
	}
}

func (m Model) renderProgress() string {
	var b strings.Builder

	if m.snap.Total == 0 {
		b.WriteString(dimmedStyle.Render("No items in this run"))
		return b.String()
	}

	b.WriteString(progressBar(m.snap.Processed, m.snap.Total, m.width-20))
	b.WriteString(fmt.Sprintf(" %d/%d\n", m.snap.Processed, m.snap.Total))

	b.WriteString(runningStyle.Render(fmt.Sprintf("✓ %d", m.snap.Succeeded)))
	b.WriteString("  ")
	b.WriteString(failedStyle.Render(fmt.Sprintf("✗ %d", m.snap.Failed)))
	b.WriteString("  ")
	b.WriteString(warningStyle.Render(fmt.Sprintf("◐ %d degraded", m.snap.Degraded)))

	if m.snap.Current != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("Current: %s", m.snap.Current))
	}

	return b.String()
}

func (m Model) renderLog() string {
	if len(m.lines) == 0 {
		return dimmedStyle.Render("No log lines yet")
	}

	var b strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		ts := dimmedStyle.Render(line.Time.Format("15:04:05"))
		msg := line.Message
		switch line.Level {
		case domain.LevelError:
			msg = failedStyle.Render(msg)
		case domain.LevelWarn:
			msg = warningStyle.Render(msg)
		}
		b.WriteString(ts + " " + msg)
	}
	return b.String()
}

func progressBar(done, total, width int) string {
	if width < 10 {
		width = 10
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return barFillStyle.Render(bar)
}

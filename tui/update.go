package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const logTailLines = 15

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		case "c":
			if m.cancelRun != nil && !m.snap.State.Terminal() {
				if m.cancelRun() {
					m.cancelRequested = true
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		m.lastRefresh = time.Time(msg)
		return m, tickCmd()
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.monitor == nil {
		return
	}
	m.snap = m.monitor.Snapshot()
	m.lines = m.monitor.Tail(logTailLines)
	if m.snap.State.Terminal() {
		m.cancelRequested = false
	}
}

// Package tui renders a live batch-run dashboard in the terminal: counters,
// the symbol in flight, and the tail of the run log.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/equityscope/research-orchestrator/internal/runner"
)

// RunMonitor is the read side of a run the dashboard follows. The runner's
// Tracker satisfies it.
type RunMonitor interface {
	Snapshot() runner.Snapshot
	Tail(n int) []runner.LogLine
}

// Model is the TUI application model
type Model struct {
	// Data
	monitor RunMonitor
	snap    runner.Snapshot
	lines   []runner.LogLine

	// Cancel requests cooperative cancellation of the run being watched
	cancelRun func() bool

	// UI state
	width           int
	height          int
	cancelRequested bool

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Monitor RunMonitor
	// CancelRun is invoked on the cancel key; may be nil for read-only views
	CancelRun func() bool
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	m := Model{
		monitor:   cfg.Monitor,
		cancelRun: cfg.CancelRun,
	}
	if cfg.Monitor != nil {
		m.snap = cfg.Monitor.Snapshot()
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

package runner

import (
	"sync"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
)

// LogLine is one timestamped, human-readable run log entry
type LogLine struct {
	Time    time.Time       `json:"time"`
	Level   domain.LogLevel `json:"level"`
	Message string          `json:"message"`
}

// Snapshot is a point-in-time, read-only projection of a run's counters plus
// its most recent log line. It is derived, never stored.
type Snapshot struct {
	RunID     string           `json:"run_id"`
	Kind      domain.BatchKind `json:"kind"`
	State     domain.RunState  `json:"state"`
	Total     int              `json:"total"`
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Degraded  int              `json:"degraded"`
	Current   string           `json:"current,omitempty"`
	LastLine  LogLine          `json:"last_line"`
	StartedAt time.Time        `json:"started_at"`
}

// ProgressFunc observes snapshots; invoked synchronously by the runner after
// every state transition, so implementations must not block for long.
type ProgressFunc func(Snapshot)

const trackerTailSize = 200

// Tracker retains the latest snapshot and a bounded tail of log lines for
// concurrent readers (web handlers, the TUI). Its Observe method is a
// ProgressFunc.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	lines []LogLine
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records a snapshot. New log lines are appended to the tail.
func (t *Tracker) Observe(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !s.LastLine.Time.IsZero() {
		if len(t.lines) == 0 || t.lines[len(t.lines)-1] != s.LastLine {
			t.lines = append(t.lines, s.LastLine)
			if len(t.lines) > trackerTailSize {
				t.lines = t.lines[len(t.lines)-trackerTailSize:]
			}
		}
	}
	t.snap = s
}

// Snapshot returns the most recently observed snapshot
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Tail returns up to n of the most recent log lines, oldest first
func (t *Tracker) Tail(n int) []LogLine {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.lines) {
		n = len(t.lines)
	}
	out := make([]LogLine, n)
	copy(out, t.lines[len(t.lines)-n:])
	return out
}

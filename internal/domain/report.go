package domain

import "time"

// Report is the persisted result of a generate pipeline run for one symbol.
// Research, Metrics and Sections hold the raw JSON payloads returned by the
// corresponding stages; Metrics may be empty when the metrics stage degraded.
type Report struct {
	Symbol    string
	Version   string // content version marker, part of the dedupe key
	Research  string
	Metrics   string
	Sections  string
	Degraded  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SymbolRecord is the persisted result of a scrape run for one symbol
type SymbolRecord struct {
	Symbol         string
	ScreenerSymbol string
	LastUpdated    time.Time
}

// BatchRecord is one row of batch-run history
type BatchRecord struct {
	ID         string
	Kind       BatchKind
	State      RunState
	Total      int
	Succeeded  int
	Failed     int
	Degraded   int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// LogEntry is one persisted log line of a batch run
type LogEntry struct {
	ID        int
	RunID     string
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

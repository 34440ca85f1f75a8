package domain

// RunState represents the lifecycle state of a batch run
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
	RunFailed    RunState = "failed"
)

// Terminal returns true when the state admits no further transitions
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFailed
}

// BatchKind identifies which pipeline a batch run drives
type BatchKind string

const (
	BatchScrape   BatchKind = "scrape"
	BatchGenerate BatchKind = "generate"
)

// LogLevel classifies run log lines
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

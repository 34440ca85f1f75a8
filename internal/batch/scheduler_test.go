package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestBatchConfig_Validate(t *testing.T) {
	cfg := BatchConfig{
		Name:           "overnight-scrape",
		Cron:           "0 22 * * *",
		Kind:           "scrape",
		MaxDurationMin: 8 * 60,
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	cfg.Name = "bad-kind"
	cfg.Kind = "rebalance"
	if err := cfg.Validate(); err == nil {
		t.Error("Unknown kind should error")
	}

	cfg.Kind = "generate"
	cfg.Symbols = []string{"not a symbol"}
	if err := cfg.Validate(); err == nil {
		t.Error("Invalid symbol should error")
	}
}

func TestBatchConfig_Defaults(t *testing.T) {
	cfg := BatchConfig{Name: "nightly", Cron: "0 3 * * *"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxDurationMin != 4*60 {
		t.Errorf("MaxDurationMin = %d, want default 240", cfg.MaxDurationMin)
	}
	if cfg.BatchKind() != "scrape" {
		t.Errorf("BatchKind = %s, want scrape default", cfg.BatchKind())
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	data := `
[[batch]]
name = "overnight-scrape"
cron = "0 22 * * *"
kind = "scrape"
force = true

[[batch]]
name = "weekly-reports"
cron = "0 6 * * 1"
kind = "generate"
stale_only = true
symbols = ["AAPL", "MSFT"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(cfg.Batches))
	}
	if cfg.Batches[1].BatchKind() != "generate" {
		t.Errorf("kind = %s, want generate", cfg.Batches[1].BatchKind())
	}
	if !cfg.Batches[1].StaleOnly {
		t.Error("stale_only should be set")
	}
}

func TestLoadScheduleConfig_Missing(t *testing.T) {
	cfg, err := LoadScheduleConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Batches) != 0 {
		t.Errorf("missing file should yield empty schedule, got %d batches", len(cfg.Batches))
	}
}

func TestBatchScheduler_NextRun(t *testing.T) {
	cfg := BatchConfig{
		Name: "test",
		Cron: "0 22 * * *", // 10 PM daily
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}
}

func TestBatchScheduler_ShouldRun(t *testing.T) {
	cfg := BatchConfig{
		Name: "test",
		Cron: "* * * * *", // Every minute
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	// Mark as last run two minutes ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}

	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("Should not re-fire while in flight")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("Should not fire again immediately after completion")
	}
}

// Package batch schedules recurring scrape and generate runs from a cron
// table in the schedule file.
package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/equityscope/research-orchestrator/internal/domain"
)

// BatchConfig represents one scheduled batch
type BatchConfig struct {
	Name string `toml:"name"`
	Cron string `toml:"cron"`
	// Kind selects the pipeline: "scrape" or "generate"
	Kind string `toml:"kind"`
	// Symbols overrides the catalog for this batch when non-empty
	Symbols []string `toml:"symbols"`
	Force   bool     `toml:"force"`
	// StaleOnly restricts a generate batch to outdated reports
	StaleOnly      bool `toml:"stale_only"`
	MaxDurationMin int  `toml:"max_duration_min"`
}

// MaxDuration returns the run deadline as a duration
func (c *BatchConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationMin) * time.Minute
}

// BatchKind maps the configured kind string onto the pipeline selector
func (c *BatchConfig) BatchKind() domain.BatchKind {
	if c.Kind == string(domain.BatchGenerate) {
		return domain.BatchGenerate
	}
	return domain.BatchScrape
}

// ScheduleConfig holds all scheduled batches
type ScheduleConfig struct {
	Batches []BatchConfig `toml:"batch"`
}

// Validate checks if the config is valid
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	switch c.Kind {
	case "", string(domain.BatchScrape), string(domain.BatchGenerate):
	default:
		return fmt.Errorf("unknown batch kind %q", c.Kind)
	}
	for _, s := range c.Symbols {
		if _, err := domain.ParseSymbol(s); err != nil {
			return err
		}
	}
	if c.MaxDurationMin <= 0 {
		c.MaxDurationMin = 4 * 60 // Default
	}
	return nil
}

// LoadScheduleConfig loads batch configuration from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all batches
	for i := range cfg.Batches {
		if err := cfg.Batches[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	return &cfg, nil
}

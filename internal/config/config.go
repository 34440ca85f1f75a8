package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General  GeneralConfig  `toml:"general"`
	Backends BackendsConfig `toml:"backends"`
	Pacing   PacingConfig   `toml:"pacing"`
	Notify   NotifyConfig   `toml:"notifications"`
	Web      WebConfig      `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath  string `toml:"database_path"`
	WatchlistPath string `toml:"watchlist_path"`
	// ReportMaxAgeHours is how old a report may be before `generate --stale`
	// picks its symbol up again
	ReportMaxAgeHours int  `toml:"report_max_age_hours"`
	Shuffle           bool `toml:"shuffle"`
}

// ReportMaxAge returns the stale-report threshold as a duration
func (g GeneralConfig) ReportMaxAge() time.Duration {
	return time.Duration(g.ReportMaxAgeHours) * time.Hour
}

// BackendsConfig holds the external service endpoints
type BackendsConfig struct {
	ScraperURL      string `toml:"scraper_url"`
	ResearchURL     string `toml:"research_url"`
	StageTimeoutSec int    `toml:"stage_timeout_sec"`
}

// StageTimeout returns the per-stage call timeout as a duration
func (b BackendsConfig) StageTimeout() time.Duration {
	return time.Duration(b.StageTimeoutSec) * time.Second
}

// PacingConfig bounds the randomized inter-item delay
type PacingConfig struct {
	MinDelayMs int `toml:"min_delay_ms"`
	MaxDelayMs int `toml:"max_delay_ms"`
}

// MinDelay returns the lower pacing bound as a duration
func (p PacingConfig) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper pacing bound as a duration
func (p PacingConfig) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:      filepath.Join(home, ".research-orch", "research.db"),
			WatchlistPath:     filepath.Join(home, ".research-orch", "watchlist.yaml"),
			ReportMaxAgeHours: 7 * 24,
			Shuffle:           true,
		},
		Backends: BackendsConfig{
			ScraperURL:      "http://127.0.0.1:5050",
			ResearchURL:     "http://127.0.0.1:5051",
			StageTimeoutSec: 120,
		},
		Pacing: PacingConfig{
			MinDelayMs: 1000,
			MaxDelayMs: 5000,
		},
		Notify: NotifyConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// A .env file in the working directory and RESEARCH_ORCH_* environment
// variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	_ = godotenv.Load() // no .env is fine
	applyEnv(cfg)

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.WatchlistPath = ExpandPath(cfg.General.WatchlistPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RESEARCH_ORCH_SCRAPER_URL"); v != "" {
		cfg.Backends.ScraperURL = v
	}
	if v := os.Getenv("RESEARCH_ORCH_RESEARCH_URL"); v != "" {
		cfg.Backends.ResearchURL = v
	}
	if v := os.Getenv("RESEARCH_ORCH_DB_PATH"); v != "" {
		cfg.General.DatabasePath = v
	}
	if v := os.Getenv("RESEARCH_ORCH_SLACK_WEBHOOK"); v != "" {
		cfg.Notify.SlackWebhook = v
	}
	if v := os.Getenv("RESEARCH_ORCH_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Pacing.MinDelayMs < 0 || c.Pacing.MaxDelayMs < 0 {
		return fmt.Errorf("pacing delays must be non-negative")
	}
	if c.Pacing.MaxDelayMs > 0 && c.Pacing.MinDelayMs > c.Pacing.MaxDelayMs {
		return fmt.Errorf("pacing min_delay_ms %d exceeds max_delay_ms %d", c.Pacing.MinDelayMs, c.Pacing.MaxDelayMs)
	}
	if c.Backends.ScraperURL == "" {
		return fmt.Errorf("scraper_url is required")
	}
	if c.Backends.ResearchURL == "" {
		return fmt.Errorf("research_url is required")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "research-orch", "config.toml")
}

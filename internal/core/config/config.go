package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Reports  ReportsConfig  `koanf:"reports"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// ReportsConfig tunes the summarization jobs.
type ReportsConfig struct {
	// UserEvents pre-enumerates every valid MSU event type. Summaries carry
	// a zero-valued entry per type; events outside the enumeration are
	// excluded from all fields. Validated here, not at fold time.
	UserEvents []string `koanf:"user_events"`

	// SummaryWindows lists the lookbacks, in days, a user summary is
	// maintained for. 0 means all-time. Each window runs independently.
	SummaryWindows []int `koanf:"summary_windows"`

	// TrendingHours lists the window lengths, in hours, trending reports
	// are generated for.
	TrendingHours []int `koanf:"trending_hours"`

	FetchLimit        int `koanf:"fetch_limit"`
	InstallFetchLimit int `koanf:"install_fetch_limit"`

	// RuntimeMaxSeconds is the wall-clock budget of one job invocation.
	RuntimeMaxSeconds int `koanf:"runtime_max_seconds"`

	// ContinuationDelaySeconds is how far in the future checkpoint
	// continuations are deferred.
	ContinuationDelaySeconds int `koanf:"continuation_delay_seconds"`

	// LockTTLSeconds bounds how long a crashed invocation holds its lock.
	LockTTLSeconds int `koanf:"lock_ttl_seconds"`

	// CronInterval is the cadence the summary jobs are triggered on.
	CronInterval string `koanf:"cron_interval"`

	// DispatchInterval is the deferred-task poll cadence.
	DispatchInterval string `koanf:"dispatch_interval"`
}

func (c ReportsConfig) RuntimeBudget() time.Duration {
	return time.Duration(c.RuntimeMaxSeconds) * time.Second
}

func (c ReportsConfig) ContinuationDelay() time.Duration {
	return time.Duration(c.ContinuationDelaySeconds) * time.Second
}

func (c ReportsConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if len(c.Reports.UserEvents) == 0 {
		return fmt.Errorf("reports.user_events is required")
	}
	seenEvents := make(map[string]bool, len(c.Reports.UserEvents))
	for _, ev := range c.Reports.UserEvents {
		if strings.TrimSpace(ev) == "" {
			return fmt.Errorf("reports.user_events contains an empty entry")
		}
		if seenEvents[ev] {
			return fmt.Errorf("reports.user_events contains duplicate %q", ev)
		}
		seenEvents[ev] = true
	}

	seenWindows := make(map[int]bool, len(c.Reports.SummaryWindows))
	for _, days := range c.Reports.SummaryWindows {
		if days < 0 {
			return fmt.Errorf("reports.summary_windows entries must be >= 0, got %d", days)
		}
		if seenWindows[days] {
			return fmt.Errorf("reports.summary_windows contains duplicate %d", days)
		}
		seenWindows[days] = true
	}

	seenHours := make(map[int]bool, len(c.Reports.TrendingHours))
	for _, hours := range c.Reports.TrendingHours {
		if hours <= 0 {
			return fmt.Errorf("reports.trending_hours entries must be > 0, got %d", hours)
		}
		if seenHours[hours] {
			return fmt.Errorf("reports.trending_hours contains duplicate %d", hours)
		}
		seenHours[hours] = true
	}

	if c.Reports.FetchLimit <= 0 {
		return fmt.Errorf("reports.fetch_limit must be > 0")
	}
	if c.Reports.InstallFetchLimit <= 0 {
		return fmt.Errorf("reports.install_fetch_limit must be > 0")
	}
	if c.Reports.RuntimeMaxSeconds <= 0 {
		return fmt.Errorf("reports.runtime_max_seconds must be > 0")
	}
	if c.Reports.ContinuationDelaySeconds <= 0 {
		return fmt.Errorf("reports.continuation_delay_seconds must be > 0")
	}
	if c.Reports.LockTTLSeconds <= c.Reports.RuntimeMaxSeconds {
		return fmt.Errorf("reports.lock_ttl_seconds must exceed reports.runtime_max_seconds")
	}
	for _, field := range []struct{ name, value string }{
		{"reports.cron_interval", c.Reports.CronInterval},
		{"reports.dispatch_interval", c.Reports.DispatchInterval},
	} {
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", field.name)
		}
	}

	return nil
}

// Load parses config from file + env and validates it. configPath may be
// empty, in which case defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port": 8080,
		"server.host": "0.0.0.0",
		"server.mode": "release",

		"database.type":           "postgres",
		"database.dsn":            "postgres://localhost:5432/simian?sslmode=disable",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,

		"reports.user_events": []string{
			"launched",
			"exit_later_clicked",
			"exit_installwithlogout",
			"conns_on_corp",
			"conns_off_corp",
		},
		"reports.summary_windows":            []int{0, 1},
		"reports.trending_hours":             []int{1, 24},
		"reports.fetch_limit":                500,
		"reports.install_fetch_limit":        1000,
		"reports.runtime_max_seconds":        30,
		"reports.continuation_delay_seconds": 5,
		"reports.lock_ttl_seconds":           600,
		"reports.cron_interval":              "10m",
		"reports.dispatch_interval":          "1s",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("SIMIAN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SIMIAN_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

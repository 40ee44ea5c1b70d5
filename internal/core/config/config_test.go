package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	requireNoError(t, err)

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Type != "postgres" {
		t.Fatalf("expected default database type postgres, got %q", cfg.Database.Type)
	}
	if len(cfg.Reports.UserEvents) != 5 {
		t.Fatalf("expected 5 default user events, got %d", len(cfg.Reports.UserEvents))
	}
	if cfg.Reports.RuntimeMaxSeconds != 30 {
		t.Fatalf("expected default runtime budget 30s, got %d", cfg.Reports.RuntimeMaxSeconds)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  mode: "debug"
database:
  type: "memory"
reports:
  user_events: ["launched", "exit_later_clicked"]
  summary_windows: [0, 1, 7]
  fetch_limit: 100
`)

	cfg, err := Load(cfgPath)
	requireNoError(t, err)
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Reports.UserEvents) != 2 {
		t.Fatalf("expected 2 user events, got %d", len(cfg.Reports.UserEvents))
	}
	if len(cfg.Reports.SummaryWindows) != 3 {
		t.Fatalf("expected 3 summary windows, got %d", len(cfg.Reports.SummaryWindows))
	}
	if cfg.Reports.FetchLimit != 100 {
		t.Fatalf("expected fetch limit 100, got %d", cfg.Reports.FetchLimit)
	}
	// Untouched sections keep their defaults.
	if cfg.Reports.InstallFetchLimit != 1000 {
		t.Fatalf("expected default install fetch limit 1000, got %d", cfg.Reports.InstallFetchLimit)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
database:
  type: "memory"
`)
	t.Setenv("SIMIAN_SERVER__PORT", "7070")

	cfg, err := Load(cfgPath)
	requireNoError(t, err)
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env override port 7070, got %d", cfg.Server.Port)
	}
}

func TestLoad_DuplicateUserEventsFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, `
database:
  type: "memory"
reports:
  user_events: ["launched", "launched"]
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate user_events error, got %v", err)
	}
}

func TestLoad_LockTTLMustExceedRuntimeBudget(t *testing.T) {
	cfgPath := writeConfig(t, `
database:
  type: "memory"
reports:
  runtime_max_seconds: 60
  lock_ttl_seconds: 60
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "lock_ttl_seconds") {
		t.Fatalf("expected lock_ttl_seconds error, got %v", err)
	}
}

func TestLoad_InvalidServerPortFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: -1
database:
  type: "memory"
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "invalid server.port") {
		t.Fatalf("expected invalid server.port error, got %v", err)
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	cfgPath := writeConfig(t, `
database:
  type: "postgres"
  dsn: ""
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "database.dsn") {
		t.Fatalf("expected database.dsn error, got %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "simian.yaml")
	requireNoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

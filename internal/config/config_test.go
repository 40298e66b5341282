package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
hevy:
  api_key: "hevy-key-123"
  page_size: 5
  timeout: 10s
garmin:
  token_file: "/tmp/garth/oauth2_token.json"
sync:
  state_dir: "/var/lib/hevysync"
  lookback_days: 14
  failure_policy: "advance"
  max_attempts: 3
  lock_stale_after: 30m
server:
  host: "0.0.0.0"
  port: 9090
  interval: 15m
  api_key: "status-key"
log:
  level: "debug"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv keeps a developer's own credentials from leaking into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HEVY_API_KEY", "")
	t.Setenv("HEVYSYNC_HEVY_API_KEY", "")
}

// unsetEnv removes key for the duration of the test. godotenv treats a set
// but empty variable as present.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// TestLoadValid verifies that a well-formed YAML config loads with all fields populated.
func TestLoadValid(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hevy.APIKey != "hevy-key-123" {
		t.Errorf("hevy.api_key = %q, want %q", cfg.Hevy.APIKey, "hevy-key-123")
	}
	if cfg.Hevy.PageSize != 5 {
		t.Errorf("hevy.page_size = %d, want 5", cfg.Hevy.PageSize)
	}
	if cfg.Hevy.Timeout != 10*time.Second {
		t.Errorf("hevy.timeout = %s, want 10s", cfg.Hevy.Timeout)
	}
	if cfg.Sync.Lookback() != 14*24*time.Hour {
		t.Errorf("sync.lookback = %s, want 336h", cfg.Sync.Lookback())
	}
	if cfg.Sync.FailurePolicy != "advance" {
		t.Errorf("sync.failure_policy = %q, want advance", cfg.Sync.FailurePolicy)
	}
	if cfg.Sync.LockStaleAfter != 30*time.Minute {
		t.Errorf("sync.lock_stale_after = %s, want 30m", cfg.Sync.LockStaleAfter)
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("server addr = %q, want 0.0.0.0:9090", cfg.Server.Addr())
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level = %s, want DEBUG", cfg.Log.SlogLevel())
	}
	// Unset fields keep their defaults.
	if cfg.Hevy.BaseURL != "https://api.hevyapp.com" {
		t.Errorf("hevy.base_url = %q, want default", cfg.Hevy.BaseURL)
	}
	if cfg.Sync.OutputDir != "fit_files" {
		t.Errorf("sync.output_dir = %q, want fit_files", cfg.Sync.OutputDir)
	}
}

// TestLoadWithoutFile verifies defaults plus env are enough to run.
func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEVY_API_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hevy.APIKey != "from-env" {
		t.Errorf("hevy.api_key = %q, want from-env", cfg.Hevy.APIKey)
	}
	if cfg.Sync.FailurePolicy != "hold" {
		t.Errorf("sync.failure_policy = %q, want hold", cfg.Sync.FailurePolicy)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("sync.max_attempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if filepath.Base(cfg.Sync.StateDir) != "hevysync" {
		t.Errorf("sync.state_dir = %q, want .../hevysync", cfg.Sync.StateDir)
	}
}

// TestEnvOverride verifies that HEVYSYNC_ env vars take precedence over YAML values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEVY_API_KEY", "fallback")
	t.Setenv("HEVYSYNC_HEVY_API_KEY", "env-key")
	t.Setenv("HEVYSYNC_SERVER_PORT", "9999")
	t.Setenv("HEVYSYNC_SERVER_INTERVAL", "2h")
	t.Setenv("HEVYSYNC_SYNC_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hevy.APIKey != "env-key" {
		t.Errorf("hevy.api_key = %q, want %q", cfg.Hevy.APIKey, "env-key")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.Interval != 2*time.Hour {
		t.Errorf("server.interval = %s, want 2h", cfg.Server.Interval)
	}
	// Unparsable overrides are ignored.
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("sync.max_attempts = %d, want 3", cfg.Sync.MaxAttempts)
	}
}

// TestValidation verifies that bad settings produce an error instead of a
// half-configured sync.
func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing api key", "hevy: {}\n"},
		{"page size too large", "hevy: {api_key: k, page_size: 50}\n"},
		{"unknown policy", "hevy: {api_key: k}\nsync: {failure_policy: retry}\n"},
		{"zero attempts", "hevy: {api_key: k}\nsync: {max_attempts: 0}\n"},
		{"bad port", "hevy: {api_key: k}\nserver: {port: 70000}\n"},
		{"tiny interval", "hevy: {api_key: k}\nserver: {interval: 5s}\n"},
		{"bad log level", "hevy: {api_key: k}\nlog: {level: loud}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

// TestLoadMissingFile verifies that a missing config file returns a clear error.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestLoadEnvFile verifies .env values fill unset variables only and a
// missing file is ignored.
func TestLoadEnvFile(t *testing.T) {
	unsetEnv(t, "HEVY_API_KEY")
	unsetEnv(t, "HEVYSYNC_HEVY_API_KEY")
	unsetEnv(t, "HEVYSYNC_LOG_LEVEL")
	t.Setenv("HEVYSYNC_SERVER_HOST", "already-set")

	path := filepath.Join(t.TempDir(), ".env")
	content := "HEVYSYNC_HEVY_API_KEY=dotenv-key\nHEVYSYNC_SERVER_HOST=from-file\nHEVYSYNC_LOG_LEVEL=warn\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hevy.APIKey != "dotenv-key" {
		t.Errorf("hevy.api_key = %q, want dotenv-key", cfg.Hevy.APIKey)
	}
	if cfg.Server.Host != "already-set" {
		t.Errorf("server.host = %q, want already-set", cfg.Server.Host)
	}
	if cfg.Log.SlogLevel() != slog.LevelWarn {
		t.Errorf("log level = %s, want WARN", cfg.Log.SlogLevel())
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

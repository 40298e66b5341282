package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Hevy   HevyConfig   `yaml:"hevy"`
	Garmin GarminConfig `yaml:"garmin"`
	Sync   SyncConfig   `yaml:"sync"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type HevyConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

type GarminConfig struct {
	TokenFile string        `yaml:"token_file"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	StateDir       string        `yaml:"state_dir"`
	LookbackDays   int           `yaml:"lookback_days"`
	FailurePolicy  string        `yaml:"failure_policy"`
	MaxAttempts    int           `yaml:"max_attempts"`
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
	// OutputDir receives FIT files in dry-run mode.
	OutputDir string `yaml:"output_dir"`
}

type ServerConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
	APIKey   string        `yaml:"api_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Lookback returns the default sync window as a duration.
func (s SyncConfig) Lookback() time.Duration {
	return time.Duration(s.LookbackDays) * 24 * time.Hour
}

// Addr returns host:port for the status server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Hevy: HevyConfig{
			BaseURL:  "https://api.hevyapp.com",
			PageSize: 10,
			Timeout:  30 * time.Second,
		},
		Garmin: GarminConfig{
			TokenFile: "~/.garth/oauth2_token.json",
			BaseURL:   "https://connectapi.garmin.com",
			Timeout:   60 * time.Second,
		},
		Sync: SyncConfig{
			StateDir:       filepath.Join(xdg.StateHome, "hevysync"),
			LookbackDays:   30,
			FailurePolicy:  "hold",
			MaxAttempts:    5,
			LockStaleAfter: 2 * time.Hour,
			OutputDir:      "fit_files",
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8089,
			Interval: time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadEnvFile loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML file on top of Default, then applies
// environment variable overrides. An empty path skips the file.
// Env vars use the prefix HEVYSYNC_ and underscore-separated paths:
//
//	HEVYSYNC_HEVY_API_KEY, HEVYSYNC_HEVY_BASE_URL,
//	HEVYSYNC_GARMIN_TOKEN_FILE, HEVYSYNC_GARMIN_BASE_URL,
//	HEVYSYNC_SYNC_STATE_DIR, HEVYSYNC_SYNC_LOOKBACK_DAYS,
//	HEVYSYNC_SYNC_FAILURE_POLICY, HEVYSYNC_SYNC_MAX_ATTEMPTS,
//	HEVYSYNC_SYNC_OUTPUT_DIR,
//	HEVYSYNC_SERVER_HOST, HEVYSYNC_SERVER_PORT, HEVYSYNC_SERVER_INTERVAL,
//	HEVYSYNC_SERVER_API_KEY, HEVYSYNC_LOG_LEVEL
//
// HEVY_API_KEY is honored as a fallback for the Hevy key.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEVY_API_KEY"); v != "" {
		cfg.Hevy.APIKey = v
	}
	setString(&cfg.Hevy.APIKey, "HEVYSYNC_HEVY_API_KEY")
	setString(&cfg.Hevy.BaseURL, "HEVYSYNC_HEVY_BASE_URL")
	setString(&cfg.Garmin.TokenFile, "HEVYSYNC_GARMIN_TOKEN_FILE")
	setString(&cfg.Garmin.BaseURL, "HEVYSYNC_GARMIN_BASE_URL")
	setString(&cfg.Sync.StateDir, "HEVYSYNC_SYNC_STATE_DIR")
	setInt(&cfg.Sync.LookbackDays, "HEVYSYNC_SYNC_LOOKBACK_DAYS")
	setString(&cfg.Sync.FailurePolicy, "HEVYSYNC_SYNC_FAILURE_POLICY")
	setInt(&cfg.Sync.MaxAttempts, "HEVYSYNC_SYNC_MAX_ATTEMPTS")
	setString(&cfg.Sync.OutputDir, "HEVYSYNC_SYNC_OUTPUT_DIR")
	setString(&cfg.Server.Host, "HEVYSYNC_SERVER_HOST")
	setInt(&cfg.Server.Port, "HEVYSYNC_SERVER_PORT")
	setDuration(&cfg.Server.Interval, "HEVYSYNC_SERVER_INTERVAL")
	setString(&cfg.Server.APIKey, "HEVYSYNC_SERVER_API_KEY")
	setString(&cfg.Log.Level, "HEVYSYNC_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func (c *Config) validate() error {
	if c.Hevy.APIKey == "" {
		return fmt.Errorf("hevy.api_key is required")
	}
	if c.Hevy.PageSize < 1 || c.Hevy.PageSize > 10 {
		return fmt.Errorf("hevy.page_size must be between 1 and 10, got %d", c.Hevy.PageSize)
	}
	if c.Garmin.TokenFile == "" {
		return fmt.Errorf("garmin.token_file is required")
	}
	if c.Sync.StateDir == "" {
		return fmt.Errorf("sync.state_dir is required")
	}
	if c.Sync.LookbackDays < 1 {
		return fmt.Errorf("sync.lookback_days must be positive")
	}
	switch c.Sync.FailurePolicy {
	case "hold", "advance":
	default:
		return fmt.Errorf("sync.failure_policy must be hold or advance, got %q", c.Sync.FailurePolicy)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Interval < time.Minute {
		return fmt.Errorf("server.interval must be at least 1m, got %s", c.Server.Interval)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

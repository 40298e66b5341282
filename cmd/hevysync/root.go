package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/claude/hevysync/internal/config"
	"github.com/claude/hevysync/internal/cursor"
	"github.com/claude/hevysync/internal/fit"
	"github.com/claude/hevysync/internal/upload"
)

const (
	watermarkFile = "watermark"
	lockFile      = "sync.lock"
)

// app carries the persistent flags and the logger shared by all commands.
type app struct {
	configPath string
	envFile    string
	verbose    bool
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "hevysync",
		Short: "Sync Hevy strength workouts to Garmin Connect as FIT activities",
		Long: `hevysync fetches strength-training sessions from Hevy, encodes each one
as a FIT activity file and uploads it to Garmin Connect. A stored watermark
and a local delivery ledger make repeated runs upload every session once.

Quick Start:
  hevysync sync --dry-run           # encode new sessions into ./fit_files
  hevysync sync                     # upload new sessions
  hevysync serve                    # sync on an interval, with a status API
  hevysync inspect workout.fit      # decode a FIT file`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.log = newLogger(cmd, level)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.SetVersionTemplate(`{{printf "hevysync %s\n" .Version}}`)

	root.AddCommand(
		newSyncCmd(a),
		newServeCmd(a),
		newStatusCmd(a),
		newResetCmd(a),
		newEncodeCmd(a),
		newInspectCmd(a),
	)
	return root
}

func newLogger(cmd *cobra.Command, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the dotenv file and config, and raises the log level to
// the configured one unless --verbose was given.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if !a.verbose {
		a.log = newLogger(cmd, cfg.Log.SlogLevel())
	}
	return cfg, nil
}

// stateFS is the billy filesystem rooted at the state directory. It holds the
// watermark and the run lock; the ledger lives next to them.
func stateFS(cfg *config.Config) billy.Filesystem {
	return osfs.New(cfg.Sync.StateDir)
}

func (a *app) openCursor(cfg *config.Config, fs billy.Filesystem) *cursor.Store {
	return cursor.New(fs, watermarkFile, a.log, cursor.WithLookback(cfg.Sync.Lookback()))
}

// sessionRunner builds the Uploader for one pass and runs it under the run
// lock. Dry-run passes skip the lock since they write no state.
type sessionRunner struct {
	cfg    *config.Config
	fs     billy.Filesystem
	cursor *cursor.Store
	state  *upload.StateDB
	dryRun bool
	log    *slog.Logger
}

// Run executes one pass. It satisfies server.PassFunc.
func (r *sessionRunner) Run(ctx context.Context) (*upload.Stats, error) {
	if !r.dryRun {
		lock, err := upload.AcquireLock(r.fs, lockFile, r.cfg.Sync.LockStaleAfter, time.Now)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				r.log.Warn("releasing lock", "error", err)
			}
		}()
	}

	dir := r.cfg.Sync.OutputDir
	if !r.dryRun {
		tmp, err := os.MkdirTemp("", "hevysync-")
		if err != nil {
			return nil, fmt.Errorf("creating artifact dir: %w", err)
		}
		defer os.RemoveAll(tmp) //nolint:errcheck
		dir = tmp
	}

	u, err := r.uploader(osfs.New(dir))
	if err != nil {
		return nil, err
	}
	return u.Run(ctx)
}

func (r *sessionRunner) uploader(artifacts billy.Filesystem) (*upload.Uploader, error) {
	policy, err := upload.ParseFailurePolicy(r.cfg.Sync.FailurePolicy)
	if err != nil {
		return nil, err
	}
	hevy := upload.NewHevyClient(r.cfg.Hevy.BaseURL, r.cfg.Hevy.APIKey, r.cfg.Hevy.PageSize, r.cfg.Hevy.Timeout, r.log)

	var dest upload.Destination
	if !r.dryRun {
		dest = upload.NewClient(r.cfg.Garmin.BaseURL, r.cfg.Garmin.TokenFile, r.cfg.Garmin.Timeout, r.log)
	}
	return upload.New(hevy, dest, fit.NewEncoder(), r.cursor, r.state, artifacts, upload.Options{
		DryRun:        r.dryRun,
		FailurePolicy: policy,
		MaxAttempts:   r.cfg.Sync.MaxAttempts,
	}, r.log), nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/claude/hevysync/internal/upload"
)

func newSyncCmd(a *app) *cobra.Command {
	var (
		dryRun    bool
		policy    string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		Long: `Fetch sessions newer than the stored watermark, encode each one as a FIT
file and upload it to Garmin Connect, then advance the watermark.

With --dry-run the FIT files are written to the output directory and
nothing is uploaded or recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.Sync.FailurePolicy = policy
			}
			if outputDir != "" {
				cfg.Sync.OutputDir = outputDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fs := stateFS(cfg)
			r := &sessionRunner{
				cfg:    cfg,
				fs:     fs,
				cursor: a.openCursor(cfg, fs),
				dryRun: dryRun,
				log:    a.log,
			}
			if !dryRun {
				state, err := upload.OpenStateDB(cfg.Sync.StateDir)
				if err != nil {
					return err
				}
				defer state.Close()
				r.state = state
			}

			stats, err := r.Run(ctx)
			if stats != nil {
				printStats(cmd.OutOrStdout(), stats, dryRun)
			}
			if errors.Is(err, upload.ErrLocked) {
				return fmt.Errorf("%w (lock file %s)", err, filepath.Join(cfg.Sync.StateDir, lockFile))
			}
			if err != nil {
				return err
			}
			if n := stats.Failed(); n > 0 {
				return fmt.Errorf("%d session(s) failed", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "encode to the output directory without uploading")
	cmd.Flags().StringVar(&policy, "policy", "", "failure policy for this pass: hold or advance")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for --dry-run")
	return cmd
}

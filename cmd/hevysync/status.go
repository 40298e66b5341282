package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claude/hevysync/internal/upload"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the watermark, last pass and failing sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			state, err := upload.OpenStateDB(cfg.Sync.StateDir)
			if err != nil {
				return err
			}
			defer state.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("=== hevysync status ==="))

			cur := a.openCursor(cfg, stateFS(cfg))
			w, ok, err := cur.Peek()
			switch {
			case err != nil:
				fmt.Fprintln(out, row("Watermark:", errStyle.Render("unreadable: "+err.Error())))
			case !ok:
				fmt.Fprintln(out, row("Watermark:", fmt.Sprintf("none (next pass looks back %d days)", cfg.Sync.LookbackDays)))
			default:
				fmt.Fprintln(out, row("Watermark:", w.Format(time.RFC3339)))
			}

			p, err := state.LastPass(ctx)
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Fprintln(out, row("Last pass:", "never"))
			} else {
				fmt.Fprintln(out, row("Last pass:", p.FinishedAt.Local().Format(time.RFC3339)))
				fmt.Fprintln(out, row("  uploaded:", count(p.Uploaded, false)))
				fmt.Fprintln(out, row("  failed:", count(p.Failed, true)))
				if p.Error != "" {
					fmt.Fprintln(out, row("  error:", errStyle.Render(p.Error)))
				}
			}

			pending, err := state.Pending(ctx)
			if err != nil {
				return err
			}
			abandoned, err := state.Abandoned(ctx)
			if err != nil {
				return err
			}
			printDeliveries(cmd, "Retrying", pending)
			printDeliveries(cmd, "Abandoned", abandoned)
			return nil
		},
	}
}

func printDeliveries(cmd *cobra.Command, title string, ds []upload.Delivery) {
	if len(ds) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n  %s:\n", title)
	for _, d := range ds {
		fmt.Fprintf(out, "    - %s %q (attempts %d): %s\n",
			d.Start.Format(time.RFC3339), d.Title, d.Attempts, errStyle.Render(d.LastError))
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the watermark so the next pass uses the lookback window",
		Long: `Remove the stored watermark. The next pass fetches the last lookback_days
of sessions again; the delivery ledger keeps already uploaded sessions from
being sent twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			cur := a.openCursor(cfg, stateFS(cfg))
			if err := cur.Reset(); err != nil {
				return err
			}
			a.log.Info("watermark removed", "state_dir", cfg.Sync.StateDir)
			return nil
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	hevymcp "github.com/claude/hevysync/internal/mcp"
	"github.com/claude/hevysync/internal/server"
	"github.com/claude/hevysync/internal/upload"
)

func newServeCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync on an interval and serve a status API",
		Long: `Run a sync pass at startup and then every interval. A small HTTP server
reports the watermark, the last pass and failing sessions, and accepts
manual triggers:

  GET  /healthz
  GET  /api/v1/status
  POST /api/v1/sync      (X-API-Key when server.api_key is set)
  /mcp                   MCP tools over streamable HTTP (same key)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Server.Interval = interval
			}
			log := a.log

			state, err := upload.OpenStateDB(cfg.Sync.StateDir)
			if err != nil {
				return err
			}
			defer state.Close()

			fs := stateFS(cfg)
			cur := a.openCursor(cfg, fs)
			runner := &sessionRunner{cfg: cfg, fs: fs, cursor: cur, state: state, log: log}
			sched := server.NewScheduler(runner.Run, cfg.Server.Interval, log)
			srv := server.New(state, cur, sched, cfg.Server.APIKey, log)
			srv.Mount("/mcp", hevymcp.NewHTTPHandler(hevymcp.New(state, cur, sched, Version, log)))

			listener, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
			}
			log.Info("server starting", "addr", listener.Addr().String(), "interval", cfg.Server.Interval)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			serveErr := make(chan error, 1)
			go func() {
				if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			schedDone := make(chan struct{})
			go func() {
				sched.Start(ctx)
				close(schedDone)
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err = <-serveErr:
				log.Error("server error", "error", err)
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
				log.Error("shutdown error", "error", serr)
			}
			<-schedDone
			log.Info("server stopped")
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "override server.interval")
	return cmd
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/tickloop/internal/server"
	"github.com/me/tickloop/internal/sim"
)

func newServeCmd() *cobra.Command {
	var flags configFlags
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler behind the HTTP API",
		Long: `Starts the tick loop with the configured entities and serves the REST API
until interrupted. Runs and periodic samples are journalled to SQLite.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			dbPath := cfg.DBPath
			if dbPath == "" {
				if dbPath, err = defaultDBPath(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stk, err := newStack(ctx, cfg, dbPath, logger)
			if err != nil {
				return err
			}
			defer stk.Close()

			srv := server.New(stk.host, logger, server.WithStore(stk.store), server.WithMonitor(stk.monitor))
			httpServer := &http.Server{
				Addr:    cfg.Addr,
				Handler: srv.Handler(),
			}

			go stk.monitor.Start(ctx)
			// The loop outlives the signal context; shutdown ends it through
			// haltLoop.
			runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
			defer cancelRun()
			runErr := make(chan error, 1)
			go func() { runErr <- stk.host.Run(runCtx) }()

			srvErr := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.Addr, "rate", cfg.Rate)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srvErr <- err
				}
			}()

			var failure error
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-srvErr:
				failure = fmt.Errorf("server failed: %w", err)
			}

			// Stop the loop before the HTTP server.
			haltLoop(stk.host, cancelRun)
			if err := <-runErr; err != nil {
				logger.Error("tick loop ended with error", "error", err)
			}
			stk.monitor.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return failure
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// haltLoop stops h's loop. A loop that has not started yet cannot be
// stopped, so its context is cancelled instead and Run returns as soon as
// it gets there.
func haltLoop(h *sim.Host, cancel context.CancelFunc) {
	if err := h.Stop(); err != nil {
		cancel()
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopy-project/canopy/internal/canopylog"
	"github.com/canopy-project/canopy/internal/logging"
	"github.com/canopy-project/canopy/internal/service"
	"github.com/canopy-project/canopy/internal/shard"
)

// newServeCmd builds the "serve" subcommand: the only long-running
// operation canopyd exposes. A broader CLI front end (search, expand,
// index from the command line) is out of scope; callers drive the daemon
// over its HTTP API, typically through the client runtime.
func newServeCmd() *cobra.Command {
	var addr string
	var debug bool
	var repos []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Canopy index service",
		Long: `serve starts canopyd's HTTP API: repo registration, reindexing,
query, and expand, fronting one shard.Manager per process.

Pass --repo <path> (repeatable) to register repositories at startup;
clients can also register repositories on demand via POST /repos/add.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, addr, debug, repos)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7777", "address to listen on")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging to ~/.canopy/logs/")
	cmd.Flags().StringArrayVar(&repos, "repo", nil, "repository path to register at startup (repeatable)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, addr string, debug bool, repos []string) error {
	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	mgr, err := shard.NewManager(shard.ManagerConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("create shard manager: %w", err)
	}
	defer mgr.Close()

	for _, path := range repos {
		if _, err := mgr.Register(path, ""); err != nil {
			canopylog.Error(cmd.ErrOrStderr(), fmt.Sprintf("register %s: %v", path, err))
			return fmt.Errorf("register %s: %w", path, err)
		}
	}

	srv := service.NewServer(mgr, logger)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	root, _ := os.Getwd()
	canopylog.Banner(cmd.OutOrStdout(), addr, root)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		canopylog.Status(cmd.OutOrStdout(), "shutdown", "signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

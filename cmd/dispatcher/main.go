// Command dispatcher runs the primary dispatcher (spec.md §4.1, §6.1):
// `dispatcher <N> <M>`. Grounded on
// arkeep/server/cmd/server/main.go's cobra root command, envOrDefault
// flags, and signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/cliutil"
	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/console"
	"github.com/dvargas135/my-uber/internal/dispatcher"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/store"
)

// fleetRefresh is how often the dispatcher prints the console fleet table.
const fleetRefresh = 10 * time.Second

type cliConfig struct {
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		console.ReportError("dispatcher", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "dispatcher <N> <M>",
		Short: "Primary dispatcher for the taxi-dispatch control plane",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid N: %w", err)
			}
			m, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid M: %w", err)
			}
			return run(cmd.Context(), cfg, n, m)
		},
	}

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *cliConfig, n, m int) error {
	logger, err := cliutil.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	bounds, err := grid.ValidateBounds(n, m)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	timeouts := config.DefaultTimeouts()
	if err := timeouts.Validate(); err != nil {
		return err
	}

	dbCfg := config.StoreConfig()
	gormDB, err := store.Open(store.Config{Driver: dbCfg.Driver, DSN: dbCfg.DSN, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	st := store.NewGormStore(gormDB)

	endpoint := config.Primary()
	srv, err := dispatcher.New(endpoint, bounds, timeouts, st, logger)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	if err := srv.Activate(); err != nil {
		return fmt.Errorf("failed to activate dispatcher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- dispatcher.RunLivenessResponder(ctx, endpoint.Ports.HeartbeatSrv, logger)
	}()

	go runFleetConsole(ctx, st, logger)

	logger.Info("dispatcher running", zap.Int("n", n), zap.Int("m", m))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("liveness responder stopped", zap.Error(err))
		}
	}

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown error", zap.Error(err))
	}
	logger.Info("dispatcher stopped")
	return nil
}

// runFleetConsole prints a fleet snapshot table on a fixed interval until ctx
// is cancelled, the console collaborator spec.md §1 names without a body.
func runFleetConsole(ctx context.Context, st store.Store, logger *zap.Logger) {
	ticker := time.NewTicker(fleetRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		taxis, err := st.ListAllTaxis()
		if err != nil {
			logger.Warn("failed to list taxis for fleet console", zap.Error(err))
			continue
		}
		if err := console.RenderFleet(taxis); err != nil {
			logger.Warn("failed to render fleet table", zap.Error(err))
		}
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

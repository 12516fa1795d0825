// Command backup-dispatcher runs the shadow dispatcher (spec.md §4.3):
// same CLI signature as the primary, but it starts passive and only binds
// its public ports on activate_backup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/cliutil"
	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/dispatcher"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/store"
)

type cliConfig struct {
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "backup-dispatcher <N> <M>",
		Short: "Backup dispatcher for the taxi-dispatch control plane",
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

	endpoint := config.Backup()
	srv, err := dispatcher.New(endpoint, bounds, timeouts, st, logger)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.RunActivationListener(ctx, endpoint.Ports.BackupActivation, srv, logger); err != nil {
			logger.Error("activation listener stopped", zap.Error(err))
		}
	}()

	logger.Info("backup dispatcher running in passive mode", zap.Int("n", n), zap.Int("m", m))

	<-ctx.Done()
	wg.Wait()

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown error", zap.Error(err))
	}
	logger.Info("backup dispatcher stopped")
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

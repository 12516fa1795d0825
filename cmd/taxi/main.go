// Command taxi runs one taxi agent (spec.md §4.2, §6.1):
// `taxi <taxi_id> <N> <M> <pos_x> <pos_y> <speed>`.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/cliutil"
	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/console"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/taxiagent"
)

type cliConfig struct {
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		console.ReportError("taxi", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "taxi <taxi_id> <N> <M> <pos_x> <pos_y> <speed>",
		Short: "Taxi agent client for the taxi-dispatch control plane",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			ints := make([]int, 6)
			for i, a := range args {
				v, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				ints[i] = v
			}
			taxiID, n, m, x, y, speed := ints[0], ints[1], ints[2], ints[3], ints[4], ints[5]
			return run(cmd.Context(), cfg, taxiID, n, m, x, y, speed)
		},
	}

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *cliConfig, taxiID, n, m, x, y, speed int) error {
	logger, err := cliutil.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	bounds, err := grid.ValidateBounds(n, m)
	if err != nil {
		return err
	}
	if !grid.ValidSpeed(speed) {
		return fmt.Errorf("taxi: invalid speed %d, must be one of %v", speed, grid.ValidSpeeds)
	}
	if !bounds.Contains(x, y) {
		return fmt.Errorf("taxi: starting position (%d,%d) out of bounds for grid %dx%d", x, y, n, m)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	timeouts := config.DefaultTimeouts()
	primary := config.Primary()
	backup := config.Backup()

	agent := taxiagent.New(taxiID, x, y, speed, bounds, primary, backup, timeouts, logger)

	logger.Info("taxi agent starting", zap.Int("taxi_id", taxiID), zap.Int("x", x), zap.Int("y", y), zap.Int("speed", speed))
	if err := agent.Run(ctx); err != nil {
		return err
	}
	logger.Info("taxi agent stopped", zap.Int("taxi_id", taxiID))
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

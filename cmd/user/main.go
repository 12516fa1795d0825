// Command user runs the user roster (spec.md §4.4, §6.1):
// `user <users_file>`.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/cliutil"
	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/console"
	"github.com/dvargas135/my-uber/internal/useragent"
)

type cliConfig struct {
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		console.ReportError("user", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "user <users_file>",
		Short: "Runs one synchronous ride request per roster entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args[0])
		},
	}

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *cliConfig, usersFile string) error {
	logger, err := cliutil.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	roster, err := useragent.LoadRoster(usersFile)
	if err != nil {
		return err
	}
	logger.Info("loaded user roster", zap.Int("count", len(roster)))

	primary := config.Primary()
	backup := config.Backup()
	timeouts := config.DefaultTimeouts()
	replyTimeout := time.Duration(timeouts.UserReply) * time.Second

	outcomes := useragent.Run(ctx, roster, primary, backup, replyTimeout, logger)

	for _, o := range outcomes {
		switch o.Result {
		case "assign_taxi":
			console.ReportAssignment(o.UserID, o.TaxiID, true)
		default:
			console.ReportAssignment(o.UserID, 0, false)
		}
	}

	logger.Info("all user requests processed")
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

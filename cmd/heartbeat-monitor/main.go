// Command heartbeat-monitor runs the standalone failover monitor (spec.md
// §4.3, §6.1): no positional args, reads config for primary/backup
// addresses.
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
	"github.com/dvargas135/my-uber/internal/monitor"
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
		Use:   "heartbeat-monitor",
		Short: "Probes the primary dispatcher and drives backup activation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *cliConfig) error {
	logger, err := cliutil.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	primary := config.Primary()
	backup := config.Backup()
	timeouts := config.DefaultTimeouts()

	m := monitor.New(monitor.Config{
		PrimaryHost:          primary.Host,
		PrimaryLivenessPort:  primary.Ports.HeartbeatSrv,
		BackupHost:           backup.Host,
		BackupActivationPort: backup.Ports.BackupActivation,
		ProbeInterval:        time.Duration(timeouts.HeartbeatPeriod) * time.Second,
		ProbeTimeout:         time.Duration(timeouts.ProbeReply) * time.Second,
	}, logger)

	logger.Info("heartbeat monitor starting",
		zap.String("primary", primary.Host),
		zap.String("backup", backup.Host),
	)

	if err := m.Run(ctx); err != nil {
		return err
	}
	logger.Info("heartbeat monitor stopped")
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

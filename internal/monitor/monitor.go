// Package monitor implements the standalone Heartbeat Monitor of spec.md
// §4.3: an independent process that probes the primary dispatcher's
// liveness endpoint and drives the backup's activation channel. Grounded
// on original_source/src/services/heartbeat_service.py's probe loop,
// restructured per spec.md §9 ("Signal-via-side-effect across services")
// into an explicit two-message protocol with tracked local mode state,
// rather than an implicit "discover I'm needed" signal.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
)

// Config configures a Monitor instance.
type Config struct {
	PrimaryHost          string
	PrimaryLivenessPort  int
	BackupHost           string
	BackupActivationPort int
	ProbeInterval        time.Duration
	ProbeTimeout         time.Duration
}

// Monitor probes the primary every ProbeInterval and emits activate_backup
// / deactivate_backup to the backup on state transitions (spec.md §4.3,
// "State (monitor-local): main_active").
type Monitor struct {
	cfg Config
	log *zap.Logger

	mainActive bool
}

// New constructs a Monitor. main_active starts true (spec.md §4.3: "initially
// true").
func New(cfg Config, log *zap.Logger) *Monitor {
	return &Monitor{cfg: cfg, log: log.Named("monitor"), mainActive: true}
}

// Run probes the primary on a fixed interval until ctx is cancelled,
// pushing activate_backup/deactivate_backup to the backup exactly on the
// transitions spec.md §4.3 describes (P5: one activate followed by one
// deactivate, in order, per failure/recovery pair).
func (m *Monitor) Run(ctx context.Context) error {
	push, err := messaging.DialPush(m.cfg.BackupHost, m.cfg.BackupActivationPort)
	if err != nil {
		return err
	}
	defer push.Close()

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.probeOnce(push)
		}
	}
}

func (m *Monitor) probeOnce(push *messaging.Push) {
	ok := m.probePrimary()

	switch {
	case ok && !m.mainActive:
		if err := push.Send(protocol.DeactivateBackup); err != nil {
			m.log.Warn("failed to send deactivate_backup", zap.Error(err))
			return
		}
		m.mainActive = true
		m.log.Info("primary recovered, deactivated backup")
	case !ok && m.mainActive:
		if err := push.Send(protocol.ActivateBackup); err != nil {
			m.log.Warn("failed to send activate_backup", zap.Error(err))
			return
		}
		m.mainActive = false
		m.log.Warn("primary unreachable, activated backup")
	}
}

// probePrimary dials a fresh REQ socket per probe, mirroring
// heartbeat_service.py's request/reply cycle, and reports success only if
// heartbeat_ack arrives within ProbeTimeout.
func (m *Monitor) probePrimary() bool {
	req, err := messaging.DialReq(m.cfg.PrimaryHost, m.cfg.PrimaryLivenessPort)
	if err != nil {
		m.log.Debug("probe dial failed", zap.Error(err))
		return false
	}
	defer req.Close()

	reply, err := req.Request(protocol.HeartbeatSrv, m.cfg.ProbeTimeout)
	if err != nil {
		m.log.Debug("probe request failed", zap.Error(err))
		return false
	}
	return reply == protocol.HeartbeatAck
}

package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
)

// RunLivenessResponder answers the monitor's heartbeat_srv probe on port
// with heartbeat_ack until ctx is cancelled (spec.md §4.3, §6.2: "primary
// liveness probe"). Only the primary binds this; the backup's equivalent
// socket is the activation listener below.
func RunLivenessResponder(ctx context.Context, port int, log *zap.Logger) error {
	rep, err := messaging.BindRep(port)
	if err != nil {
		return err
	}
	defer rep.Close()

	log = log.Named("liveness-responder")
	log.Info("listening for liveness probes", zap.Int("port", port))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok, err := rep.Recv()
		if err != nil {
			log.Warn("probe recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if frame != protocol.HeartbeatSrv {
			log.Warn("unexpected frame on liveness channel", zap.String("frame", frame))
			if err := rep.Send(protocol.InvalidRequest); err != nil {
				log.Warn("probe reply error", zap.Error(err))
			}
			continue
		}
		if err := rep.Send(protocol.HeartbeatAck); err != nil {
			log.Warn("probe ack send error", zap.Error(err))
		}
	}
}

// RunActivationListener polls the activation channel (§6.2, "backup
// activation") and drives srv.Activate/Deactivate accordingly (§4.3). It is
// the one socket the backup polls while passive, alongside whatever the
// primary-liveness channel equivalent would be (the backup has none — only
// the monitor talks to the primary's liveness endpoint).
func RunActivationListener(ctx context.Context, port int, srv *Server, log *zap.Logger) error {
	pull, err := messaging.BindPull(port)
	if err != nil {
		return err
	}
	defer pull.Close()

	log = log.Named("activation-listener")
	log.Info("listening for activation signals", zap.Int("port", port))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok, err := pull.Recv()
		if err != nil {
			log.Warn("activation recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		switch frame {
		case protocol.ActivateBackup:
			log.Info("received activate_backup")
			if err := srv.Activate(); err != nil {
				log.Error("failed to activate", zap.Error(err))
			}
		case protocol.DeactivateBackup:
			log.Info("received deactivate_backup")
			if err := srv.Deactivate(); err != nil {
				log.Error("failed to deactivate", zap.Error(err))
			}
		default:
			log.Warn("unrecognized activation frame", zap.String("frame", frame))
		}
	}
}

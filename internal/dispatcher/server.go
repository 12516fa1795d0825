// Package dispatcher implements the dispatch control plane of spec.md §4.1:
// taxi registration, position/heartbeat ingestion, the matching engine, and
// the passive/active mode switch the backup instance uses (§4.3). Grounded
// on arkeep/server/internal/grpc.Server's bind/serve/graceful-shutdown
// lifecycle and arkeep/server/internal/agentmanager.Manager's liveness
// bookkeeping, adapted from gRPC streams to the ZeroMQ wire messages §6.2
// mandates.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
	"github.com/dvargas135/my-uber/internal/store"
)

// Server is one dispatcher instance (primary or backup). A backup instance
// is constructed the same way but started in passive mode; Activate/
// Deactivate toggle it per spec.md §4.3.
type Server struct {
	endpoint config.Endpoint
	bounds   grid.Bounds
	timeouts config.Timeouts
	st       store.Store
	log      *zap.Logger

	live    *liveness
	match   *matcher
	cron    gocron.Scheduler
	sweepMu sync.Mutex

	mu      sync.Mutex
	active  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	rep     *messaging.Rep
	userRep *messaging.Rep
	pull    *messaging.Pull
	hbPull  *messaging.Pull
	pub     *messaging.Pub
}

// New builds a Server bound to endpoint's ports, against bounds/timeouts
// and the given Store. The server starts in passive (not-yet-Activate'd)
// state; callers that want an always-active primary should call Activate
// immediately after New.
func New(endpoint config.Endpoint, bounds grid.Bounds, timeouts config.Timeouts, st store.Store, log *zap.Logger) (*Server, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: failed to create scheduler: %w", err)
	}

	return &Server{
		endpoint: endpoint,
		bounds:   bounds,
		timeouts: timeouts,
		st:       st,
		log:      log.Named("dispatcher"),
		live:     newLiveness(),
		match:    newMatcher(st, log),
		cron:     cron,
	}, nil
}

// Active reports whether the server is currently running its handler loops.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate binds the public ports and starts every handler loop from
// spec.md §4.1 (spec.md §4.3: "start handlers, bind public ports; load the
// in-memory taxi set from the Store").
func (s *Server) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	if err := s.bindSockets(); err != nil {
		return err
	}
	if err := s.seedLivenessFromStore(); err != nil {
		s.closeSockets()
		return err
	}

	s.stopCh = make(chan struct{})
	s.active = true

	s.cron.Start()
	if err := s.scheduleSweep(); err != nil {
		s.log.Error("failed to schedule heartbeat sweep", zap.Error(err))
	}

	s.wg.Add(4)
	go s.runRegistrationLoop()
	go s.runPositionLoop()
	go s.runHeartbeatLoop()
	go s.runUserRequestLoop()

	s.log.Info("dispatcher activated",
		zap.String("host", s.endpoint.Host),
		zap.Int("rep_port", s.endpoint.Ports.Rep),
	)
	return nil
}

// Deactivate stops every handler loop, joins them, releases bound ports,
// and returns to passive mode (spec.md §4.3: "signal handlers to stop,
// join them, release bound ports, return to passive").
func (s *Server) Deactivate() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.cron.StopJobs(); err != nil {
		s.log.Warn("failed to stop scheduled jobs", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSockets()
	s.live.Reset()
	s.active = false
	s.log.Info("dispatcher deactivated")
	return nil
}

// Shutdown performs a full teardown for process exit (spec.md §5,
// "Cancellation"): stops handlers if active and shuts the scheduler down
// entirely (unlike Deactivate, which keeps the scheduler alive for a later
// re-Activate).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Active() {
		if err := s.Deactivate(); err != nil {
			return err
		}
	}
	done := make(chan error, 1)
	go func() { done <- s.cron.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) bindSockets() error {
	var err error
	if s.rep, err = messaging.BindRep(s.endpoint.Ports.Rep); err != nil {
		return err
	}
	if s.userRep, err = messaging.BindRep(s.endpoint.Ports.UserReq); err != nil {
		s.rep.Close()
		return err
	}
	if s.pull, err = messaging.BindPull(s.endpoint.Ports.Pull); err != nil {
		s.rep.Close()
		s.userRep.Close()
		return err
	}
	if s.hbPull, err = messaging.BindPull(s.endpoint.Ports.Heartbeat); err != nil {
		s.rep.Close()
		s.userRep.Close()
		s.pull.Close()
		return err
	}
	if s.pub, err = messaging.BindPub(s.endpoint.Ports.Pub); err != nil {
		s.rep.Close()
		s.userRep.Close()
		s.pull.Close()
		s.hbPull.Close()
		return err
	}
	return nil
}

func (s *Server) closeSockets() {
	if s.rep != nil {
		s.rep.Close()
	}
	if s.userRep != nil {
		s.userRep.Close()
	}
	if s.pull != nil {
		s.pull.Close()
	}
	if s.hbPull != nil {
		s.hbPull.Close()
	}
	if s.pub != nil {
		s.pub.Close()
	}
}

// seedLivenessFromStore rebuilds the in-memory liveness view from the
// heartbeat table, needed because the backup may never have seen taxis the
// primary already onboarded (spec.md §4.3).
func (s *Server) seedLivenessFromStore() error {
	records, err := s.st.ListHeartbeats()
	if err != nil {
		return fmt.Errorf("dispatcher: seed liveness: %w", err)
	}
	seen := make(map[int]time.Time, len(records))
	for _, r := range records {
		seen[r.TaxiID] = r.Timestamp
	}
	s.live.Seed(seen)
	return nil
}

func (s *Server) scheduleSweep() error {
	period := time.Duration(s.timeouts.HeartbeatPeriod) * time.Second
	_, err := s.cron.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(s.sweepOnce),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// sweepOnce evicts every taxi whose heartbeat is older than the configured
// timeout (spec.md §4.1.2).
func (s *Server) sweepOnce() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	threshold := time.Duration(s.timeouts.HeartbeatTimeout) * time.Second
	stale := s.live.Sweep(time.Now(), threshold)
	for _, taxiID := range stale {
		s.live.Evict(taxiID)
		if err := s.st.SetTaxiConnected(taxiID, false); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("failed to mark taxi disconnected", zap.Int("taxi_id", taxiID), zap.Error(err))
			continue
		}
		s.log.Info("taxi marked disconnected by heartbeat sweep", zap.Int("taxi_id", taxiID))
	}
}

// scheduleServiceTimer is invoked after a successful match to return the
// taxi to the pool once the simulated ride completes (spec.md §4.1.1 step
// 6).
func (s *Server) scheduleServiceTimer(assignmentID uint, taxiID int, initialX, initialY int) {
	duration := time.Duration(s.timeouts.ServiceDuration) * time.Second
	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(duration))),
		gocron.NewTask(func() {
			if err := s.st.ReleaseTaxi(taxiID, initialX, initialY); err != nil {
				s.log.Warn("failed to release taxi after service", zap.Int("taxi_id", taxiID), zap.Error(err))
				return
			}
			if err := s.st.RecordHeartbeat(taxiID, time.Now()); err != nil {
				s.log.Warn("failed to refresh heartbeat on release", zap.Int("taxi_id", taxiID), zap.Error(err))
			}
			s.live.Touch(taxiID, time.Now())
			if err := s.st.CompleteAssignment(assignmentID); err != nil {
				s.log.Warn("failed to complete assignment", zap.Uint("assignment_id", assignmentID), zap.Error(err))
			}
			s.log.Info("taxi released after service", zap.Int("taxi_id", taxiID))
		}),
	)
	if err != nil {
		s.log.Error("failed to schedule service timer", zap.Int("taxi_id", taxiID), zap.Error(err))
	}
}

// runRegistrationLoop serves connect_request/connect_ack (spec.md §4.1
// first row).
func (s *Server) runRegistrationLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, ok, err := s.rep.Recv()
		if err != nil {
			s.log.Warn("registration recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		reply := s.handleConnectRequest(frame)
		if err := s.rep.Send(reply); err != nil {
			s.log.Warn("registration send error", zap.Error(err))
		}
	}
}

func (s *Server) handleConnectRequest(frame string) string {
	req, err := protocol.ParseConnectRequest(frame)
	if err != nil {
		s.log.Warn("malformed connect_request", zap.String("frame", frame), zap.Error(err))
		return protocol.InvalidRequest
	}
	if !s.bounds.Contains(req.X, req.Y) || !grid.ValidSpeed(req.Speed) {
		s.log.Warn("connect_request out of bounds or bad speed", zap.Int("taxi_id", req.TaxiID))
		return protocol.InvalidRequest
	}

	if _, err := s.st.UpsertTaxi(req.TaxiID, req.X, req.Y, req.Speed); err != nil {
		s.log.Error("upsert taxi failed", zap.Int("taxi_id", req.TaxiID), zap.Error(err))
		return protocol.InvalidRequest
	}
	now := time.Now()
	if err := s.st.RecordHeartbeat(req.TaxiID, now); err != nil {
		s.log.Warn("record heartbeat on connect failed", zap.Int("taxi_id", req.TaxiID), zap.Error(err))
	}
	s.live.Touch(req.TaxiID, now)

	s.log.Info("taxi connected", zap.Int("taxi_id", req.TaxiID), zap.Int("x", req.X), zap.Int("y", req.Y))
	return protocol.ConnectAck{TaxiID: req.TaxiID}.Encode()
}

// runPositionLoop drains fire-and-forget position updates (spec.md §4.1
// second row).
func (s *Server) runPositionLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, ok, err := s.pull.Recv()
		if err != nil {
			s.log.Warn("position recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		s.handlePositionUpdate(frame)
	}
}

func (s *Server) handlePositionUpdate(frame string) {
	update, err := protocol.ParsePositionUpdate(frame)
	if err != nil {
		s.log.Warn("malformed position update, dropping", zap.String("frame", frame), zap.Error(err))
		return
	}

	taxi, err := s.st.GetTaxi(update.TaxiID)
	if err != nil {
		s.log.Warn("position update for unknown taxi, dropping", zap.Int("taxi_id", update.TaxiID))
		return
	}
	// Open Question 1: position updates require connected=true, else drop.
	if !taxi.Connected {
		s.log.Warn("position update for disconnected taxi, dropping", zap.Int("taxi_id", update.TaxiID))
		return
	}
	if !s.bounds.Contains(update.X, update.Y) {
		s.log.Warn("position update out of bounds, dropping", zap.Int("taxi_id", update.TaxiID))
		return
	}

	if err := s.st.SetTaxiPosition(update.TaxiID, update.X, update.Y); err != nil {
		s.log.Warn("failed to persist position update", zap.Int("taxi_id", update.TaxiID), zap.Error(err))
		return
	}
	now := time.Now()
	if err := s.st.RecordHeartbeat(update.TaxiID, now); err != nil {
		s.log.Warn("failed to stamp heartbeat on position update", zap.Int("taxi_id", update.TaxiID), zap.Error(err))
	}
	s.live.Touch(update.TaxiID, now)

	// Open Question 3: a taxi reporting stopped is permanently retired to
	// unavailable and must never be claimed or released back to available.
	if update.Status == protocol.TaxiStatusStopped {
		if err := s.st.MarkTaxiStopped(update.TaxiID); err != nil {
			s.log.Warn("failed to mark taxi stopped", zap.Int("taxi_id", update.TaxiID), zap.Error(err))
			return
		}
		s.log.Info("taxi stopped at border, retired to unavailable", zap.Int("taxi_id", update.TaxiID))
	}
}

// runHeartbeatLoop drains fire-and-forget heartbeats (spec.md §4.1 third
// row).
func (s *Server) runHeartbeatLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, ok, err := s.hbPull.Recv()
		if err != nil {
			s.log.Warn("heartbeat recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		s.handleHeartbeat(frame)
	}
}

func (s *Server) handleHeartbeat(frame string) {
	hb, err := protocol.ParseHeartbeat(frame)
	if err != nil {
		s.log.Warn("malformed heartbeat, dropping", zap.String("frame", frame), zap.Error(err))
		return
	}

	if _, err := s.st.GetTaxi(hb.TaxiID); err != nil {
		s.log.Warn("heartbeat for unknown taxi, dropping", zap.Int("taxi_id", hb.TaxiID))
		return
	}

	now := time.Now()
	if err := s.st.RecordHeartbeat(hb.TaxiID, now); err != nil {
		s.log.Warn("failed to record heartbeat", zap.Int("taxi_id", hb.TaxiID), zap.Error(err))
		return
	}
	if err := s.st.SetTaxiConnected(hb.TaxiID, true); err != nil {
		s.log.Warn("failed to mark taxi connected", zap.Int("taxi_id", hb.TaxiID), zap.Error(err))
	}
	s.live.Touch(hb.TaxiID, now)
}

// runUserRequestLoop serves user_request/assign_taxi (spec.md §4.1 fourth
// row, §4.1.1).
func (s *Server) runUserRequestLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, ok, err := s.userRep.Recv()
		if err != nil {
			s.log.Warn("user request recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		reply := s.handleUserRequest(frame)
		if err := s.userRep.Send(reply); err != nil {
			s.log.Warn("user request send error", zap.Error(err))
		}
	}
}

func (s *Server) handleUserRequest(frame string) string {
	// corrID ties the log lines of one ride request together without
	// reusing the user_id, which can repeat across a roster run.
	corrID := uuid.NewString()
	log := s.log.With(zap.String("request_id", corrID))

	req, err := protocol.ParseUserRequest(frame)
	if err != nil {
		log.Warn("malformed user_request", zap.String("frame", frame), zap.Error(err))
		return protocol.InvalidRequest
	}
	if !s.bounds.Contains(req.X, req.Y) {
		log.Warn("user_request out of bounds", zap.Int("user_id", req.UserID))
		return protocol.InvalidRequest
	}

	if _, err := s.st.InsertUserRequest(req.UserID, req.X, req.Y, 0); err != nil {
		log.Error("failed to persist user request", zap.Int("user_id", req.UserID), zap.Error(err))
		return protocol.NoTaxiAvailable
	}

	taxi, err := s.match.Match(req.X, req.Y)
	if err != nil {
		if err == ErrNoTaxiAvailable {
			log.Info("no taxi available", zap.Int("user_id", req.UserID))
			return protocol.NoTaxiAvailable
		}
		log.Error("matching failed", zap.Int("user_id", req.UserID), zap.Error(err))
		return protocol.NoTaxiAvailable
	}

	assignment, err := s.st.InsertAssignment(req.UserID, taxi.TaxiID)
	if err != nil {
		log.Error("failed to persist assignment", zap.Int("user_id", req.UserID), zap.Int("taxi_id", taxi.TaxiID), zap.Error(err))
		return protocol.NoTaxiAvailable
	}

	broadcast := protocol.AssignBroadcast{TaxiID: taxi.TaxiID, UserID: req.UserID}
	if s.pub == nil {
		log.Warn("no assignment publisher bound, skipping broadcast")
	} else if err := s.pub.Publish(broadcast.Encode()); err != nil {
		log.Warn("failed to publish assignment broadcast", zap.Error(err))
	}

	s.scheduleServiceTimer(assignment.AssignmentID, taxi.TaxiID, taxi.InitialPosX, taxi.InitialPosY)

	log.Info("assigned taxi", zap.Int("user_id", req.UserID), zap.Int("taxi_id", taxi.TaxiID))
	return protocol.AssignTaxi{TaxiID: taxi.TaxiID}.Encode()
}

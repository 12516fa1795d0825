package taxiagent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
)

// runSession runs the three concurrent CONNECTED_* activities (spec.md
// §4.2: position publisher, heartbeat publisher, assignment subscriber)
// until one of them detects a failure or a fallback probe reconnects to the
// primary. It returns true if the caller should switch back to the
// primary target.
func (a *Agent) runSession(parent context.Context, usingBackup bool) (switchToPrimary bool) {
	sessionCtx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	var switched bool
	var switchedMu sync.Mutex

	wg.Add(3)
	go func() {
		defer wg.Done()
		a.runPositionPublisher(sessionCtx, cancel)
	}()
	go func() {
		defer wg.Done()
		a.runHeartbeatPublisher(sessionCtx, cancel)
	}()
	go func() {
		defer wg.Done()
		a.runAssignmentSubscriber(sessionCtx)
	}()

	if usingBackup {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.runFallbackProbe(sessionCtx) {
				switchedMu.Lock()
				switched = true
				switchedMu.Unlock()
				cancel()
			}
		}()
	}

	wg.Wait()

	a.sockMu.Lock()
	a.closeSocketsLocked()
	a.sockMu.Unlock()

	switchedMu.Lock()
	defer switchedMu.Unlock()
	return switched
}

// runPositionPublisher advances the taxi's pose on a fixed tick and emits
// position updates (spec.md §4.2). It stops on a send error (failure
// detection) or once the taxi reaches a border after having been off every
// border (spec.md §4.2: "mark stopped=true and halt the publisher").
func (a *Agent) runPositionPublisher(ctx context.Context, cancel context.CancelFunc) {
	interval := time.Duration(a.timeouts.PositionTick) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	offAllBorders := !a.bounds.OnBorder(a.currentPoseSnapshot())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.poseMu.Lock()
		a.tickCounter++
		tick := a.tickCounter
		moves := grid.MovesOnTick(a.speed, tick)
		if moves {
			dir := grid.RandomCardinalDirection(a.rng)
			n := grid.CellsPerTick(a.speed)
			a.p.X, a.p.Y = a.bounds.Step(a.p.X, a.p.Y, dir, n)
		}
		x, y := a.p.X, a.p.Y
		a.poseMu.Unlock()

		if !a.sendPosition() {
			a.log.Warn("position send failed, reconnecting")
			cancel()
			return
		}

		onBorder := a.bounds.OnBorder(x, y)
		if onBorder && offAllBorders {
			a.poseMu.Lock()
			a.stopped = true
			a.poseMu.Unlock()
			// Emit one final frame carrying the stopped status so the
			// dispatcher retires the taxi permanently (spec.md §9 Open
			// Question 3) instead of leaving it claimable.
			a.sendPosition()
			a.log.Info("taxi reached border, stopped and halting position publisher", zap.Int("x", x), zap.Int("y", y))
			return
		}
		if !onBorder {
			offAllBorders = true
		}
	}
}

func (a *Agent) currentPoseSnapshot() (int, int) {
	a.poseMu.Lock()
	defer a.poseMu.Unlock()
	return a.p.X, a.p.Y
}

// sendPosition emits the current pose on the push socket. Returns false on
// send failure (client-side failure detection, spec.md §4.2).
func (a *Agent) sendPosition() bool {
	x, y := a.currentPose()
	msg := protocol.PositionUpdate{TaxiID: a.taxiID, X: x, Y: y, Speed: a.speed, Status: a.currentStatus()}

	a.sockMu.RLock()
	push := a.push
	a.sockMu.RUnlock()
	if push == nil {
		return false
	}
	if err := push.Send(msg.Encode()); err != nil {
		return false
	}
	return true
}

// runHeartbeatPublisher emits a heartbeat every HeartbeatPeriod seconds
// (spec.md §4.2).
func (a *Agent) runHeartbeatPublisher(ctx context.Context, cancel context.CancelFunc) {
	interval := time.Duration(a.timeouts.HeartbeatPeriod) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.sockMu.RLock()
		hb := a.hb
		a.sockMu.RUnlock()
		if hb == nil {
			continue
		}
		msg := protocol.Heartbeat{TaxiID: a.taxiID}
		if err := hb.Send(msg.Encode()); err != nil {
			a.log.Warn("heartbeat send failed, reconnecting", zap.Error(err))
			cancel()
			return
		}
	}
}

// runAssignmentSubscriber surfaces assignment broadcasts addressed to this
// taxi (spec.md §4.2, "Assignment subscriber").
func (a *Agent) runAssignmentSubscriber(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.sockMu.RLock()
		sub := a.sub
		a.sockMu.RUnlock()
		if sub == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		frame, ok, err := sub.Recv()
		if err != nil {
			a.log.Warn("assignment recv error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		broadcast, err := protocol.ParseAssignBroadcast(frame)
		if err != nil {
			a.log.Warn("malformed assignment broadcast", zap.String("frame", frame))
			continue
		}
		a.log.Info("assigned", zap.Int("user_id", broadcast.UserID))
	}
}

// runFallbackProbe periodically attempts a test connect_request against the
// primary while connected to the backup (spec.md §4.3: "periodically
// attempts to fall back to the primary ... by a probe on every position
// tick"). Returns true once the primary replies.
func (a *Agent) runFallbackProbe(ctx context.Context) bool {
	interval := time.Duration(a.timeouts.PositionTick) * time.Second
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if a.probePrimary() {
			a.log.Info("primary reachable again")
			return true
		}
	}
}

func (a *Agent) probePrimary() bool {
	req, err := messaging.DialReq(a.primary.Host, a.primary.Ports.Rep)
	if err != nil {
		return false
	}
	defer req.Close()

	x, y := a.currentPose()
	msg := protocol.ConnectRequest{TaxiID: a.taxiID, X: x, Y: y, Speed: a.speed, Status: a.currentStatus()}
	timeout := time.Duration(a.timeouts.ConnectReply) * time.Second
	reply, err := req.Request(msg.Encode(), timeout)
	if err != nil {
		return false
	}
	ack, err := protocol.ParseConnectAck(reply)
	return err == nil && ack.TaxiID == a.taxiID
}

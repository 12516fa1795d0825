package taxiagent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.2
)

type pose struct {
	X, Y int
}

// Agent is one taxi's client-side state machine (spec.md §4.2).
type Agent struct {
	taxiID int
	speed  int
	bounds grid.Bounds

	primary config.Endpoint
	backup  config.Endpoint

	timeouts config.Timeouts
	log      *zap.Logger
	rng      *rand.Rand

	// sockMu is the "socket-recreation mutex" of spec.md §5: every
	// steady-state send path takes RLock, reconnect logic takes Lock while
	// it tears down and rebuilds the socket set, so no handler ever sends
	// on a socket mid-rebuild. This is the idiomatic-Go shape of the
	// spec's "condition variable signals readiness" requirement — readers
	// park for the duration of the writer's critical section instead of
	// waiting on an explicit Cond.
	sockMu sync.RWMutex
	push   *messaging.Push
	hb     *messaging.Push
	sub    *messaging.Sub

	poseMu  sync.Mutex
	p       pose
	tick    int
	stopped bool

	everConnected bool
	tickCounter   int
}

// New constructs a taxi Agent at its registered initial position.
func New(taxiID, x, y, speed int, bounds grid.Bounds, primary, backup config.Endpoint, timeouts config.Timeouts, log *zap.Logger) *Agent {
	return &Agent{
		taxiID:   taxiID,
		speed:    speed,
		bounds:   bounds,
		primary:  primary,
		backup:   backup,
		timeouts: timeouts,
		log:      log.Named("taxiagent").With(zap.Int("taxi_id", taxiID)),
		rng:      rand.New(rand.NewSource(int64(taxiID) + time.Now().UnixNano())),
		p:        pose{X: x, Y: y},
	}
}

// Run drives the full connect/reconnect state machine until ctx is
// cancelled (spec.md §4.2 state diagram).
func (a *Agent) Run(ctx context.Context) error {
	target := a.primary
	usingBackup := false
	fails := 0
	backoff := backoffInitial

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !a.connectOnce(ctx, target) {
			fails++
			a.log.Warn("connect attempt failed", zap.Int("consecutive_failures", fails))
			if !usingBackup && fails >= maxConsecutiveFailures {
				usingBackup = true
				target = a.backup
				fails = 0
				a.log.Warn("escalating to backup dispatcher")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(jitter(backoff, a.rng)):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = backoffInitial
		fails = 0
		a.log.Info("connected", zap.String("host", target.Host), zap.Bool("backup", usingBackup))

		switchToPrimary := a.runSession(ctx, usingBackup)
		if ctx.Err() != nil {
			return nil
		}
		if switchToPrimary {
			usingBackup = false
			target = a.primary
			a.log.Info("falling back to primary dispatcher")
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffFactor)
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func jitter(d time.Duration, r *rand.Rand) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (r.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// connectOnce performs the connect_request/connect_ack handshake against
// endpoint and, on success, rebuilds the push/heartbeat/sub socket set.
func (a *Agent) connectOnce(ctx context.Context, endpoint config.Endpoint) bool {
	req, err := messaging.DialReq(endpoint.Host, endpoint.Ports.Rep)
	if err != nil {
		a.log.Warn("dial rep failed", zap.Error(err))
		return false
	}
	defer req.Close()

	x, y := a.currentPose()
	connReq := protocol.ConnectRequest{TaxiID: a.taxiID, X: x, Y: y, Speed: a.speed, Status: a.currentStatus()}

	timeout := time.Duration(a.timeouts.ConnectReply) * time.Second
	reply, err := req.Request(connReq.Encode(), timeout)
	if err != nil {
		a.log.Debug("connect_request failed", zap.Error(err))
		return false
	}
	ack, err := protocol.ParseConnectAck(reply)
	if err != nil || ack.TaxiID != a.taxiID {
		a.log.Warn("unexpected connect reply", zap.String("reply", reply))
		return false
	}

	if err := a.rebuildSockets(endpoint); err != nil {
		a.log.Error("failed to rebuild sockets after ack", zap.Error(err))
		return false
	}

	if a.everConnected {
		// At-least-once replay of last known position after reconnect
		// (spec.md §4.2).
		a.sendPosition()
	}
	a.everConnected = true
	return true
}

// rebuildSockets tears down the prior push/heartbeat/sub sockets and dials
// fresh ones against endpoint, holding the socket-recreation mutex for the
// duration of the swap.
func (a *Agent) rebuildSockets(endpoint config.Endpoint) error {
	a.sockMu.Lock()
	defer a.sockMu.Unlock()

	a.closeSocketsLocked()

	push, err := messaging.DialPush(endpoint.Host, endpoint.Ports.Pull)
	if err != nil {
		return fmt.Errorf("taxiagent: dial push: %w", err)
	}
	hb, err := messaging.DialPush(endpoint.Host, endpoint.Ports.Heartbeat)
	if err != nil {
		push.Close()
		return fmt.Errorf("taxiagent: dial heartbeat push: %w", err)
	}
	sub, err := messaging.DialSub(endpoint.Host, endpoint.Ports.Pub, protocol.AssignTopic(a.taxiID))
	if err != nil {
		push.Close()
		hb.Close()
		return fmt.Errorf("taxiagent: dial sub: %w", err)
	}

	a.push = push
	a.hb = hb
	a.sub = sub
	return nil
}

func (a *Agent) closeSocketsLocked() {
	if a.push != nil {
		a.push.Close()
		a.push = nil
	}
	if a.hb != nil {
		a.hb.Close()
		a.hb = nil
	}
	if a.sub != nil {
		a.sub.Close()
		a.sub = nil
	}
}

func (a *Agent) currentPose() (int, int) {
	a.poseMu.Lock()
	defer a.poseMu.Unlock()
	return a.p.X, a.p.Y
}

// currentStatus reports the wire status token for the taxi's present state
// (spec.md §9 Open Question 3): once stopped at a border it reports stopped
// forever, including on any later re-registration.
func (a *Agent) currentStatus() string {
	a.poseMu.Lock()
	defer a.poseMu.Unlock()
	if a.stopped {
		return protocol.TaxiStatusStopped
	}
	return protocol.TaxiStatusAvailable
}

package useragent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/messaging"
	"github.com/dvargas135/my-uber/internal/protocol"
)

// Outcome is the recorded result of one user's ride request (spec.md §4.4:
// "recorded with its response time").
type Outcome struct {
	UserID       int
	Result       string // "assign_taxi", "no_taxi_available", "invalid_request", "unexpected", "timeout", "interrupted"
	TaxiID       int
	ResponseTime time.Duration
}

// Run sends every request in the roster concurrently (one goroutine per
// user, bounded by len(roster) — spec.md §5 judges this acceptable "given
// request rate") and returns each outcome once all have completed.
func Run(ctx context.Context, roster []Request, primary, backup config.Endpoint, replyTimeout time.Duration, log *zap.Logger) []Outcome {
	log = log.Named("useragent")

	outcomes := make([]Outcome, len(roster))
	var wg sync.WaitGroup
	wg.Add(len(roster))

	for i, req := range roster {
		go func(i int, req Request) {
			defer wg.Done()
			outcomes[i] = runOne(ctx, req, primary, backup, replyTimeout, log)
		}(i, req)
	}

	wg.Wait()
	return outcomes
}

func runOne(ctx context.Context, req Request, primary, backup config.Endpoint, replyTimeout time.Duration, log *zap.Logger) Outcome {
	select {
	case <-ctx.Done():
		return Outcome{UserID: req.UserID, Result: "interrupted"}
	case <-time.After(time.Duration(req.WaitTime) * time.Second):
	}

	start := time.Now()
	outcome, ok := sendRequest(req, primary, replyTimeout, log)
	if ok {
		outcome.ResponseTime = time.Since(start)
		return outcome
	}

	log.Warn("request to primary timed out, retrying against backup", zap.Int("user_id", req.UserID))
	outcome, ok = sendRequest(req, backup, replyTimeout, log)
	outcome.ResponseTime = time.Since(start)
	if !ok {
		outcome.Result = "timeout"
	}
	return outcome
}

// sendRequest sends one user_request and waits up to replyTimeout. ok is
// false only on timeout/transport error (spec.md §4.4: "On timeout, switch
// endpoint to backup and re-send exactly once").
func sendRequest(req Request, endpoint config.Endpoint, replyTimeout time.Duration, log *zap.Logger) (Outcome, bool) {
	client, err := messaging.DialReq(endpoint.Host, endpoint.Ports.UserReq)
	if err != nil {
		log.Warn("dial user_request endpoint failed", zap.Error(err))
		return Outcome{UserID: req.UserID, Result: "timeout"}, false
	}
	defer client.Close()

	msg := protocol.UserRequest{UserID: req.UserID, X: req.X, Y: req.Y}
	reply, err := client.Request(msg.Encode(), replyTimeout)
	if err != nil {
		return Outcome{UserID: req.UserID, Result: "timeout"}, false
	}

	switch {
	case reply == protocol.NoTaxiAvailable:
		return Outcome{UserID: req.UserID, Result: protocol.NoTaxiAvailable}, true
	case reply == protocol.InvalidRequest:
		return Outcome{UserID: req.UserID, Result: protocol.InvalidRequest}, true
	default:
		ack, err := protocol.ParseAssignTaxi(reply)
		if err != nil {
			log.Warn("unexpected user_request reply", zap.String("reply", reply))
			return Outcome{UserID: req.UserID, Result: "unexpected"}, true
		}
		return Outcome{UserID: req.UserID, Result: "assign_taxi", TaxiID: ack.TaxiID}, true
	}
}

package useragent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/config"
)

// unreachableEndpoint points at a port nothing is listening on so
// Request() exercises the real timeout path rather than a live dispatcher.
func unreachableEndpoint() config.Endpoint {
	return config.Endpoint{Host: "127.0.0.1", Ports: config.Ports{UserReq: 1}}
}

// TestSendRequestTimesOutAgainstUnreachableEndpoint covers spec.md §4.4's
// timeout branch: no dispatcher listening, the call must return !ok within
// roughly replyTimeout rather than hanging.
func TestSendRequestTimesOutAgainstUnreachableEndpoint(t *testing.T) {
	req := Request{UserID: 1, X: 0, Y: 0}
	outcome, ok := sendRequest(req, unreachableEndpoint(), 50*time.Millisecond, zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, "timeout", outcome.Result)
	assert.Equal(t, 1, outcome.UserID)
}

// TestRunOneFallsBackToBackupOnPrimaryTimeout covers the "retry exactly
// once against backup" rule: both endpoints are unreachable, so the final
// outcome must still be "timeout" after trying both.
func TestRunOneFallsBackToBackupOnPrimaryTimeout(t *testing.T) {
	req := Request{UserID: 7, X: 1, Y: 1, WaitTime: 0}
	outcome := runOne(context.Background(), req, unreachableEndpoint(), unreachableEndpoint(), 30*time.Millisecond, zap.NewNop())
	assert.Equal(t, "timeout", outcome.Result)
	assert.Equal(t, 7, outcome.UserID)
}

// TestRunProducesOneOutcomePerRosterEntryInOrder covers the bounded
// goroutine-per-user fan-out (spec.md §9 redesign flag): outcomes must be
// returned in roster order regardless of goroutine completion order.
func TestRunProducesOneOutcomePerRosterEntryInOrder(t *testing.T) {
	roster := []Request{
		{UserID: 1, X: 0, Y: 0, WaitTime: 0},
		{UserID: 2, X: 0, Y: 0, WaitTime: 0},
		{UserID: 3, X: 0, Y: 0, WaitTime: 0},
	}
	outcomes := Run(context.Background(), roster, unreachableEndpoint(), unreachableEndpoint(), 20*time.Millisecond, zap.NewNop())
	assert.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, roster[i].UserID, o.UserID)
		assert.Equal(t, "timeout", o.Result)
	}
}

func TestRunOneInterruptedByContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := Request{UserID: 9, X: 0, Y: 0, WaitTime: 5}
	outcome := runOne(ctx, req, unreachableEndpoint(), unreachableEndpoint(), 20*time.Millisecond, zap.NewNop())
	assert.Equal(t, "interrupted", outcome.Result)
}

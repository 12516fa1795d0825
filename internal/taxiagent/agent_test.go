package taxiagent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/config"
	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/protocol"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Disconnected:      "disconnected",
		ConnectingPrimary: "connecting_primary",
		ConnectedPrimary:  "connected_primary",
		ConnectingBackup:  "connecting_backup",
		ConnectedBackup:   "connected_backup",
		Stopped:           "stopped",
		State(99):         "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestNextBackoffDoublesUntilCap(t *testing.T) {
	d := backoffInitial
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
	}
	assert.Equal(t, backoffMax, d, "backoff must saturate at backoffMax (spec.md §4.2)")
}

func TestNextBackoffNeverExceedsMax(t *testing.T) {
	assert.Equal(t, backoffMax, nextBackoff(backoffMax))
}

func TestJitterStaysWithinFraction(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		got := jitter(base, r)
		delta := float64(base) * jitterFraction
		assert.GreaterOrEqual(t, float64(got), float64(base)-delta)
		assert.LessOrEqual(t, float64(got), float64(base)+delta)
	}
}

func TestSendPositionFailsWithoutSocket(t *testing.T) {
	bounds, err := grid.ValidateBounds(10, 10)
	assert.NoError(t, err)
	a := New(1, 0, 0, 2, bounds, config.Primary(), config.Backup(), config.DefaultTimeouts(), zap.NewNop())
	assert.False(t, a.sendPosition(), "sendPosition must fail when no push socket is dialed")
}

func TestCurrentStatusReflectsStoppedFlag(t *testing.T) {
	bounds, err := grid.ValidateBounds(10, 10)
	assert.NoError(t, err)
	a := New(1, 0, 0, 2, bounds, config.Primary(), config.Backup(), config.DefaultTimeouts(), zap.NewNop())
	assert.Equal(t, protocol.TaxiStatusAvailable, a.currentStatus())

	a.poseMu.Lock()
	a.stopped = true
	a.poseMu.Unlock()
	assert.Equal(t, protocol.TaxiStatusStopped, a.currentStatus(), "status must report stopped permanently once set (Open Question 3)")
}

func TestCurrentPoseReturnsConstructedPosition(t *testing.T) {
	bounds, err := grid.ValidateBounds(10, 10)
	assert.NoError(t, err)
	a := New(1, 3, 4, 2, bounds, config.Primary(), config.Backup(), config.DefaultTimeouts(), zap.NewNop())
	x, y := a.currentPose()
	assert.Equal(t, 3, x)
	assert.Equal(t, 4, y)
}

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := Open(Config{Driver: "sqlite", DSN: ":memory:", Logger: zap.NewNop()})
	require.NoError(t, err)
	return NewGormStore(db)
}

func TestUpsertTaxiCreatesThenUpdates(t *testing.T) {
	st := newTestStore(t)

	taxi, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, taxi.Status)
	assert.True(t, taxi.Connected)

	// Re-registration (I5): same taxi_id, different pose, no duplicate row.
	taxi2, err := st.UpsertTaxi(1, 5, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, taxi2.PosX)
	assert.Equal(t, 4, taxi2.Speed)

	all, err := st.ListAvailableTaxis()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertTaxiPreservesStatusWhileUnavailable(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	require.NoError(t, st.TryClaimAvailableTaxi(1))

	// Re-registration (e.g. after a transient send error, I5/P6) must not
	// forfeit the in-flight assignment by resetting status to available.
	taxi, err := st.UpsertTaxi(1, 5, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, taxi.Status)
	assert.Equal(t, 5, taxi.PosX)

	stored, err := st.GetTaxi(1)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, stored.Status)

	// A second claim must still fail (I1): re-registration did not open a
	// second window to claim the same taxi.
	assert.ErrorIs(t, st.TryClaimAvailableTaxi(1), ErrNoClaim)
}

func TestMarkTaxiStoppedIsPermanent(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 9, 9, 2)
	require.NoError(t, err)

	require.NoError(t, st.MarkTaxiStopped(1))

	taxi, err := st.GetTaxi(1)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, taxi.Status)
	assert.True(t, taxi.Stopped)

	// Stopped taxis are never claimable (Open Question 3).
	assert.ErrorIs(t, st.TryClaimAvailableTaxi(1), ErrNoClaim)

	// Nor does ReleaseTaxi resurrect them to available.
	require.NoError(t, st.ReleaseTaxi(1, 9, 9))
	taxi, err = st.GetTaxi(1)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, taxi.Status)
	assert.True(t, taxi.Stopped)

	// Nor does re-registration.
	taxi, err = st.UpsertTaxi(1, 1, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, taxi.Status)
	assert.True(t, taxi.Stopped)
}

func TestMarkTaxiStoppedUnknownTaxi(t *testing.T) {
	st := newTestStore(t)
	assert.ErrorIs(t, st.MarkTaxiStopped(404), ErrNotFound)
}

func TestTryClaimAvailableTaxiCAS(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)

	require.NoError(t, st.TryClaimAvailableTaxi(1))

	// Second claim must fail: taxi is no longer available (I1).
	err = st.TryClaimAvailableTaxi(1)
	assert.ErrorIs(t, err, ErrNoClaim)

	taxi, err := st.GetTaxi(1)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, taxi.Status)
	// Open Question 2: connected is untouched by claim.
	assert.True(t, taxi.Connected)
}

func TestTryClaimAvailableTaxiConcurrentOnlyOneWins(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	successes := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- st.TryClaimAvailableTaxi(1) == nil
		}()
	}
	wg.Wait()
	close(successes)

	wins := 0
	for ok := range successes {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent claim should succeed (P1/I1)")
}

func TestListAvailableTaxisExcludesDisconnectedAndUnavailable(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(2, 1, 1, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(3, 2, 2, 2)
	require.NoError(t, err)

	require.NoError(t, st.TryClaimAvailableTaxi(2))
	require.NoError(t, st.SetTaxiConnected(3, false))

	available, err := st.ListAvailableTaxis()
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, 1, available[0].TaxiID)
}

func TestListAllTaxisIncludesDisconnectedAndUnavailable(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(2, 1, 1, 2)
	require.NoError(t, err)

	require.NoError(t, st.TryClaimAvailableTaxi(2))

	all, err := st.ListAllTaxis()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].TaxiID)
	assert.Equal(t, 2, all[1].TaxiID)
}

func TestReleaseTaxiResetsToInitialPose(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 3, 4, 2)
	require.NoError(t, err)
	require.NoError(t, st.TryClaimAvailableTaxi(1))

	require.NoError(t, st.ReleaseTaxi(1, 3, 4))

	taxi, err := st.GetTaxi(1)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, taxi.Status)
	assert.Equal(t, 3, taxi.PosX)
	assert.Equal(t, 4, taxi.PosY)
}

func TestRecordHeartbeatUpsertsSingleRow(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)

	first := time.Now().Add(-time.Minute)
	require.NoError(t, st.RecordHeartbeat(1, first))
	second := time.Now()
	require.NoError(t, st.RecordHeartbeat(1, second))

	record, err := st.LastHeartbeat(1)
	require.NoError(t, err)
	assert.WithinDuration(t, second, record.Timestamp, time.Second)

	all, err := st.ListHeartbeats()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInsertAssignmentAndComplete(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	_, err = st.InsertUserRequest(1, 3, 4, 0)
	require.NoError(t, err)

	assignment, err := st.InsertAssignment(1, 1)
	require.NoError(t, err)
	assert.Equal(t, AssignmentAssigned, assignment.Status)

	require.NoError(t, st.CompleteAssignment(assignment.AssignmentID))
}

func TestGetTaxiNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetTaxi(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

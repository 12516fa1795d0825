package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/store"
)

func newTestMatcherStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:", Logger: zap.NewNop()})
	require.NoError(t, err)
	return store.NewGormStore(db)
}

// TestMatchTieBreaksOnTaxiID covers S2: two equidistant taxis, the lower
// taxi_id must win.
func TestMatchTieBreaksOnTaxiID(t *testing.T) {
	st := newTestMatcherStore(t)
	_, err := st.UpsertTaxi(7, 5, 5, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(3, 5, 5, 2)
	require.NoError(t, err)

	m := newMatcher(st, zap.NewNop())
	taxi, err := m.Match(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, taxi.TaxiID)
}

// TestMatchPicksNearest covers P3: the selected taxi minimizes Manhattan
// distance among available/connected candidates.
func TestMatchPicksNearest(t *testing.T) {
	st := newTestMatcherStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2) // distance 8 from (4,4)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(2, 3, 4, 2) // distance 1 from (4,4)
	require.NoError(t, err)

	m := newMatcher(st, zap.NewNop())
	taxi, err := m.Match(4, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, taxi.TaxiID)
}

// TestMatchNoTaxiAvailable covers S3: no connected taxis, reply must be
// ErrNoTaxiAvailable with no assignment side effects.
func TestMatchNoTaxiAvailable(t *testing.T) {
	st := newTestMatcherStore(t)
	m := newMatcher(st, zap.NewNop())

	_, err := m.Match(0, 0)
	assert.ErrorIs(t, err, ErrNoTaxiAvailable)
}

// TestMatchSkipsAlreadyClaimedCandidate checks that a nearer taxi already
// claimed before the match is not a candidate: the matcher returns the next
// nearest rather than failing outright.
func TestMatchSkipsAlreadyClaimedCandidate(t *testing.T) {
	st := newTestMatcherStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(2, 1, 1, 2)
	require.NoError(t, err)

	// Claim taxi 1 before the match, so the scan no longer lists it.
	require.NoError(t, st.TryClaimAvailableTaxi(1))

	m := newMatcher(st, zap.NewNop())
	taxi, err := m.Match(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, taxi.TaxiID)
}

// TestMatchConcurrentRequestsClaimDistinctTaxis covers P2/S4: two
// concurrent matches against two available taxis both succeed on distinct
// taxi IDs.
func TestMatchConcurrentRequestsClaimDistinctTaxis(t *testing.T) {
	st := newTestMatcherStore(t)
	_, err := st.UpsertTaxi(1, 0, 0, 2)
	require.NoError(t, err)
	_, err = st.UpsertTaxi(2, 0, 0, 2)
	require.NoError(t, err)

	m := newMatcher(st, zap.NewNop())

	results := make(chan int, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			taxi, err := m.Match(0, 0)
			if err != nil {
				errs <- err
				return
			}
			results <- taxi.TaxiID
		}()
	}

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-results:
			seen[id] = true
		case err := <-errs:
			t.Fatalf("unexpected match error: %v", err)
		}
	}
	assert.Len(t, seen, 2, "both concurrent requests must claim distinct taxis")
}

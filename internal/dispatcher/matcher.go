package dispatcher

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dvargas135/my-uber/internal/grid"
	"github.com/dvargas135/my-uber/internal/store"
)

// ErrNoTaxiAvailable signals that no connected, available taxi exists (or
// every candidate lost the claim race), the matcher's sole user-visible
// failure mode (spec.md §4.1.1 step 4, §7 kind 4).
var ErrNoTaxiAvailable = errNoTaxiAvailable{}

type errNoTaxiAvailable struct{}

func (errNoTaxiAvailable) Error() string { return "dispatcher: no taxi available" }

// matcher implements the candidate-scan-then-claim algorithm of spec.md
// §4.1.1. assignMu is the "assignment mutex" §5 requires: held for the
// duration of one match attempt so no two user requests can observe and
// claim the same candidate list concurrently. The Store's own CAS
// (TryClaimAvailableTaxi) is the second, independent layer of defense the
// spec allows implementations to rely on instead of (or in addition to) the
// mutex; this implementation uses both, as the spec permits either.
type matcher struct {
	assignMu sync.Mutex
	store    store.Store
	log      *zap.Logger
}

func newMatcher(s store.Store, log *zap.Logger) *matcher {
	return &matcher{store: s, log: log.Named("matcher")}
}

// Match selects, claims, and returns the nearest eligible taxi for
// (userX, userY). It enforces I1-I3 via the Store's CAS and returns
// ErrNoTaxiAvailable if every candidate was claimed by a competing request
// first or none existed.
func (m *matcher) Match(userX, userY int) (store.Taxi, error) {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()

	candidates, err := m.store.ListAvailableTaxis()
	if err != nil {
		return store.Taxi{}, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := grid.ManhattanDistance(candidates[i].PosX, candidates[i].PosY, userX, userY)
		dj := grid.ManhattanDistance(candidates[j].PosX, candidates[j].PosY, userX, userY)
		if di != dj {
			return di < dj
		}
		return candidates[i].TaxiID < candidates[j].TaxiID
	})

	for _, candidate := range candidates {
		if err := m.store.TryClaimAvailableTaxi(candidate.TaxiID); err != nil {
			if err == store.ErrNoClaim {
				m.log.Debug("lost claim race, trying next candidate", zap.Int("taxi_id", candidate.TaxiID))
				continue
			}
			return store.Taxi{}, err
		}
		return candidate, nil
	}

	return store.Taxi{}, ErrNoTaxiAvailable
}

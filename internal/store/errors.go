package store

import "errors"

// ErrNotFound is returned when a lookup finds no matching row. Grounded on
// arkeep/server/internal/repositories' ErrRecordNotFound translation.
var ErrNotFound = errors.New("store: not found")

// ErrNoClaim is returned by TryClaimAvailableTaxi when the taxi was no
// longer available/connected at claim time (I1: only one request may claim
// a given taxi).
var ErrNoClaim = errors.New("store: taxi not claimable")

package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessSweepFindsStaleEntries(t *testing.T) {
	l := newLiveness()
	now := time.Now()
	l.Touch(1, now.Add(-20*time.Second))
	l.Touch(2, now.Add(-1*time.Second))

	stale := l.Sweep(now, 15*time.Second)
	assert.ElementsMatch(t, []int{1}, stale)
}

func TestLivenessEvictRemovesEntry(t *testing.T) {
	l := newLiveness()
	now := time.Now()
	l.Touch(1, now)
	l.Evict(1)

	stale := l.Sweep(now, 0)
	assert.Empty(t, stale)
}

func TestLivenessSeedAndReset(t *testing.T) {
	l := newLiveness()
	now := time.Now()
	l.Seed(map[int]time.Time{1: now.Add(-20 * time.Second)})

	stale := l.Sweep(now, 15*time.Second)
	assert.ElementsMatch(t, []int{1}, stale)

	l.Reset()
	stale = l.Sweep(now, 15*time.Second)
	assert.Empty(t, stale)
}

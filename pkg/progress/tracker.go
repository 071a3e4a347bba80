// Package progress aggregates per-worker completion counts into a progress
// display without a central lock.
//
// Every worker owns one slot of a Tracker: a completion counter that only it
// increments and a liveness flag that only it clears. An Aggregator goroutine
// is the single writer of the Display; it samples the counters on a fixed
// interval or when the leader worker nudges it, and advances the display by
// the delta since its previous sample.
package progress

import (
	"sync/atomic"
)

// slot is padded to its own cache line so that workers incrementing
// neighbouring counters do not contend.
type slot struct {
	count atomic.Int64
	alive atomic.Bool
	_     [48]byte
}

// Tracker holds the sharded progress state of one worker pool run
type Tracker struct {
	slots []slot
}

// NewTracker creates a tracker for the given number of workers with all
// counters at zero and every worker marked alive.
func NewTracker(workers int) *Tracker {
	t := &Tracker{slots: make([]slot, workers)}
	for i := range t.slots {
		t.slots[i].alive.Store(true)
	}
	return t
}

// Workers returns the number of slots
func (t *Tracker) Workers() int {
	return len(t.slots)
}

// Done records one finished item for worker and returns that worker's count
func (t *Tracker) Done(worker int) int64 {
	return t.slots[worker].count.Add(1)
}

// Finish clears the liveness flag of worker
func (t *Tracker) Finish(worker int) {
	t.slots[worker].alive.Store(false)
}

// Count returns the number of items finished by worker
func (t *Tracker) Count(worker int) int64 {
	return t.slots[worker].count.Load()
}

// Alive reports whether worker has not finished yet
func (t *Tracker) Alive(worker int) bool {
	return t.slots[worker].alive.Load()
}

// Total sums all counters. Counters of running workers are sampled, not
// synchronized, so the value is only exact once every worker has finished.
func (t *Tracker) Total() int64 {
	var sum int64
	for i := range t.slots {
		sum += t.slots[i].count.Load()
	}
	return sum
}

// AnyAlive reports whether at least one worker is still running
func (t *Tracker) AnyAlive() bool {
	for i := range t.slots {
		if t.slots[i].alive.Load() {
			return true
		}
	}
	return false
}

package progress

import (
	"sync"
	"time"
)

// DefaultInterval is the sampling period of an Aggregator
const DefaultInterval = 100 * time.Millisecond

// LeaderStride is the number of items the leader worker finishes between two
// nudges of the aggregator.
const LeaderStride = 1000

// Aggregator periodically folds a Tracker into a Display
type Aggregator struct {
	tracker  *Tracker
	display  Display
	interval time.Duration

	nudge    chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// reported is owned by the aggregator goroutine
	reported int64
}

// NewAggregator creates an aggregator. A nil display discards progress and a
// non-positive interval uses DefaultInterval.
func NewAggregator(tracker *Tracker, display Display, interval time.Duration) *Aggregator {
	if display == nil {
		display = Discard{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Aggregator{
		tracker:  tracker,
		display:  display,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the aggregation goroutine
func (a *Aggregator) Start() {
	go a.run()
}

// Nudge asks for an immediate sample. It never blocks; a nudge arriving while
// another is pending is dropped.
func (a *Aggregator) Nudge() {
	select {
	case a.nudge <- struct{}{}:
	default:
	}
}

// Stop waits until no worker is alive, performs the final aggregation, closes
// the display and returns the total reported to it.
func (a *Aggregator) Stop() int64 {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
	return a.reported
}

func (a *Aggregator) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sample()
		case <-a.nudge:
			a.sample()
		case <-a.stop:
			for a.tracker.AnyAlive() {
				time.Sleep(a.interval)
				a.sample()
			}
			a.sample()
			a.display.Close()
			return
		}
	}
}

// sample advances the display by the progress made since the last sample
func (a *Aggregator) sample() {
	total := a.tracker.Total()
	if delta := total - a.reported; delta > 0 {
		a.display.Add(int(delta))
		a.reported = total
	}
}

// Package timeseries tracks runc command throughput over rolling windows.
//
// Observations are lock-free atomic adds; RecordSample snapshots the
// cumulative counters into a ring buffer, typically once per watch refresh.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize holds five minutes of samples at one per second.
	ringBufferSize = 300

	window10s  = 10 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative command count.
type sample struct {
	timestamp time.Time
	commands  int64
}

// RateTracker counts completed runc commands and computes commands per
// second over the last 10s, 60s and 300s. It implements runc.Observer.
//
//	tracker := NewRateTracker()
//	client := runc.NewAsyncClient(runc.Config{Observer: tracker}, monitor)
//	// once per refresh:
//	tracker.RecordSample()
//	rates := tracker.GetRates()
type RateTracker struct {
	commands atomic.Int64
	errors   atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Rates is a snapshot of command throughput.
type Rates struct {
	Commands int64
	Errors   int64

	// Commands per second.
	Avg10s     float64
	Avg60s     float64
	Avg300s    float64
	AvgOverall float64
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// ObserveCommand counts one completed command.
func (t *RateTracker) ObserveCommand(verb string, d time.Duration, err error) {
	t.commands.Add(1)
	if err != nil {
		t.errors.Add(1)
	}
}

// RecordSample snapshots the current command count.
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	current := t.commands.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := sample{timestamp: now, commands: current}
	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// GetRates computes throughput from the recorded samples. A window longer
// than the recorded history falls back to the oldest sample.
func (t *RateTracker) GetRates() Rates {
	now := t.clock.Now()
	current := t.commands.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{
		Commands: current,
		Errors:   t.errors.Load(),
	}
	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		r.AvgOverall = float64(current) / elapsed
	}
	r.Avg10s = t.avgOverWindow(now, current, window10s)
	r.Avg60s = t.avgOverWindow(now, current, window60s)
	r.Avg300s = t.avgOverWindow(now, current, window300s)
	return r
}

// avgOverWindow must be called with mu held.
func (t *RateTracker) avgOverWindow(now time.Time, current int64, window time.Duration) float64 {
	target := now.Add(-window)

	// Closest sample at or before target.
	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(current-best.commands) / elapsed
}

func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all counts and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands.Store(0)
	t.errors.Store(0)
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

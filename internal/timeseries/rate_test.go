package timeseries

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

var _ runc.Observer = (*RateTracker)(nil)

// mockClock provides deterministic time for testing.
type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{time: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

func observe(t *RateTracker, n int, err error) {
	for i := 0; i < n; i++ {
		t.ObserveCommand("state", time.Millisecond, err)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestRateTracker_Counts(t *testing.T) {
	tracker := NewRateTrackerWithClock(newMockClock(time.Now()))

	observe(tracker, 5, nil)
	observe(tracker, 2, errors.New("exit status 1"))

	r := tracker.GetRates()
	if r.Commands != 7 {
		t.Errorf("Commands = %d, want 7", r.Commands)
	}
	if r.Errors != 2 {
		t.Errorf("Errors = %d, want 2", r.Errors)
	}
}

func TestRateTracker_RollingAverage(t *testing.T) {
	clock := newMockClock(time.Now())
	tracker := NewRateTrackerWithClock(clock)

	// 10 commands per second for 60 seconds, then 1 per second for 10.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		observe(tracker, 10, nil)
		tracker.RecordSample()
	}
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		observe(tracker, 1, nil)
		tracker.RecordSample()
	}

	r := tracker.GetRates()
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"Avg10s", r.Avg10s, 1},
		{"Avg60s", r.Avg60s, (50*10 + 10) / 60.0},
		{"Avg300s", r.Avg300s, 610 / 70.0},
		{"AvgOverall", r.AvgOverall, 610 / 70.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !approx(tt.got, tt.want) {
				t.Errorf("%s = %f, want %f", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestRateTracker_NoElapsedTime(t *testing.T) {
	tracker := NewRateTrackerWithClock(newMockClock(time.Now()))
	observe(tracker, 3, nil)

	r := tracker.GetRates()
	if r.Avg10s != 0 || r.AvgOverall != 0 {
		t.Errorf("rates with no elapsed time = %+v, want zero", r)
	}
}

func TestRateTracker_RingBufferOverflow(t *testing.T) {
	clock := newMockClock(time.Now())
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < ringBufferSize+50; i++ {
		clock.Advance(time.Second)
		observe(tracker, 2, nil)
		tracker.RecordSample()
	}

	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount = %d, want %d", got, ringBufferSize)
	}
	r := tracker.GetRates()
	if !approx(r.Avg300s, 2) {
		t.Errorf("Avg300s = %f, want 2", r.Avg300s)
	}
	if !approx(r.Avg10s, 2) {
		t.Errorf("Avg10s = %f, want 2", r.Avg10s)
	}
}

func TestRateTracker_Reset(t *testing.T) {
	clock := newMockClock(time.Now())
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		observe(tracker, 1, errors.New("boom"))
		tracker.RecordSample()
	}
	tracker.Reset()

	if got := tracker.SampleCount(); got != 1 {
		t.Errorf("SampleCount after Reset = %d, want 1", got)
	}
	r := tracker.GetRates()
	if r.Commands != 0 || r.Errors != 0 {
		t.Errorf("counts after Reset = %d/%d, want 0/0", r.Commands, r.Errors)
	}
}

func TestRateTracker_ConcurrentObserveAndSample(t *testing.T) {
	tracker := NewRateTracker()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			observe(tracker, 1000, nil)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			tracker.RecordSample()
			_ = tracker.GetRates()
		}
	}()
	wg.Wait()

	if got := tracker.GetRates().Commands; got != 8000 {
		t.Errorf("Commands = %d, want 8000", got)
	}
}

func BenchmarkRateTracker_ObserveCommand(b *testing.B) {
	tracker := NewRateTracker()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.ObserveCommand("state", time.Millisecond, nil)
	}
}

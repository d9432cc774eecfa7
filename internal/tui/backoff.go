package tui

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffMultiplier = 1.7
	backoffJitterPct  = 0.4 // ±20%
	backoffMaxFactor  = 30
)

// pollBackoff spaces out re-polls while List keeps failing: the delay starts
// at the refresh interval and grows by backoffMultiplier per failure, capped
// at backoffMaxFactor intervals.
type pollBackoff struct {
	initial  time.Duration
	max      time.Duration
	attempts int
	rng      *rand.Rand
}

func newPollBackoff(interval time.Duration) *pollBackoff {
	return &pollBackoff{
		initial: interval,
		max:     interval * backoffMaxFactor,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay and counts the failure.
func (b *pollBackoff) Next() time.Duration {
	delay := b.calculate()
	b.attempts++
	return delay
}

func (b *pollBackoff) calculate() time.Duration {
	delay := float64(b.initial) * math.Pow(backoffMultiplier, float64(b.attempts))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}

	jitterRange := delay * backoffJitterPct
	delay += jitterRange*b.rng.Float64() - jitterRange/2
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset clears the failure count after a successful poll.
func (b *pollBackoff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of consecutive failures.
func (b *pollBackoff) Attempts() int {
	return b.attempts
}

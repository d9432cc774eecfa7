package tui

import (
	"testing"
	"time"
)

func TestPollBackoff_Grows(t *testing.T) {
	b := newPollBackoff(time.Second)

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, time.Second},
		{1, 1700 * time.Millisecond},
		{2, 2890 * time.Millisecond},
		{3, 4913 * time.Millisecond},
	}

	for _, tt := range tests {
		got := b.Next()
		lo := time.Duration(float64(tt.base) * 0.8)
		hi := time.Duration(float64(tt.base) * 1.2)
		if got < lo || got > hi {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", tt.attempt, got, lo, hi)
		}
	}
	if b.Attempts() != len(tests) {
		t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(tests))
	}
}

func TestPollBackoff_Capped(t *testing.T) {
	b := newPollBackoff(100 * time.Millisecond)
	limit := time.Duration(float64(100*time.Millisecond*backoffMaxFactor) * 1.2)

	for i := 0; i < 50; i++ {
		if got := b.Next(); got > limit {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", i, got, limit)
		}
	}
}

func TestPollBackoff_Reset(t *testing.T) {
	b := newPollBackoff(time.Second)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", b.Attempts())
	}
	if got := b.Next(); got > 1200*time.Millisecond {
		t.Errorf("first delay after Reset = %v, want about 1s", got)
	}
}

package process

import (
	"sync/atomic"
)

// Waiter is a one-shot notification sink binding one started process to
// the caller that wants its exit status. Create one per Start call with
// NewWaiter; it cannot be reused.
type Waiter struct {
	ch       chan Exit
	owner    atomic.Pointer[Monitor]
	consumed atomic.Bool
}

// NewWaiter returns an unbound Waiter.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan Exit, 1)}
}

func (w *Waiter) bind(m *Monitor) bool {
	return w.owner.CompareAndSwap(nil, m)
}

func (w *Waiter) unbind(m *Monitor) {
	w.owner.CompareAndSwap(m, nil)
}

func (w *Waiter) boundTo(m *Monitor) bool {
	return w.owner.Load() == m
}

// deliver is called exactly once, by the reaper.
func (w *Waiter) deliver(e Exit) {
	w.ch <- e
}

// abandon closes the sink without a value.
func (w *Waiter) abandon() {
	close(w.ch)
}

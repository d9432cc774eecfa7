// Package stats keeps per-verb latency distributions of runc commands and
// renders the exit summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

const digestCompression = 100

// VerbStats is a point-in-time view of one verb's commands.
type VerbStats struct {
	Verb   string
	Count  int64
	Errors int64
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

// ErrorRate returns Errors/Count, or 0 when nothing ran.
func (v VerbStats) ErrorRate() float64 {
	if v.Count == 0 {
		return 0
	}
	return float64(v.Errors) / float64(v.Count)
}

type verbDigest struct {
	count  int64
	errors int64
	total  time.Duration
	max    time.Duration
	digest *tdigest.TDigest
}

// Recorder accumulates command latencies. It implements runc.Observer and
// is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	verbs map[string]*verbDigest
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{verbs: make(map[string]*verbDigest)}
}

// ObserveCommand implements runc.Observer.
func (r *Recorder) ObserveCommand(verb string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.verbs[verb]
	if !ok {
		v = &verbDigest{digest: tdigest.NewWithCompression(digestCompression)}
		r.verbs[verb] = v
	}

	v.count++
	if err != nil {
		v.errors++
	}
	v.total += d
	if d > v.max {
		v.max = d
	}
	v.digest.Add(float64(d), 1)
}

// Snapshot returns the stats of every verb seen so far, sorted by verb.
func (r *Recorder) Snapshot() []VerbStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]VerbStats, 0, len(r.verbs))
	for name, v := range r.verbs {
		out = append(out, VerbStats{
			Verb:   name,
			Count:  v.count,
			Errors: v.errors,
			Mean:   v.total / time.Duration(v.count),
			P50:    time.Duration(v.digest.Quantile(0.50)),
			P95:    time.Duration(v.digest.Quantile(0.95)),
			P99:    time.Duration(v.digest.Quantile(0.99)),
			Max:    v.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Verb < out[j].Verb })
	return out
}

// Total returns the number of commands observed across all verbs.
func (r *Recorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, v := range r.verbs {
		n += v.count
	}
	return n
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.verbs = make(map[string]*verbDigest)
	r.mu.Unlock()
}

var _ runc.Observer = (*Recorder)(nil)

package sink

import (
	"sync"
	"time"

	"github.com/danpilch/schaap/pkg/stack"
	"go.uber.org/atomic"
)

// DefaultRingCapacity is used when NewRing is given a non-positive capacity.
const DefaultRingCapacity = 4096

// Ring keeps the most recent samples in a fixed, preallocated buffer. Push
// never blocks or allocates; once full, the oldest sample is overwritten.
type Ring struct {
	mu   sync.Mutex
	buf  []Sample
	head int // next slot to write
	n    int

	overwritten atomic.Uint64
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]Sample, capacity)}
}

// Push stores the sample, evicting the oldest one when the ring is full.
func (r *Ring) Push(ts time.Time, trace stack.Trace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = Sample{Time: ts, Trace: trace}
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	} else {
		r.overwritten.Inc()
	}
	return nil
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overwritten returns how many samples were evicted before being read.
func (r *Ring) Overwritten() uint64 {
	return r.overwritten.Load()
}

// Snapshot returns a copy of the held samples, oldest first.
func (r *Ring) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Drain returns the held samples oldest first and empties the ring.
func (r *Ring) Drain() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.copyLocked()
	clear(r.buf)
	r.head = 0
	r.n = 0
	return out
}

func (r *Ring) copyLocked() []Sample {
	out := make([]Sample, 0, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

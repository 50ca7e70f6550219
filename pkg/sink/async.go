package sink

import (
	"context"
	"sync"
	"time"

	"github.com/danpilch/schaap/pkg/stack"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultQueueSize is used when NewAsync is given a non-positive size.
const DefaultQueueSize = 1024

// Async hands samples to another sink on a separate goroutine. Push only
// enqueues; Run does the forwarding, so a slow or blocking sink (a file, a
// network collector) never stalls the tick goroutine.
type Async struct {
	next   Sink
	queue  chan Sample
	logger *logrus.Logger

	// mu orders Push against Close: once stopped is set, no Push can still
	// be enqueueing, so the final flush sees every accepted sample.
	mu      sync.RWMutex
	stopped bool
	closed  chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(next Sink, size int, logger *logrus.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Async{
		next:   next,
		queue:  make(chan Sample, size),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Push enqueues the sample. It returns ErrFull instead of waiting when the
// queue is full, and ErrClosed after Close or once Run has returned. A nil
// return means Run forwards the sample.
func (a *Async) Push(ts time.Time, trace stack.Trace) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return ErrClosed
	}
	select {
	case a.queue <- Sample{Time: ts, Trace: trace}:
		return nil
	default:
		a.dropped.Inc()
		return ErrFull
	}
}

// Run forwards queued samples until ctx is done or Close is called, then
// forwards whatever is still queued and returns.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.Close()
			a.flush()
			return nil
		case <-a.closed:
			a.flush()
			return nil
		case s := <-a.queue:
			a.forward(s)
		}
	}
}

// Close stops accepting samples and makes Run return after flushing.
func (a *Async) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stopped {
		a.stopped = true
		close(a.closed)
	}
}

// Dropped returns the number of samples rejected because the queue was full.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failed returns the number of samples the wrapped sink rejected.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}

func (a *Async) flush() {
	for {
		select {
		case s := <-a.queue:
			a.forward(s)
		default:
			return
		}
	}
}

func (a *Async) forward(s Sample) {
	if err := a.next.Push(s.Time, s.Trace); err != nil {
		a.failed.Inc()
		a.logger.WithError(err).Debug("Sink rejected sample")
	}
}

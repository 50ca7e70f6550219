// Package sink provides destinations for profiler samples. Push is called
// from the tick goroutine, once per sampled stack, so every implementation
// here returns without blocking on I/O.
package sink

import (
	"errors"
	"time"

	"github.com/danpilch/schaap/pkg/stack"
)

var (
	// ErrFull is returned when a bounded sink has no room; the sample is dropped.
	ErrFull = errors.New("sink full")
	// ErrClosed is returned by sinks that no longer accept samples.
	ErrClosed = errors.New("sink closed")
)

// Sink receives one sample per sampled stack. Implementations must not block
// unboundedly. A returned error means the sample was dropped.
type Sink interface {
	Push(ts time.Time, trace stack.Trace) error
}

// Func adapts a function to a Sink.
type Func func(ts time.Time, trace stack.Trace) error

// Push calls f.
func (f Func) Push(ts time.Time, trace stack.Trace) error {
	return f(ts, trace)
}

// Discard drops every sample.
var Discard Sink = Func(func(time.Time, stack.Trace) error { return nil })

// Sample is a timestamped trace.
type Sample struct {
	Time  time.Time
	Trace stack.Trace
}

// Seconds returns the timestamp as float seconds since the Unix epoch.
func (s Sample) Seconds() float64 {
	return float64(s.Time.UnixNano()) / float64(time.Second)
}

// record is the JSON shape of a sample.
type record struct {
	Timestamp float64     `json:"timestamp"`
	Trace     stack.Trace `json:"trace"`
}

func (s Sample) record() record {
	return record{Timestamp: s.Seconds(), Trace: s.Trace}
}

// Multi pushes every sample to all of its sinks.
type Multi []Sink

// Push forwards to each sink and joins their errors.
func (m Multi) Push(ts time.Time, trace stack.Trace) error {
	var errs []error
	for _, s := range m {
		if err := s.Push(ts, trace); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

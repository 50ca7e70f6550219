package profiler

import (
	"bytes"
	"fmt"
	"runtime/pprof"

	"github.com/danpilch/schaap/pkg/stack"
	"github.com/google/pprof/profile"
)

// parkPoints are the runtime functions a goroutine sits in while it is off
// CPU: blocked on a channel, lock, wait group, timer or note.
var parkPoints = map[string]bool{
	"gopark":       true,
	"goparkunlock": true,
	"notetsleepg":  true,
	"notetsleep":   true,
	"notesleep":    true,
	"semacquire1":  true,
	"timeSleep":    true,
}

// Sampler snapshots goroutine stacks through the runtime's goroutine
// profile. It reuses one buffer across calls and is not safe for concurrent
// use.
type Sampler struct {
	// IncludeParked keeps goroutines that are blocked in the runtime. By
	// default only running or runnable goroutines are returned.
	IncludeParked bool

	buf bytes.Buffer
}

// Sample returns one root-first trace for every distinct goroutine stack
// whose pprof labels satisfy match. A nil match accepts every goroutine.
// Goroutines sharing both stack and labels yield a single trace.
func (s *Sampler) Sample(match func(labels map[string][]string) bool) ([]stack.Trace, error) {
	s.buf.Reset()
	if err := pprof.Lookup("goroutine").WriteTo(&s.buf, 0); err != nil {
		return nil, fmt.Errorf("write goroutine profile: %w", err)
	}
	prof, err := profile.Parse(&s.buf)
	if err != nil {
		return nil, fmt.Errorf("parse goroutine profile: %w", err)
	}

	var traces []stack.Trace
	for _, smp := range prof.Sample {
		if match != nil && !match(smp.Label) {
			continue
		}
		trace := stack.Walk(stack.ProfileFrames(smp))
		if !s.IncludeParked && Parked(trace) {
			continue
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

// Parked reports whether the innermost frame of trace is a runtime park or
// sleep point. An empty trace counts as parked.
func Parked(trace stack.Trace) bool {
	leaf, ok := trace.Leaf()
	if !ok {
		return true
	}
	return leaf.Module == "runtime" && parkPoints[leaf.Function]
}

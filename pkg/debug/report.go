// Package debug provides reports and instrumentation for profiling sessions.
package debug

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danpilch/schaap/pkg/profiler"
	"github.com/danpilch/schaap/pkg/sink"
	"github.com/danpilch/schaap/pkg/stack"
)

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	debugWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// SinkTiming records how long pushes to a sink took.
type SinkTiming struct {
	Name   string
	Pushes uint64
	Total  time.Duration
	Max    time.Duration
}

// Mean returns the average push duration.
func (s SinkTiming) Mean() time.Duration {
	if s.Pushes == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Pushes)
}

// TimedSink wraps a sink to record push durations.
type TimedSink struct {
	inner sink.Sink

	mu     sync.Mutex
	timing SinkTiming
}

// NewTimedSink wraps s with timing instrumentation.
func NewTimedSink(name string, s sink.Sink) *TimedSink {
	return &TimedSink{
		inner:  s,
		timing: SinkTiming{Name: name},
	}
}

// Push forwards to the wrapped sink and records the duration.
func (t *TimedSink) Push(ts time.Time, trace stack.Trace) error {
	start := time.Now()
	err := t.inner.Push(ts, trace)
	d := time.Since(start)

	t.mu.Lock()
	t.timing.Pushes++
	t.timing.Total += d
	t.timing.Max = max(t.timing.Max, d)
	t.mu.Unlock()
	return err
}

// Timing returns the timings recorded so far.
func (t *TimedSink) Timing() SinkTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timing
}

// SessionReport prints a styled summary of a profiling session.
func SessionReport(w io.Writer, st profiler.Stats, timings ...SinkTiming) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Profiling Session Report"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 50)))

	elapsed := time.Duration(0)
	if !st.Ended.IsZero() {
		elapsed = st.Ended.Sub(st.Started)
	}

	row := func(name string, value any) {
		fmt.Fprintf(w, "  %-16s %v\n", name, value)
	}
	row("Session", st.ID)
	row("Interval", st.Config.Interval)
	row("Delay", st.Config.Delay)
	row("Wall time", elapsed.Round(time.Millisecond))
	row("CPU time", st.CPUTime.Round(time.Millisecond))
	row("Ticks", st.Ticks)
	row("Samples", st.Samples)
	row("Empty ticks", st.EmptyTicks)

	dropped := fmt.Sprintf("%d", st.Dropped)
	if st.Dropped > 0 {
		dropped = debugWarn.Render(dropped)
	}
	row("Dropped", dropped)

	captureErrs := fmt.Sprintf("%d", st.CaptureErrors)
	if st.CaptureErrors > 0 {
		captureErrs = debugWarn.Render(captureErrs)
	}
	row("Capture errors", captureErrs)

	if len(timings) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s\n",
		debugHeader.Render("SINK               "),
		debugHeader.Render("PUSHES    "),
		debugHeader.Render("MEAN        "),
		debugHeader.Render("MAX         "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 50)))
	for _, t := range timings {
		fmt.Fprintf(w, "  %-20s %-11d %-13v %v\n", t.Name, t.Pushes, t.Mean(), t.Max)
	}
}

// DumpSamples prints captured samples, oldest first, one row per sample.
func DumpSamples(w io.Writer, samples []sink.Sample) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Sample Dump"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 85)))
	if line := DepthSparkline(samples); line != "" {
		fmt.Fprintf(w, "  %-17s %s\n", "Depth", line)
	}
	fmt.Fprintf(w, "  %s %s %s\n",
		debugHeader.Render("TIME           "),
		debugHeader.Render("DEPTH"),
		debugHeader.Render("LEAF                                              "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 85)))

	for _, s := range samples {
		leaf, ok := s.Trace.Leaf()
		name := debugDim.Render("(empty)")
		if ok {
			name = leaf.String()
		}
		fmt.Fprintf(w, "  %-17s %-7d %s\n", s.Time.Format("15:04:05.000000"), len(s.Trace), name)
	}
}

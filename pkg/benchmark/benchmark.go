// Package benchmark measures the profiler's own cost per tick.
package benchmark

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danpilch/schaap/pkg/profiler"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions returns sensible benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Iterations: 200,
		Warmup:     10,
	}
}

// Result holds the cost of taking one stack snapshot of every goroutine.
type Result struct {
	Latencies   []time.Duration
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Goroutines  float64 // mean distinct stacks per snapshot
	MeanDepth   float64
	DepthStdDev float64
	Errors      int
}

// Overhead holds the tool's own resource usage.
type Overhead struct {
	AllocBytes uint64
	AllocCount uint64
	GCPauses   uint32
}

var (
	bmTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bmHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	bmDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run times opts.Iterations snapshots, the work done on every tick, after
// opts.Warmup untimed ones.
func Run(opts Options) Result {
	// Keep parked goroutines so the depth statistics cover the whole process.
	s := profiler.Sampler{IncludeParked: true}

	for i := 0; i < opts.Warmup; i++ {
		_, _ = s.Sample(nil)
	}

	var (
		latencies = make([]time.Duration, 0, opts.Iterations)
		depths    []float64
		stacks    int
		errs      int
	)
	for i := 0; i < opts.Iterations; i++ {
		start := time.Now()
		traces, err := s.Sample(nil)
		latencies = append(latencies, time.Since(start))
		if err != nil {
			errs++
			continue
		}
		stacks += len(traces)
		for _, tr := range traces {
			depths = append(depths, float64(len(tr)))
		}
	}

	// Sort latencies for percentile calculation
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	result := Result{
		Latencies:   latencies,
		P50:         percentile(latencies, 0.50),
		P95:         percentile(latencies, 0.95),
		P99:         percentile(latencies, 0.99),
		MeanDepth:   mean(depths),
		DepthStdDev: stddev(depths),
		Errors:      errs,
	}
	if ok := opts.Iterations - errs; ok > 0 {
		result.Goroutines = float64(stacks) / float64(ok)
	}
	return result
}

// MeasureOverhead returns the tool's memory overhead so far.
func MeasureOverhead() Overhead {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Overhead{
		AllocBytes: m.TotalAlloc,
		AllocCount: m.Mallocs,
		GCPauses:   m.NumGC,
	}
}

// MaxRate estimates the highest sampling rate the tick goroutine can keep up
// with, from the P95 snapshot latency.
func (r Result) MaxRate() float64 {
	if r.P95 <= 0 {
		return 0
	}
	return float64(time.Second) / float64(r.P95)
}

// RenderResults outputs styled benchmark results.
func RenderResults(w io.Writer, r Result, overhead Overhead) {
	fmt.Fprintln(w, bmTitle.Render("Self-Benchmark Results"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		bmHeader.Render("SNAPSHOTS "),
		bmHeader.Render("P50        "),
		bmHeader.Render("P95        "),
		bmHeader.Render("P99        "),
		bmHeader.Render("MAX RATE  "))
	fmt.Fprintln(w, "  "+bmDim.Render(strings.Repeat("─", 70)))
	fmt.Fprintf(w, "  %-12d %-12v %-12v %-12v %.0f Hz\n",
		len(r.Latencies), r.P50, r.P95, r.P99, r.MaxRate())

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Stacks per snapshot: %.1f\n", r.Goroutines)
	fmt.Fprintf(w, "  Stack depth:         %.1f ± %.1f\n", r.MeanDepth, r.DepthStdDev)
	if r.Errors > 0 {
		fmt.Fprintf(w, "  Snapshot errors:     %d\n", r.Errors)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bmTitle.Render("Tool Overhead"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  Memory allocated: %s\n", lipgloss.NewStyle().Bold(true).Render(formatBytes(overhead.AllocBytes)))
	fmt.Fprintf(w, "  Allocations:      %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.AllocCount)))
	fmt.Fprintf(w, "  GC pauses:        %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	m := sum / n
	variance := (sumSq / n) - (m * m)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

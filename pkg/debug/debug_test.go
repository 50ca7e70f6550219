package debug

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/danpilch/schaap/pkg/profiler"
	"github.com/danpilch/schaap/pkg/sink"
	"github.com/danpilch/schaap/pkg/stack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimedSink(t *testing.T) {
	boom := errors.New("boom")
	ts := NewTimedSink("slow", sink.Func(func(time.Time, stack.Trace) error {
		time.Sleep(time.Millisecond)
		return boom
	}))

	require.ErrorIs(t, ts.Push(time.Now(), nil), boom)
	require.ErrorIs(t, ts.Push(time.Now(), nil), boom)

	timing := ts.Timing()
	assert.Equal(t, "slow", timing.Name)
	assert.Equal(t, uint64(2), timing.Pushes)
	assert.GreaterOrEqual(t, timing.Max, time.Millisecond)
	assert.GreaterOrEqual(t, timing.Mean(), time.Millisecond)
	assert.Zero(t, SinkTiming{}.Mean())
}

func TestSessionReport(t *testing.T) {
	start := time.Now()
	st := profiler.Stats{
		ID:      "42-1",
		Config:  profiler.DefaultConfig(),
		Ticks:   12,
		Samples: 10,
		Dropped: 2,
		Started: start,
		Ended:   start.Add(time.Second),
		CPUTime: 750 * time.Millisecond,
	}

	var buf bytes.Buffer
	SessionReport(&buf, st, SinkTiming{Name: "ring", Pushes: 10, Total: time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "Profiling Session Report")
	assert.Contains(t, out, "42-1")
	assert.Contains(t, out, "10ms")
	assert.Contains(t, out, "ring")
	assert.Contains(t, out, "CPU time")
	assert.Contains(t, out, "750ms")
}

func TestDumpSamples(t *testing.T) {
	samples := []sink.Sample{
		{Time: time.Now(), Trace: stack.Trace{{Module: "m", Function: "main", Line: 3}, {Module: "m", Function: "T.work", Line: 9}}},
		{Time: time.Now()},
	}

	var buf bytes.Buffer
	DumpSamples(&buf, samples)

	out := buf.String()
	assert.Contains(t, out, "m.T.work:9")
	assert.Contains(t, out, "(empty)")
}

func TestStartServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "schaap_test_total", Help: "test"}).Inc()

	addr, stop, err := StartServer("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "schaap_test_total 1")
}

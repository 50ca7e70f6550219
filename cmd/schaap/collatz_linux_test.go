//go:build linux

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/danpilch/schaap/pkg/stack"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleLine struct {
	Timestamp float64     `json:"timestamp"`
	Trace     stack.Trace `json:"trace"`
}

type collectorServer struct {
	*httptest.Server

	mu      sync.Mutex
	samples []sampleLine
}

func newCollectorServer(t *testing.T) *collectorServer {
	c := &collectorServer{}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var batch struct {
			Samples []sampleLine `json:"samples"`
		}
		if err := json.NewDecoder(zr).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.samples = append(c.samples, batch.Samples...)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *collectorServer) received() []sampleLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sampleLine(nil), c.samples...)
}

func index(trace stack.Trace, match func(stack.Location) bool) int {
	for i, loc := range trace {
		if match(loc) {
			return i
		}
	}
	return -1
}

func TestCollatzProfilesWorkload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "samples.jsonl")
	coll := newCollectorServer(t)

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{
		"collatz",
		"--max", "300000",
		"--interval", "1ms",
		"--delay", "0",
		"-o", out,
		"--format", "json",
		"--collector-url", coll.URL,
		"--report",
		"--dump",
	})
	require.NoError(t, root.Execute())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var lines []sampleLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var line sampleLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line), sc.Text())
		lines = append(lines, line)
	}
	require.NoError(t, sc.Err())
	require.NotEmpty(t, lines)

	busy := 0
	for i, line := range lines {
		assert.Positive(t, line.Timestamp)
		if i > 0 {
			assert.GreaterOrEqual(t, line.Timestamp, lines[i-1].Timestamp)
		}
		actor := index(line.Trace, func(l stack.Location) bool {
			return l.Module == "main" && strings.HasPrefix(l.Function, "runCollatz")
		})
		require.GreaterOrEqual(t, actor, 0, line.Trace.String())
		work := index(line.Trace, func(l stack.Location) bool {
			return strings.HasSuffix(l.Module, "pkg/workload")
		})
		if work >= 0 {
			busy++
			assert.Less(t, actor, work, "trace must be root-first: %s", line.Trace)
		}
	}
	assert.Positive(t, busy)

	// The collector's final flush runs before the command returns.
	assert.Len(t, coll.received(), len(lines))

	assert.Contains(t, stderr.String(), "Profiling Session Report")
	assert.Contains(t, stderr.String(), "collector")
	assert.Contains(t, stderr.String(), "Sample Dump")
	assert.Empty(t, stdout.String())
}

func TestCollatzTextToStdout(t *testing.T) {
	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"collatz", "--max", "300000", "--interval", "1ms", "--delay", "0"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.NotEmpty(t, lines[0])
	for _, line := range lines {
		ts, trace, ok := strings.Cut(line, " ")
		require.True(t, ok, line)
		assert.Regexp(t, `^\d+\.\d{6}$`, ts)
		assert.Contains(t, trace, "main.runCollatz")
	}
}

package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	mu       sync.Mutex
	statuses []int
	requests int
	samples  []record
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := http.StatusOK
	if f.requests < len(f.statuses) {
		status = f.statuses[f.requests]
	}
	f.requests++
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	if r.Header.Get("Content-Encoding") != "gzip" {
		http.Error(w, "expected gzip", http.StatusBadRequest)
		return
	}
	zr, err := gzip.NewReader(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var payload batchPayload
	if err := json.NewDecoder(zr).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.samples = append(f.samples, payload.Samples...)
}

func (f *fakeCollector) received() (int, []record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, append([]record(nil), f.samples...)
}

func newTestCollector(t *testing.T, f *fakeCollector, reg prometheus.Registerer) *Collector {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	opts := DefaultCollectorOptions()
	opts.URL = srv.URL
	opts.FlushInterval = 2 * time.Second
	opts.MaxBatch = 3
	c, err := NewCollector(nil, reg, opts)
	require.NoError(t, err)
	return c
}

func TestCollectorRequiresURL(t *testing.T) {
	_, err := NewCollector(nil, nil, DefaultCollectorOptions())
	assert.Error(t, err)
}

func TestCollectorFlush(t *testing.T) {
	f := &fakeCollector{}
	reg := prometheus.NewRegistry()
	c := newTestCollector(t, f, reg)

	ts := time.Unix(1700000000, 0)
	require.NoError(t, c.Push(ts, testTrace))
	require.NoError(t, c.Push(ts.Add(time.Second), testTrace))
	require.NoError(t, c.Flush(context.Background()))

	_, samples := f.received()
	require.Len(t, samples, 2)
	assert.InDelta(t, 1700000001.0, samples[1].Timestamp, 1e-6)
	assert.Equal(t, testTrace, samples[0].Trace)
	assert.InDelta(t, 2, testutil.ToFloat64(c.metrics.sent), 0)

	// Nothing pending, nothing sent.
	require.NoError(t, c.Flush(context.Background()))
	requests, _ := f.received()
	assert.Equal(t, 1, requests)
}

func TestCollectorBatchLimit(t *testing.T) {
	c := newTestCollector(t, &fakeCollector{}, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Push(time.Now(), testTrace))
	}
	assert.ErrorIs(t, c.Push(time.Now(), testTrace), ErrFull)
	assert.Equal(t, uint64(1), c.Dropped())
}

func TestCollectorRetriesServerErrors(t *testing.T) {
	f := &fakeCollector{statuses: []int{http.StatusServiceUnavailable}}
	reg := prometheus.NewRegistry()
	c := newTestCollector(t, f, reg)

	require.NoError(t, c.Push(time.Now(), testTrace))
	require.NoError(t, c.Flush(context.Background()))

	requests, samples := f.received()
	assert.Equal(t, 2, requests)
	assert.Len(t, samples, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.retries), 0)
}

func TestCollectorDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeCollector{statuses: []int{http.StatusBadRequest}}
	c := newTestCollector(t, f, nil)

	require.NoError(t, c.Push(time.Now(), testTrace))
	require.Error(t, c.Flush(context.Background()))

	requests, _ := f.received()
	assert.Equal(t, 1, requests)
	assert.Equal(t, uint64(1), c.Dropped())
}

func TestCollectorRunFlushesOnShutdown(t *testing.T) {
	f := &fakeCollector{}
	c := newTestCollector(t, f, nil)
	require.NoError(t, c.Push(time.Now(), testTrace))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	_, samples := f.received()
	assert.Len(t, samples, 1)
	at, err := c.LastFlush()
	assert.NoError(t, err)
	assert.False(t, at.IsZero())
}

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danpilch/schaap/pkg/stack"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	URL           string
	FlushInterval time.Duration
	MaxBatch      int // samples held between flushes; more are dropped
	Timeout       time.Duration
	Client        *http.Client
}

// DefaultCollectorOptions returns sensible defaults. URL must still be set.
func DefaultCollectorOptions() CollectorOptions {
	return CollectorOptions{
		FlushInterval: 5 * time.Second,
		MaxBatch:      10000,
		Timeout:       10 * time.Second,
	}
}

type collectorMetrics struct {
	retries prometheus.Counter
	sent    prometheus.Counter
	dropped prometheus.Counter
	latency prometheus.Histogram
}

func newCollectorMetrics(reg prometheus.Registerer) *collectorMetrics {
	var m collectorMetrics

	m.retries = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "schaap_collector_retries_total",
		Help: "Total number of retried sample batch uploads.",
	})
	m.sent = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "schaap_collector_samples_sent_total",
		Help: "Total number of samples delivered to the collector.",
	})
	m.dropped = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "schaap_collector_samples_dropped_total",
		Help: "Total number of samples dropped because the batch was full or the upload failed.",
	})
	m.latency = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:                        "schaap_collector_flush_latency_seconds",
		Help:                        "Latency of sample batch uploads including retries.",
		NativeHistogramBucketFactor: 1.1,
	})
	return &m
}

// Collector ships samples to a remote collector over HTTP. Push only appends
// to an in-memory batch; Run uploads the batch every FlushInterval as a
// gzip-compressed JSON document.
type Collector struct {
	logger  *logrus.Logger
	metrics *collectorMetrics
	opts    CollectorOptions
	client  *http.Client

	mtx   sync.Mutex
	batch []Sample

	dropped atomic.Uint64

	lastFlushAt  time.Time
	lastFlushErr error
}

// NewCollector creates a Collector. reg may be nil.
func NewCollector(logger *logrus.Logger, reg prometheus.Registerer, opts CollectorOptions) (*Collector, error) {
	if opts.URL == "" {
		return nil, errors.New("collector url is required")
	}
	def := DefaultCollectorOptions()
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = def.MaxBatch
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Collector{
		logger:  logger,
		metrics: newCollectorMetrics(reg),
		opts:    opts,
		client:  client,
	}, nil
}

// Push adds the sample to the pending batch.
func (c *Collector) Push(ts time.Time, trace stack.Trace) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if len(c.batch) >= c.opts.MaxBatch {
		c.dropped.Inc()
		c.metrics.dropped.Inc()
		return ErrFull
	}
	c.batch = append(c.batch, Sample{Time: ts, Trace: trace})
	return nil
}

// Run flushes the batch every FlushInterval until ctx is done, then makes a
// last attempt bounded by Timeout.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
			c.report(time.Now(), c.Flush(final))
			cancel()
			return nil
		case <-ticker.C:
		}

		c.report(time.Now(), c.Flush(ctx))
	}
}

// Flush uploads the pending batch, retrying with exponential backoff for at
// most one flush interval. Samples of a batch that could not be delivered are
// dropped.
func (c *Collector) Flush(ctx context.Context) error {
	c.mtx.Lock()
	batch := c.batch
	c.batch = nil
	c.mtx.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		c.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	body, err := encodeBatch(batch)
	if err != nil {
		c.drop(len(batch))
		return err
	}

	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.MaxElapsedTime = c.opts.FlushInterval
	expBackOff.InitialInterval = 250 * time.Millisecond

	err = backoff.RetryNotify(func() error {
		return c.send(ctx, body)
	}, backoff.WithContext(expBackOff, ctx), func(err error, next time.Duration) {
		c.metrics.retries.Inc()
		c.logger.WithFields(logrus.Fields{
			"count": len(batch),
			"retry": next,
			"error": err,
		}).Debug("Collector upload failed, retrying")
	})
	if err != nil {
		c.drop(len(batch))
		c.logger.WithFields(logrus.Fields{
			"count": len(batch),
			"error": err,
		}).Warn("Collector upload failed")
		return err
	}

	c.metrics.sent.Add(float64(len(batch)))
	c.logger.WithField("count", len(batch)).Debug("Collector upload succeeded")
	return nil
}

// Dropped returns the number of samples that never reached the collector.
func (c *Collector) Dropped() uint64 {
	return c.dropped.Load()
}

// LastFlush returns the time and outcome of the last flush made by Run.
func (c *Collector) LastFlush() (time.Time, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lastFlushAt, c.lastFlushErr
}

func (c *Collector) report(at time.Time, err error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.lastFlushAt = at
	c.lastFlushErr = err
}

func (c *Collector) drop(n int) {
	c.dropped.Add(uint64(n))
	c.metrics.dropped.Add(float64(n))
}

func (c *Collector) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post samples: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 == 2 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("collector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// batchPayload is the document posted to the collector.
type batchPayload struct {
	Samples []record `json:"samples"`
}

func encodeBatch(batch []Sample) ([]byte, error) {
	payload := batchPayload{Samples: make([]record, len(batch))}
	for i, s := range batch {
		payload.Samples[i] = s.record()
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode samples: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress samples: %w", err)
	}
	return buf.Bytes(), nil
}

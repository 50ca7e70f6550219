package profiler

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/danpilch/schaap/pkg/sink"
	"github.com/danpilch/schaap/pkg/timer"
	"github.com/danpilch/schaap/pkg/workload"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

var (
	active     atomic.Bool
	sessionSeq atomic.Uint64
)

// Stats summarises a session.
type Stats struct {
	ID            string
	Config        Config
	Ticks         uint64
	Samples       uint64
	Dropped       uint64
	EmptyTicks    uint64
	CaptureErrors uint64
	Started       time.Time
	Ended         time.Time
	// CPUTime is the user plus system CPU time the whole process consumed
	// between Begin and End. Zero until End, or where it cannot be read.
	CPUTime time.Duration
}

// Session is an armed profiling timer. Only one session may be active per
// process; End releases it.
type Session struct {
	id      string
	cfg     Config
	sink    sink.Sink
	logger  *logrus.Logger
	handler *handler

	parent context.Context
	ctx    context.Context

	started  time.Time
	cpuStart time.Duration
	cpuErr   error

	endOnce sync.Once
	mu      sync.Mutex
	ended   time.Time
	cpuTime time.Duration
	endErr  error
}

// Begin starts a session. The calling goroutine becomes profiled; so does
// every goroutine started with Session.Context. A nil sink defaults to a
// ring buffer of sink.DefaultRingCapacity samples.
//
// Begin fails with ErrAlreadyActive while another session runs, and with an
// error wrapping timer.ErrPlatformUnsupported where no CPU-time timer is
// available. On failure nothing is left armed.
//
// End must be called on the goroutine that called Begin.
func Begin(ctx context.Context, cfg Config, s sink.Sink, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	if s == nil {
		s = sink.NewRing(sink.DefaultRingCapacity)
	}
	if err := cfg.timer().Validate(); err != nil {
		return nil, err
	}
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}

	id := fmt.Sprintf("%d-%d", os.Getpid(), sessionSeq.Inc())
	labeled := pprof.WithLabels(ctx, pprof.Labels(SessionLabel, id))
	pprof.SetGoroutineLabels(labeled)

	h := newHandler(id, o.scope, s, o.logger, newMetrics(o.reg, id))
	if err := timer.Arm(cfg.timer(), h.onTick); err != nil {
		pprof.SetGoroutineLabels(ctx)
		active.Store(false)
		return nil, fmt.Errorf("arm profiling timer: %w", err)
	}

	log := o.logger.WithFields(logrus.Fields{
		"session":  id,
		"interval": cfg.Interval,
		"delay":    cfg.Delay,
		"scope":    o.scope,
	})
	if cfg.Interval <= 0 {
		log.Warn("Non-positive interval, sampling disabled")
	} else {
		log.Debug("Profiling session started")
	}

	cpuStart, cpuErr := workload.ProcessCPUTime()
	return &Session{
		id:       id,
		cfg:      cfg,
		sink:     s,
		logger:   o.logger,
		handler:  h,
		parent:   ctx,
		ctx:      labeled,
		started:  time.Now(),
		cpuStart: cpuStart,
		cpuErr:   cpuErr,
	}, nil
}

// Profile runs fn inside a session and ends the session on every exit path,
// including a panic in fn, which is re-raised once the timer is disarmed.
func Profile(ctx context.Context, cfg Config, s sink.Sink, fn func(context.Context) error, opts ...Option) (err error) {
	sess, err := Begin(ctx, cfg, s, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := sess.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()
	return fn(sess.Context())
}

// End disarms the timer, restores the caller's goroutine labels and releases
// the session slot. Only the first call has an effect.
func (s *Session) End() error {
	s.endOnce.Do(func() {
		err := timer.Disarm()
		pprof.SetGoroutineLabels(s.parent)
		active.Store(false)
		cpuEnd, cpuErr := workload.ProcessCPUTime()

		s.mu.Lock()
		s.ended = time.Now()
		if s.cpuErr == nil && cpuErr == nil {
			s.cpuTime = cpuEnd - s.cpuStart
		}
		s.endErr = err
		s.mu.Unlock()

		st := s.Stats()
		s.logger.WithFields(logrus.Fields{
			"session": s.id,
			"ticks":   st.Ticks,
			"samples": st.Samples,
			"dropped": st.Dropped,
			"cpu":     st.CPUTime,
		}).Debug("Profiling session ended")
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// Context returns a context carrying the session label. Goroutines that
// apply it (pprof.SetGoroutineLabels or pprof.Do) are profiled, and so are
// goroutines started from a labelled goroutine.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID returns the session label value.
func (s *Session) ID() string {
	return s.id
}

// Sink returns the sink samples are pushed to.
func (s *Session) Sink() sink.Sink {
	return s.sink
}

// Stats returns the session counters so far.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	ended, cpuTime := s.ended, s.cpuTime
	s.mu.Unlock()

	c := &s.handler.stats
	return Stats{
		ID:            s.id,
		Config:        s.cfg,
		Ticks:         c.ticks.Load(),
		Samples:       c.samples.Load(),
		Dropped:       c.dropped.Load(),
		EmptyTicks:    c.emptyTicks.Load(),
		CaptureErrors: c.captureErrors.Load(),
		Started:       s.started,
		Ended:         ended,
		CPUTime:       cpuTime,
	}
}

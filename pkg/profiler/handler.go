package profiler

import (
	"fmt"
	"slices"
	"time"

	"github.com/danpilch/schaap/pkg/sink"
	"github.com/danpilch/schaap/pkg/stack"
	"github.com/danpilch/schaap/pkg/timer"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

type counters struct {
	ticks         atomic.Uint64
	samples       atomic.Uint64
	dropped       atomic.Uint64
	emptyTicks    atomic.Uint64
	captureErrors atomic.Uint64
}

// handler runs on the tick goroutine, one tick at a time. Nothing it does
// may fail the profiled program: snapshot and sink errors are counted and
// the tick is abandoned.
type handler struct {
	session string
	scope   Scope
	sink    sink.Sink
	logger  *logrus.Entry
	metrics *metrics

	sampler Sampler
	stats   counters
}

func newHandler(session string, scope Scope, s sink.Sink, logger *logrus.Logger, m *metrics) *handler {
	return &handler{
		session: session,
		scope:   scope,
		sink:    s,
		logger:  logger.WithField("session", session),
		metrics: m,
	}
}

func (h *handler) onTick(now time.Time) {
	start := time.Now()
	defer func() {
		h.metrics.tickDuration.Observe(time.Since(start).Seconds())
	}()
	h.stats.ticks.Inc()
	h.metrics.ticks.Inc()

	traces, err := h.sampler.Sample(h.wants)
	if err != nil {
		h.stats.captureErrors.Inc()
		h.metrics.captureErrors.Inc()
		h.logger.WithError(err).Debug("Stack snapshot failed")
		return
	}
	if len(traces) == 0 {
		h.stats.emptyTicks.Inc()
	}
	for _, trace := range traces {
		h.push(now, trace)
	}
}

func (h *handler) wants(labels map[string][]string) bool {
	if h.scope == ScopeProcess {
		return !slices.Contains(labels[timer.RoleLabel], timer.SamplerRole)
	}
	return slices.Contains(labels[SessionLabel], h.session)
}

func (h *handler) push(now time.Time, trace stack.Trace) {
	defer func() {
		if r := recover(); r != nil {
			h.drop(fmt.Errorf("sink panicked: %v", r))
		}
	}()
	if err := h.sink.Push(now, trace); err != nil {
		h.drop(err)
		return
	}
	h.stats.samples.Inc()
	h.metrics.samples.Inc()
}

func (h *handler) drop(err error) {
	h.stats.dropped.Inc()
	h.metrics.dropped.Inc()
	h.logger.WithError(err).Debug("Sample dropped")
}

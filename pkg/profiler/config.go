// Package profiler runs sampling sessions. A session arms the process-wide
// CPU-time timer; on every tick it snapshots the stacks of the profiled
// goroutines, turns each into a root-first trace and pushes it to a sink.
package profiler

import (
	"errors"
	"time"

	"github.com/danpilch/schaap/pkg/timer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 10 * time.Millisecond
	DefaultDelay    = time.Second

	// SessionLabel is the pprof goroutine label marking profiled goroutines.
	SessionLabel = "schaap_session"
)

// ErrAlreadyActive is returned by Begin while another session is running.
var ErrAlreadyActive = errors.New("profiling session already active")

// Config controls sampling cadence, in CPU time consumed by the process.
type Config struct {
	// Interval between samples. Zero or negative disables sampling.
	Interval time.Duration
	// Delay before the first sample.
	Delay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Delay:    DefaultDelay,
	}
}

func (c Config) timer() timer.Config {
	return timer.Config{Interval: c.Interval, Delay: c.Delay}
}

// Scope selects which goroutines are sampled.
type Scope int

const (
	// ScopeSession samples goroutines carrying the session label: the one
	// that called Begin and any started from Session.Context.
	ScopeSession Scope = iota
	// ScopeProcess samples every goroutine except the tick goroutine.
	ScopeProcess
)

func (s Scope) String() string {
	if s == ScopeProcess {
		return "process"
	}
	return "session"
}

type options struct {
	logger *logrus.Logger
	scope  Scope
	reg    prometheus.Registerer
}

// Option configures a session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithScope selects which goroutines are sampled.
func WithScope(s Scope) Option {
	return func(o *options) { o.scope = s }
}

// WithRegisterer registers session metrics with reg. Metrics carry a
// "session" label so consecutive sessions can share a registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		o.logger.SetLevel(logrus.WarnLevel)
	}
	return o
}

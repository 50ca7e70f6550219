// Package timer owns the process-wide CPU-time interval timer that drives
// sampling. There is a single timer and a single tick disposition per
// process, so the package exposes functions over one guarded driver rather
// than a constructor.
package timer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Goroutine label carried by the tick goroutine so samplers can leave it out
// of their snapshots.
const (
	RoleLabel   = "schaap_role"
	SamplerRole = "sampler"
)

var (
	// ErrPlatformUnsupported is returned when the host has no CPU-time
	// interval timer that can be delivered to Go code.
	ErrPlatformUnsupported = errors.New("cpu-time interval timer not supported on this platform")
	// ErrInvalidConfig is returned for configurations the timer cannot honour.
	ErrInvalidConfig = errors.New("invalid timer config")
)

// minPeriod is the timer resolution; smaller non-zero values would round
// down to zero, which setitimer treats as "disarm".
const minPeriod = time.Microsecond

// Config controls the cadence of ticks. Both durations are measured in user
// CPU time consumed by the process, not wall-clock time.
type Config struct {
	// Interval between ticks. Zero or negative stops sampling.
	Interval time.Duration
	// Delay before the first tick.
	Delay time.Duration
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidConfig, c.Delay)
	}
	return nil
}

type driver struct {
	mu    sync.Mutex
	armed bool
	stop  chan struct{}
	done  chan struct{}
	ticks atomic.Uint64
}

var process driver

// Arm installs onTick as the tick handler and starts the interval timer: the
// first tick comes after cfg.Delay, then one every cfg.Interval until Disarm.
// The clock is the process's user CPU time (ITIMER_VIRTUAL, SIGVTALRM).
// Time spent in the kernel does not advance it, so a process busy in
// syscalls gets fewer ticks than its total CPU time suggests.
// Ticks are delivered one at a time on a dedicated goroutine; while onTick
// runs, further ticks coalesce into a single pending one.
//
// Arming while armed replaces the previous handler. An Interval of zero or
// less disarms. On failure no handler or timer is left behind.
func Arm(cfg Config, onTick func(time.Time)) error {
	return process.arm(cfg, onTick)
}

// Disarm stops the timer and restores the default tick disposition. A tick
// already being handled completes before Disarm returns, so Disarm must not
// be called from onTick. Disarming an idle timer is a no-op.
func Disarm() error {
	return process.disarm()
}

// Armed reports whether the timer is currently armed.
func Armed() bool {
	process.mu.Lock()
	defer process.mu.Unlock()
	return process.armed
}

// Ticks returns the number of ticks delivered since the process started.
func Ticks() uint64 {
	return process.ticks.Load()
}

// State reads the kernel's view of the timer: its period and the CPU time
// left before the next expiry. Both are zero when disarmed.
func State() (Config, error) {
	return readTimer()
}

func (d *driver) arm(cfg Config, onTick func(time.Time)) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Interval <= 0 {
		return d.disarm()
	}
	if !supported {
		return ErrPlatformUnsupported
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.armed {
		_ = d.teardownLocked()
	}

	sigs := make(chan os.Signal, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	// The first Notify in a process starts the runtime's signal goroutine,
	// which inherits the caller's labels. Both it and the tick goroutine
	// must carry the sampler role, never a session label.
	pprof.Do(context.Background(), pprof.Labels(RoleLabel, SamplerRole), func(context.Context) {
		signal.Notify(sigs, tickSignal)
		go d.loop(sigs, stop, done, onTick)
	})

	if err := setTimer(max(cfg.Delay, minPeriod), max(cfg.Interval, minPeriod)); err != nil {
		signal.Reset(tickSignal)
		close(stop)
		<-done
		return err
	}

	d.armed = true
	d.stop = stop
	d.done = done
	return nil
}

func (d *driver) disarm() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed {
		return nil
	}
	return d.teardownLocked()
}

func (d *driver) teardownLocked() error {
	// Stop the timer before dropping the disposition. An unwanted tick signal
	// that is still pending afterwards is discarded by the Go runtime.
	err := setTimer(0, 0)
	signal.Reset(tickSignal)
	close(d.stop)
	<-d.done

	d.armed = false
	d.stop = nil
	d.done = nil
	if err != nil {
		return fmt.Errorf("disarm timer: %w", err)
	}
	return nil
}

func (d *driver) loop(sigs <-chan os.Signal, stop <-chan struct{}, done chan<- struct{}, onTick func(time.Time)) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-sigs:
		}
		select {
		case <-stop:
			return
		default:
		}
		d.ticks.Inc()
		deliver(onTick, time.Now())
	}
}

func deliver(onTick func(time.Time), now time.Time) {
	defer func() {
		_ = recover()
	}()
	onTick(now)
}

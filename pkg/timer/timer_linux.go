//go:build linux

package timer

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SIGPROF belongs to the Go runtime's own profiler and is never forwarded to
// os/signal, so ticks use the user-CPU virtual timer instead.
const supported = true

var tickSignal = unix.SIGVTALRM

func setTimer(delay, interval time.Duration) error {
	it := unix.Itimerval{
		Interval: unix.NsecToTimeval(interval.Nanoseconds()),
		Value:    unix.NsecToTimeval(delay.Nanoseconds()),
	}
	if _, err := unix.Setitimer(unix.ItimerVirtual, it); err != nil {
		if errors.Is(err, unix.ENOSYS) {
			return fmt.Errorf("%w: setitimer: %v", ErrPlatformUnsupported, err)
		}
		return fmt.Errorf("setitimer: %w", err)
	}
	return nil
}

func readTimer() (Config, error) {
	it, err := unix.Getitimer(unix.ItimerVirtual)
	if err != nil {
		return Config{}, fmt.Errorf("getitimer: %w", err)
	}
	return Config{
		Interval: time.Duration(it.Interval.Nano()),
		Delay:    time.Duration(it.Value.Nano()),
	}, nil
}

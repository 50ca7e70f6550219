//go:build unix

package workload

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// UserCPUTime returns the user-mode CPU time consumed by the process, the
// clock the virtual interval timer follows.
func UserCPUTime() (time.Duration, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, fmt.Errorf("getrusage: %w", err)
	}
	return time.Duration(ru.Utime.Nano()), nil
}

// ProcessCPUTime returns user plus system CPU time consumed by the process.
func ProcessCPUTime() (time.Duration, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, fmt.Errorf("getrusage: %w", err)
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano()), nil
}

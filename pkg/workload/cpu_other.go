//go:build !unix

package workload

import (
	"errors"
	"time"
)

var errNoRusage = errors.New("process cpu time not available on this platform")

func UserCPUTime() (time.Duration, error) {
	return 0, errNoRusage
}

func ProcessCPUTime() (time.Duration, error) {
	return 0, errNoRusage
}

//go:build !linux

package timer

import (
	"os"
	"time"
)

const supported = false

var tickSignal os.Signal

func setTimer(time.Duration, time.Duration) error {
	return ErrPlatformUnsupported
}

func readTimer() (Config, error) {
	return Config{}, ErrPlatformUnsupported
}

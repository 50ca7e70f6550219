package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Millisecond, cfg.Interval)
	assert.Equal(t, time.Second, cfg.Delay)
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "session", ScopeSession.String())
	assert.Equal(t, "process", ScopeProcess.String())
}

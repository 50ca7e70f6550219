package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Interval: 10 * time.Millisecond}.Validate())
	assert.NoError(t, Config{}.Validate())
	assert.ErrorIs(t, Config{Interval: time.Millisecond, Delay: -time.Second}.Validate(), ErrInvalidConfig)
}

func TestArmInvalidConfig(t *testing.T) {
	err := Arm(Config{Interval: time.Millisecond, Delay: -1}, func(time.Time) {})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, Armed())
}

func TestDisarmIdempotent(t *testing.T) {
	require.NoError(t, Disarm())
	require.NoError(t, Disarm())
	assert.False(t, Armed())
}

func TestArmNonPositiveIntervalStops(t *testing.T) {
	require.NoError(t, Arm(Config{Interval: 0}, func(time.Time) {}))
	assert.False(t, Armed())
	require.NoError(t, Arm(Config{Interval: -time.Second}, func(time.Time) {}))
	assert.False(t, Armed())
}

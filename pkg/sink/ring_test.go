package sink

import (
	"testing"
	"time"

	"github.com/danpilch/schaap/pkg/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushN(t *testing.T, r *Ring, n int) {
	t.Helper()
	base := time.Unix(1000, 0)
	for i := 0; i < n; i++ {
		require.NoError(t, r.Push(base.Add(time.Duration(i)*time.Second), stack.Trace{{Function: "f", Line: i}}))
	}
}

func TestRingOrder(t *testing.T) {
	r := NewRing(3)
	pushN(t, r, 2)

	got := r.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Trace[0].Line)
	assert.Equal(t, 1, got[1].Trace[0].Line)
	assert.Zero(t, r.Overwritten())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	pushN(t, r, 5)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Overwritten())

	got := r.Snapshot()
	require.Len(t, got, 3)
	for i, s := range got {
		assert.Equal(t, i+2, s.Trace[0].Line)
	}
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Time.After(got[i-1].Time))
	}
}

func TestRingDrain(t *testing.T) {
	r := NewRing(4)
	pushN(t, r, 6)

	got := r.Drain()
	assert.Len(t, got, 4)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())

	pushN(t, r, 1)
	assert.Equal(t, 1, r.Len())
}

func TestRingDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultRingCapacity, NewRing(0).Cap())
}

package dedup

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsetMarkTreatsEverythingAsNew(t *testing.T) {
	t.Parallel()

	var h HighWaterMark
	_, ok := h.Value()
	assert.False(t, ok)
	assert.True(t, h.IsNew(1))
	assert.True(t, h.Advance(1))

	v, ok := h.Value()
	require.True(t, ok)
	assert.Equal(t, uint32(1), v)
}

func TestBaselineFromExistingInbox(t *testing.T) {
	t.Parallel()

	var h HighWaterMark
	latest, ok := Max([]uint32{1, 3, 2})
	require.True(t, ok)
	h.Baseline(latest)

	for _, id := range []uint32{1, 2, 3} {
		assert.False(t, h.IsNew(id), "id %d", id)
		assert.False(t, h.Advance(id), "id %d", id)
	}
	assert.True(t, h.IsNew(4))
}

func TestBaselineNeverLowersMark(t *testing.T) {
	t.Parallel()

	var h HighWaterMark
	h.Baseline(10)
	h.Baseline(4)

	v, _ := h.Value()
	assert.Equal(t, uint32(10), v)
}

func TestReplayingLatestIDDoesNotAdvance(t *testing.T) {
	t.Parallel()

	var h HighWaterMark
	require.True(t, h.Advance(7))
	assert.False(t, h.Advance(7))
	assert.False(t, h.Advance(7))
}

func TestMarkIsMonotonic(t *testing.T) {
	t.Parallel()

	var h HighWaterMark
	r := rand.New(rand.NewPCG(1, 2))
	var prev uint32
	for range 1000 {
		id := r.Uint32N(500)
		if r.IntN(2) == 0 {
			h.Baseline(id)
		} else {
			h.Advance(id)
		}
		v, _ := h.Value()
		require.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestMaxEmpty(t *testing.T) {
	t.Parallel()

	_, ok := Max(nil)
	assert.False(t, ok)
}

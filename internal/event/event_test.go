package event

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("é", 10)
	got := Truncate(s, 4)
	assert.Equal(t, 4, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateShortStringUnchanged(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hello", Truncate("hello", 50))
	assert.Empty(t, Truncate("hello", 0))
}

func TestNewBatchAssignsDistinctIDs(t *testing.T) {
	t.Parallel()

	a := NewBatch([]RawEvent{{Account: "a"}})
	b := NewBatch([]RawEvent{{Account: "b"}})
	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 1, a.Len())
}

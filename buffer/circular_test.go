package buffer

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularInt(t *testing.T) {
	assert := assert.New(t)

	ci := NewCircular[int](6)
	assert.Equal(6, ci.BufSize)
	assert.Equal(0, ci.Count)
	assert.Empty(slices.Collect(ci.All()))

	ci.Add(1)
	ci.Add(2)
	ci.Add(3)
	ci.Add(4)
	ci.Add(5)
	assert.Equal(6, ci.BufSize)
	assert.Equal(5, ci.Count)
	assert.False(ci.Full())
	assert.Equal([]int{1, 2, 3, 4, 5}, slices.Collect(ci.All()))

	ci.Add(6)
	assert.Equal(6, ci.Count)
	assert.True(ci.Full())
	assert.Equal([]int{1, 2, 3, 4, 5, 6}, slices.Collect(ci.All()))

	// 1 2 3 4 5 6 add 8 add 8 => 8 8 3 4 5 6
	ci.Add(8)
	ci.Add(8)
	assert.Equal([]int{3, 4, 5, 6, 8, 8}, slices.Collect(ci.All()))
	assert.Equal(int64(8), ci.TotalSeen)

	ci.Reset()
	assert.Equal(0, ci.Count)
	assert.Equal(int64(8), ci.TotalSeen)
	assert.Empty(slices.Collect(ci.All()))
}

func TestCircularFraction(t *testing.T) {
	assert := assert.New(t)

	cb := NewCircular[bool](4)
	isTrue := func(b bool) bool { return b }
	assert.Equal(0.0, cb.Fraction(isTrue))

	cb.Add(true)
	cb.Add(false)
	assert.InDelta(0.5, cb.Fraction(isTrue), 1e-12)

	cb.Add(true)
	cb.Add(true)
	cb.Add(true) // drops the first true
	assert.InDelta(0.75, cb.Fraction(isTrue), 1e-12)

	tiny := NewCircular[bool](0)
	assert.Equal(1, tiny.BufSize)
}

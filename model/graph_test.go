package model

import (
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// 0:a  1:b(det of a,c)  2:c  3:d(stoch of b)  4:e(det of b)  5:f(stoch of e)
func sampleGraph(t *testing.T) *Graph {
	kinds := []Kind{KindStochastic, KindDeterministic, KindStochastic, KindStochastic, KindDeterministic, KindStochastic}
	parents := [][]int{nil, {2, 0, 0}, nil, {1}, {1}, {4}}
	g, err := NewGraph(kinds, parents, []string{"a", "b", "c", "d", "e", "f"})
	assert.NoError(t, err)
	return g
}

func TestGraphStructure(t *testing.T) {
	assert := assert.New(t)
	g := sampleGraph(t)

	assert.Equal(6, g.Len())
	assert.Equal([]int{0, 2}, g.Parents(1), "sorted and unique")
	assert.Equal([]int{1}, g.Children(0))
	assert.Equal([]int{3, 4}, g.Children(1))
	assert.Empty(g.Parents(0))
	assert.Empty(g.Children(5))
}

func TestTopologicalOrder(t *testing.T) {
	assert := assert.New(t)
	g := sampleGraph(t)

	order := slices.Collect(g.TopologicalOrder())
	assert.Equal([]int{0, 2, 1, 3, 4, 5}, order)
	for i, v := range order {
		assert.Equal(i, g.Rank(v))
		for _, p := range g.Parents(v) {
			assert.Less(g.Rank(p), i)
		}
	}

	// early stop
	var first []int
	for v := range g.TopologicalOrder() {
		first = append(first, v)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal([]int{0, 2}, first)

	// declaration order breaks ties even when a later node is ready first
	kinds := []Kind{KindStochastic, KindStochastic, KindStochastic}
	g2, err := NewGraph(kinds, [][]int{{2}, nil, nil}, []string{"x", "y", "z"})
	assert.NoError(err)
	assert.Equal([]int{1, 2, 0}, slices.Collect(g2.TopologicalOrder()))
}

func TestGraphDependencies(t *testing.T) {
	assert := assert.New(t)
	g := sampleGraph(t)

	det, stoch := g.Dependencies(0)
	assert.Equal([]int{1, 4}, det)
	assert.Equal([]int{3, 5}, stoch)

	det, stoch = g.Dependencies(3)
	assert.Empty(det)
	assert.Empty(stoch)

	assert.Equal([]int{1, 4}, g.Descendants([]int{2}))
	assert.Equal([]int{4}, g.Descendants([]int{1}))
}

func TestGraphCycles(t *testing.T) {
	assert := assert.New(t)
	kinds := []Kind{KindDeterministic, KindDeterministic, KindStochastic}

	_, err := NewGraph(kinds, [][]int{{1}, {0}, nil}, []string{"a", "b", "c"})
	assert.True(errors.Is(err, ErrCyclicModel))
	assert.Contains(err.Error(), "a, b")

	_, err = NewGraph(kinds, [][]int{nil, nil, {2}}, []string{"a", "b", "c"})
	assert.True(errors.Is(err, ErrCyclicModel), "self reference")

	_, err = NewGraph(kinds, [][]int{{7}, nil, nil}, []string{"a", "b", "c"})
	assert.Error(err)
	_, err = NewGraph(kinds, [][]int{nil}, []string{"a"})
	assert.Error(err)
}

package model

import (
	"container/heap"
	"iter"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Graph is the node dependency DAG. It only holds registry positions; node
// positions follow declaration order, which is also the tie-break order.
type Graph struct {
	parents  [][]int
	children [][]int
	kinds    []Kind
	order    []int // topological order
	rank     []int // position of each node in order
}

// NewGraph builds the graph from each node's parent positions. Self
// references and longer cycles fail with ErrCyclicModel.
func NewGraph(kinds []Kind, parents [][]int, names []string) (*Graph, error) {
	n := len(kinds)
	if len(parents) != n {
		return nil, errors.Errorf("Graph needs parents for %d nodes, found %d", n, len(parents))
	}

	g := &Graph{
		parents:  make([][]int, n),
		children: make([][]int, n),
		kinds:    kinds,
		rank:     make([]int, n),
	}
	for c, ps := range parents {
		seen := make(map[int]bool, len(ps))
		for _, p := range ps {
			if p < 0 || p >= n {
				return nil, errors.Errorf("Parent %d of node %d out of range", p, c)
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			g.parents[c] = append(g.parents[c], p)
			g.children[p] = append(g.children[p], c)
		}
		sort.Ints(g.parents[c])
	}
	for p := range g.children {
		sort.Ints(g.children[p])
	}

	g.order = make([]int, 0, n)
	g.kahn(func(v int) bool {
		g.rank[v] = len(g.order)
		g.order = append(g.order, v)
		return true
	})

	if len(g.order) < n {
		placed := make([]bool, n)
		for _, v := range g.order {
			placed[v] = true
		}
		var stuck []string
		for v := 0; v < n; v++ {
			if !placed[v] {
				stuck = append(stuck, names[v])
			}
		}
		return nil, errors.Wrapf(ErrCyclicModel, "Nodes on or after a cycle: %s", strings.Join(stuck, ", "))
	}

	return g, nil
}

// Len is the node count
func (g *Graph) Len() int { return len(g.parents) }

// Parents returns the parents of a node in declaration order
func (g *Graph) Parents(v int) []int { return g.parents[v] }

// Children returns the children of a node in declaration order
func (g *Graph) Children(v int) []int { return g.children[v] }

// Rank is a node's position in topological order
func (g *Graph) Rank(v int) int { return g.rank[v] }

// TopologicalOrder yields every node after all of its parents. Ties go to
// the node declared first.
func (g *Graph) TopologicalOrder() iter.Seq[int] {
	return func(yield func(int) bool) {
		g.kahn(yield)
	}
}

// kahn runs Kahn's algorithm with a min-heap on position and stops early
// when yield returns false.
func (g *Graph) kahn(yield func(int) bool) {
	indeg := make([]int, len(g.parents))
	ready := &intHeap{}
	for v, ps := range g.parents {
		indeg[v] = len(ps)
		if indeg[v] == 0 {
			*ready = append(*ready, v)
		}
	}
	heap.Init(ready)

	for ready.Len() > 0 {
		v := heap.Pop(ready).(int)
		if !yield(v) {
			return
		}
		for _, c := range g.children[v] {
			indeg[c]--
			if indeg[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}
}

// Dependencies returns the calculation set of a node's full conditional:
// the deterministic descendants reached without passing through a
// stochastic node, and the stochastic nodes directly below the node or
// those deterministic descendants. Both are in topological order.
func (g *Graph) Dependencies(v int) (deterministic, stochastic []int) {
	seen := map[int]bool{v: true}
	stack := append([]int(nil), g.children[v]...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		switch g.kinds[c] {
		case KindDeterministic:
			deterministic = append(deterministic, c)
			stack = append(stack, g.children[c]...)
		case KindStochastic:
			stochastic = append(stochastic, c)
		}
	}
	g.sortByRank(deterministic)
	g.sortByRank(stochastic)
	return deterministic, stochastic
}

// Descendants returns the deterministic descendants of a set of nodes in
// topological order.
func (g *Graph) Descendants(vs []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, v := range vs {
		seen[v] = true
	}
	stack := make([]int, 0, len(vs))
	for _, v := range vs {
		stack = append(stack, g.children[v]...)
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		if g.kinds[c] == KindDeterministic {
			out = append(out, c)
			stack = append(stack, g.children[c]...)
		}
	}
	g.sortByRank(out)
	return out
}

func (g *Graph) sortByRank(vs []int) {
	sort.Slice(vs, func(i, j int) bool { return g.rank[vs[i]] < g.rank[vs[j]] })
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

package sampler

import (
	"sort"

	"github.com/CraigKelly/bayesgraph/model"
)

// conditional is the calculation set of a full conditional: the target
// nodes, their deterministic descendants and every stochastic node whose
// density depends on the targets (the targets included).
type conditional struct {
	targets []int
	determ  []int
	stoch   []int
	saved   []float64
}

func newConditional(m *model.Model, targets []int) *conditional {
	g := m.Graph()
	seen := make(map[int]bool)
	var stoch []int
	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			stoch = append(stoch, t)
		}
		_, deps := g.Dependencies(t)
		for _, s := range deps {
			if !seen[s] {
				seen[s] = true
				stoch = append(stoch, s)
			}
		}
	}
	sort.Slice(stoch, func(i, j int) bool { return g.Rank(stoch[i]) < g.Rank(stoch[j]) })

	c := &conditional{
		targets: append([]int(nil), targets...),
		determ:  g.Descendants(targets),
		stoch:   stoch,
	}
	c.saved = make([]float64, len(c.targets)+len(c.determ))
	return c
}

// logDensity sums the conditional at the current values
func (c *conditional) logDensity(m *model.Model) float64 {
	return m.LogProbSum(c.stoch)
}

// save remembers the target and deterministic values
func (c *conditional) save(m *model.Model) {
	reg := m.Registry()
	for i, p := range c.targets {
		c.saved[i] = reg.Get(p)
	}
	for i, p := range c.determ {
		c.saved[len(c.targets)+i] = reg.Get(p)
	}
}

// restore puts back what save remembered
func (c *conditional) restore(m *model.Model) {
	reg := m.Registry()
	for i, p := range c.targets {
		reg.Put(p, c.saved[i])
	}
	for i, p := range c.determ {
		reg.Put(p, c.saved[len(c.targets)+i])
	}
}

// set assigns the targets and recalculates their deterministic descendants
func (c *conditional) set(m *model.Model, vals ...float64) {
	reg := m.Registry()
	for i, p := range c.targets {
		reg.Put(p, vals[i])
	}
	m.Recompute(c.determ)
}

// try assigns the targets and returns the conditional log density there
func (c *conditional) try(m *model.Model, vals ...float64) float64 {
	c.set(m, vals...)
	return c.logDensity(m)
}

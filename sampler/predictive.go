package sampler

import (
	"math"
	"slices"

	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

// predictive draws a node with no stochastic dependents straight from its
// prior.
type predictive struct {
	pos     int
	targets []int
	id      string
	determ  []int
}

func newPredictive(m *model.Model, pos int) *predictive {
	return &predictive{
		pos:     pos,
		targets: []int{pos},
		id:      m.Registry().Node(pos).ID,
		determ:  m.Graph().Descendants([]int{pos}),
	}
}

func (p *predictive) Name() string   { return ProcPosteriorPredictive }
func (p *predictive) Targets() []int { return p.targets }

func (p *predictive) Update(m *model.Model, src *rand.Generator, _ bool) (bool, error) {
	v := m.Draw(p.pos, src)
	if math.IsNaN(v) {
		return false, &model.ParamError{Node: p.id, Params: slices.Clone(m.Params(p.pos))}
	}
	m.Registry().Put(p.pos, v)
	m.Recompute(p.determ)
	return true, nil
}

package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/buffer"
	"github.com/CraigKelly/bayesgraph/dist"
	"github.com/CraigKelly/bayesgraph/expr"
	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

// Adaptation constants for the random walk. The scale is tuned towards the
// acceptance rate that is optimal for a one dimensional Gaussian walk.
const (
	adaptWindow      = 50
	targetAcceptance = 0.44
)

// boundsFunc returns the closed range a proposal is folded into
type boundsFunc func(m *model.Model, pos int) (lo, hi float64)

// randomWalk is a Metropolis-Hastings sampler with a symmetric Gaussian (or
// integer) proposal. The scale adapts during burn-in.
type randomWalk struct {
	name     string
	pos      int
	targets  []int
	id       string
	discrete bool
	bounds   boundsFunc
	cond     *conditional

	scale        float64
	history      *buffer.Circular[bool]
	timesAdapted int
}

func newRandomWalk(name string, m *model.Model, pos int, bounds boundsFunc) *randomWalk {
	n := m.Registry().Node(pos)
	return &randomWalk{
		name:     name,
		pos:      pos,
		targets:  []int{pos},
		id:       n.ID,
		discrete: n.Family.Discrete(),
		bounds:   bounds,
		cond:     newConditional(m, []int{pos}),
		scale:    1.0,
		history:  buffer.NewCircular[bool](adaptWindow),
	}
}

func (rw *randomWalk) Name() string   { return rw.name }
func (rw *randomWalk) Targets() []int { return rw.targets }

// Update proposes one move and accepts it with the Metropolis ratio
func (rw *randomWalk) Update(m *model.Model, src *rand.Generator, adapt bool) (bool, error) {
	cur := m.Registry().Get(rw.pos)
	lp0 := rw.cond.logDensity(m)
	if math.IsNaN(lp0) {
		return false, errors.Errorf("Log density is NaN at %s=%g", rw.id, cur)
	}

	var prop float64
	if rw.discrete {
		step := math.Round(rw.scale * src.NormFloat64())
		if step == 0 {
			step = 1
			if src.Uniform() < 0.5 {
				step = -1
			}
		}
		prop = cur + step
	} else {
		prop = cur + rw.scale*src.NormFloat64()
	}
	if rw.bounds != nil {
		lo, hi := rw.bounds(m, rw.pos)
		prop = reflectInto(prop, lo, hi)
	}

	rw.cond.save(m)
	lp1 := rw.cond.try(m, prop)
	accept := !math.IsNaN(lp1) && (lp1 >= lp0 || math.Log(src.Uniform()) < lp1-lp0)
	if !accept {
		rw.cond.restore(m)
	}

	if adapt {
		rw.adapt(accept)
	}
	return accept, nil
}

func (rw *randomWalk) adapt(accepted bool) {
	rw.history.Add(accepted)
	if !rw.history.Full() {
		return
	}

	rate := rw.history.Fraction(func(a bool) bool { return a })
	rw.timesAdapted++
	gamma := 1 / math.Pow(float64(rw.timesAdapted+3), 0.8)
	rw.scale *= math.Exp(10 * gamma * (rate - targetAcceptance))
	rw.history.Reset()
}

// reflectInto folds x back into [lo, hi] by mirroring at the bounds
func reflectInto(x, lo, hi float64) float64 {
	switch {
	case x >= lo && x <= hi:
		return x
	case math.IsInf(lo, -1):
		return 2*hi - x
	case math.IsInf(hi, 1):
		return 2*lo - x
	}

	w := hi - lo
	if w <= 0 {
		return lo
	}
	y := math.Mod(x-lo, 2*w)
	if y < 0 {
		y += 2 * w
	}
	if y > w {
		y = 2*w - y
	}
	return lo + y
}

// ownSupport is the node's own support under its current parameters
func ownSupport(m *model.Model, pos int) (float64, float64) {
	return m.Registry().Node(pos).Family.Support(m.Params(pos))
}

// constrainedSupport narrows the node's support to the interval implied by
// every interval child observing it.
func constrainedSupport(m *model.Model, pos int) boundsFunc {
	var kids []int
	for _, c := range m.Graph().Children(pos) {
		if constrains(m, c, pos) {
			kids = append(kids, c)
		}
	}

	return func(m *model.Model, pos int) (float64, float64) {
		lo, hi := ownSupport(m, pos)
		for _, c := range kids {
			k := int(m.Registry().Get(c))
			clo, chi := dist.IntervalBounds(k, m.Params(c)[1:])
			lo = math.Max(lo, clo)
			hi = math.Min(hi, chi)
		}
		return lo, hi
	}
}

// constrains reports whether child is an interval node whose t parameter is
// exactly the node at pos.
func constrains(m *model.Model, child, pos int) bool {
	reg := m.Registry()
	n := reg.Node(child)
	if n.Kind != model.KindStochastic || n.Family.Name() != "interval" || len(n.Params) < 1 {
		return false
	}
	ref, ok := n.Params[0].(*expr.Ref)
	return ok && ref.ID() == reg.Node(pos).ID
}

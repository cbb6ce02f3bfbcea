package sampler

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/dist"
	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

// maxEnumeration caps the joint support a Gibbs update may enumerate
const maxEnumeration = 100000

// gibbs draws its targets jointly from their full conditional by enumerating
// every value of their finite supports.
type gibbs struct {
	name    string
	targets []int
	ids     string
	cond    *conditional

	lo, hi []int
	cur    []int
	vals   []float64
	lps    []float64
}

func newGibbs(name string, m *model.Model, targets []int) *gibbs {
	ids := make([]string, len(targets))
	for i, p := range targets {
		ids[i] = m.Registry().Node(p).ID
	}
	return &gibbs{
		name:    name,
		targets: append([]int(nil), targets...),
		ids:     strings.Join(ids, ", "),
		cond:    newConditional(m, targets),
		lo:      make([]int, len(targets)),
		hi:      make([]int, len(targets)),
		cur:     make([]int, len(targets)),
		vals:    make([]float64, len(targets)),
	}
}

func (g *gibbs) Name() string   { return g.name }
func (g *gibbs) Targets() []int { return g.targets }

// Update samples one joint value. It fails when no candidate has a finite
// density.
func (g *gibbs) Update(m *model.Model, src *rand.Generator, _ bool) (bool, error) {
	for k, p := range g.targets {
		lo, hi, ok := finiteSupport(m, p)
		if !ok {
			return false, errors.Errorf("Support of %s is not finite under current parameters", m.Registry().Node(p).ID)
		}
		g.lo[k], g.hi[k] = int(lo), int(hi)
	}
	iter, err := model.NewSupportIter(g.lo, g.hi)
	if err != nil {
		return false, errors.Wrapf(err, "Could not enumerate %s", g.ids)
	}
	if size := iter.Size(); size > maxEnumeration {
		return false, errors.Errorf("Joint support of %s has %d values (max %d)", g.ids, size, maxEnumeration)
	}

	g.cond.save(m)
	g.lps = g.lps[:0]
	best := math.Inf(-1)
	for {
		g.assign(iter)
		lp := g.cond.try(m, g.vals...)
		if math.IsNaN(lp) {
			lp = math.Inf(-1)
		}
		g.lps = append(g.lps, lp)
		best = math.Max(best, lp)
		if !iter.Next() {
			break
		}
	}
	if math.IsInf(best, 0) {
		g.cond.restore(m)
		return false, errors.Errorf("No candidate value of %s has a finite log density", g.ids)
	}

	var total float64
	for i, lp := range g.lps {
		g.lps[i] = math.Exp(lp - best)
		total += g.lps[i]
	}
	u := src.Uniform() * total
	chosen := len(g.lps) - 1
	var cum float64
	for i, w := range g.lps {
		cum += w
		if u <= cum && w > 0 {
			chosen = i
			break
		}
	}

	// The iterator wrapped around to lo; walk it to the chosen value
	for i := 0; i < chosen; i++ {
		iter.Next()
	}
	g.assign(iter)
	g.cond.set(m, g.vals...)
	return true, nil
}

func (g *gibbs) assign(iter *model.SupportIter) {
	_ = iter.Val(g.cur)
	for k, v := range g.cur {
		g.vals[k] = float64(v)
	}
}

// finiteSupport returns the enumerable support of a discrete node
func finiteSupport(m *model.Model, pos int) (lo, hi float64, ok bool) {
	n := m.Registry().Node(pos)
	params := m.Params(pos)
	if !dist.Finite(n.Family, params) {
		return 0, 0, false
	}
	lo, hi = n.Family.Support(params)
	if hi < lo || hi-lo+1 > maxEnumeration {
		return 0, 0, false
	}
	return lo, hi, true
}

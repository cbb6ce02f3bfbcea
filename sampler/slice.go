package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/buffer"
	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

const (
	maxSliceSteps  = 100
	maxSliceShrink = 100
)

// slice is a univariate slice sampler (stepping out, then shrinkage). The
// initial interval width adapts to the mean jump size during burn-in.
type slice struct {
	pos     int
	targets []int
	id      string
	cond    *conditional

	width        float64
	jumps        *buffer.Circular[float64]
	timesAdapted int
}

func newSlice(m *model.Model, pos int) *slice {
	return &slice{
		pos:     pos,
		targets: []int{pos},
		id:      m.Registry().Node(pos).ID,
		cond:    newConditional(m, []int{pos}),
		width:   1.0,
		jumps:   buffer.NewCircular[float64](adaptWindow),
	}
}

func (s *slice) Name() string   { return ProcSlice }
func (s *slice) Targets() []int { return s.targets }

func (s *slice) Update(m *model.Model, src *rand.Generator, adapt bool) (bool, error) {
	x0 := m.Registry().Get(s.pos)
	lp0 := s.cond.logDensity(m)
	if math.IsNaN(lp0) {
		return false, errors.Errorf("Log density is NaN at %s=%g", s.id, x0)
	}
	logy := lp0 + math.Log(src.Uniform())

	s.cond.save(m)
	f := func(x float64) float64 {
		lp := s.cond.try(m, x)
		if math.IsNaN(lp) {
			return math.Inf(-1)
		}
		return lp
	}

	left := x0 - s.width*src.Uniform()
	right := left + s.width
	j := int(maxSliceSteps * src.Uniform())
	k := maxSliceSteps - 1 - j
	for ; j > 0 && f(left) > logy; j-- {
		left -= s.width
	}
	for ; k > 0 && f(right) > logy; k-- {
		right += s.width
	}

	for i := 0; i < maxSliceShrink; i++ {
		x1 := left + src.Uniform()*(right-left)
		if f(x1) > logy {
			if adapt {
				s.adapt(math.Abs(x1 - x0))
			}
			return true, nil
		}
		if x1 < x0 {
			left = x1
		} else {
			right = x1
		}
	}

	s.cond.restore(m)
	return false, nil
}

func (s *slice) adapt(jump float64) {
	s.jumps.Add(jump)
	if !s.jumps.Full() {
		return
	}

	var sum float64
	for j := range s.jumps.All() {
		sum += j
	}
	s.timesAdapted++
	factor := 1 / math.Pow(float64(s.timesAdapted+3), 0.8)
	s.width += (2*sum/float64(s.jumps.Count) - s.width) * factor
	s.jumps.Reset()
}

package trace

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Convergence holds the Gelman-Rubin potential scale reduction factor for
// each column, plus the mean and max over columns. Values near 1 mean the
// chains agree.
type Convergence struct {
	RHat     map[string]float64
	MeanRHat float64
	MaxRHat  float64
}

// GelmanRubin compares between-chain and within-chain variance. Chains are
// cut to the shortest length; at least two chains of two rows are needed.
func GelmanRubin(traces ...*Trace) (*Convergence, error) {
	if len(traces) < 2 {
		return nil, errors.Errorf("At least 2 chains required for R-hat, found %d", len(traces))
	}
	n := traces[0].Len()
	for _, t := range traces[1:] {
		if !sameColumns(traces[0].Columns, t.Columns) {
			return nil, errors.Errorf("Chain %d columns differ from chain %d", t.Chain, traces[0].Chain)
		}
		if t.Len() < n {
			n = t.Len()
		}
	}
	if n < 2 {
		return nil, errors.Errorf("At least 2 rows per chain required for R-hat, found %d", n)
	}

	c := &Convergence{RHat: make(map[string]float64, len(traces[0].Columns))}
	means := make([]float64, len(traces))
	vars := make([]float64, len(traces))
	for _, name := range traces[0].Columns {
		for j, t := range traces {
			col, _ := t.Column(name)
			means[j], vars[j] = stat.MeanVariance(col[:n], nil)
		}
		r := rhat(means, vars, n)
		c.RHat[name] = r
		c.MeanRHat += r
		if r > c.MaxRHat || math.IsNaN(r) {
			c.MaxRHat = r
		}
	}
	if k := len(c.RHat); k > 0 {
		c.MeanRHat /= float64(k)
	}
	return c, nil
}

func rhat(means, vars []float64, n int) float64 {
	fn := float64(n)
	b := fn * stat.Variance(means, nil)
	w := stat.Mean(vars, nil)
	if w == 0 {
		if b == 0 {
			return 1 // every chain stuck on the same value
		}
		return math.Inf(1)
	}
	varPlus := (fn-1)/fn*w + b/fn
	return math.Sqrt(varPlus / w)
}

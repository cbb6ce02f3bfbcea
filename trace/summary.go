package trace

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the pooled draws of one column across chains.
type Summary struct {
	Name   string
	N      int
	Mean   float64
	SD     float64
	Q025   float64
	Median float64
	Q975   float64
	RHat   float64 // NaN with a single chain
}

// Summarize pools every column over all traces. Columns come back in trace
// order.
func Summarize(traces ...*Trace) ([]Summary, error) {
	if len(traces) < 1 {
		return nil, errors.Errorf("No traces to summarize")
	}
	columns := traces[0].Columns
	for _, t := range traces[1:] {
		if !sameColumns(columns, t.Columns) {
			return nil, errors.Errorf("Chain %d columns differ from chain %d", t.Chain, traces[0].Chain)
		}
	}

	var rhat *Convergence
	if len(traces) > 1 {
		var err error
		if rhat, err = GelmanRubin(traces...); err != nil {
			return nil, err
		}
	}

	out := make([]Summary, 0, len(columns))
	for _, name := range columns {
		var pooled []float64
		for _, t := range traces {
			col, _ := t.Column(name)
			pooled = append(pooled, col...)
		}

		s := Summary{Name: name, N: len(pooled), RHat: math.NaN()}
		if rhat != nil {
			s.RHat = rhat.RHat[name]
		}
		if len(pooled) == 0 {
			s.Mean, s.SD, s.Q025, s.Median, s.Q975 = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
			out = append(out, s)
			continue
		}

		s.Mean, s.SD = stat.MeanStdDev(pooled, nil)
		sort.Float64s(pooled)
		s.Q025 = stat.Quantile(0.025, stat.Empirical, pooled, nil)
		s.Median = stat.Quantile(0.5, stat.Empirical, pooled, nil)
		s.Q975 = stat.Quantile(0.975, stat.Empirical, pooled, nil)
		out = append(out, s)
	}
	return out, nil
}

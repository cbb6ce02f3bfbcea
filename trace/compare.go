package trace

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrorSuite scores how far apart the marginals of two runs are. Errors
// beginning with Mean are the mean across all compared columns while Max is
// the maximum. So MeanMaxAbsError is the MEAN of the maximum absolute
// histogram difference of each column. JSDiverge uses the natural log.
type ErrorSuite struct {
	Columns int

	MeanMeanAbsError float64
	MeanMaxAbsError  float64
	MeanHellinger    float64
	MeanJSDiverge    float64

	MaxMeanAbsError float64
	MaxMaxAbsError  float64
	MaxHellinger    float64
	MaxJSDiverge    float64
}

// Compare bins every column found in both a and b into the same bins
// (equal width over the pooled range) and scores the two histograms. Chains
// are pooled; NaN samples are ignored.
func Compare(a, b []*Trace, bins int) (*ErrorSuite, error) {
	if bins < 1 {
		return nil, errors.Errorf("At least 1 bin required, found %d", bins)
	}
	if len(a) < 1 || len(b) < 1 {
		return nil, errors.New("Both sides need at least one trace")
	}

	es := ErrorSuite{}
	for _, name := range a[0].Columns {
		if !b[0].Has(name) {
			continue
		}
		x1, x2 := pooled(a, name), pooled(b, name)
		if len(x1) < 1 || len(x2) < 1 {
			continue
		}
		p1, p2 := histograms(x1, x2, bins)

		es.Columns++
		var d float64

		d = meanAbsDiff(p1, p2)
		es.MeanMeanAbsError += d
		es.MaxMeanAbsError = math.Max(d, es.MaxMeanAbsError)

		d = maxAbsDiff(p1, p2)
		es.MeanMaxAbsError += d
		es.MaxMaxAbsError = math.Max(d, es.MaxMaxAbsError)

		// rounding can push 1 - BC below zero for identical histograms
		if d = stat.Hellinger(p1, p2); math.IsNaN(d) {
			d = 0
		}
		es.MeanHellinger += d
		es.MaxHellinger = math.Max(d, es.MaxHellinger)

		d = stat.JensenShannon(p1, p2)
		es.MeanJSDiverge += d
		es.MaxJSDiverge = math.Max(d, es.MaxJSDiverge)
	}

	if es.Columns < 1 {
		return nil, errors.Errorf("No shared columns with samples to score")
	}

	fc := float64(es.Columns)
	es.MeanMeanAbsError /= fc
	es.MeanMaxAbsError /= fc
	es.MeanHellinger /= fc
	es.MeanJSDiverge /= fc
	return &es, nil
}

// pooled returns the sorted non-NaN samples of a column over every chain
func pooled(traces []*Trace, name string) []float64 {
	var out []float64
	for _, t := range traces {
		col, err := t.Column(name)
		if err != nil {
			continue
		}
		for _, v := range col {
			if !math.IsNaN(v) {
				out = append(out, v)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// histograms bins two sorted samples over their pooled range and
// normalizes both to sum to 1
func histograms(x1, x2 []float64, bins int) ([]float64, []float64) {
	lo := math.Min(x1[0], x2[0])
	hi := math.Max(x1[len(x1)-1], x2[len(x2)-1])
	if lo == hi {
		return []float64{1}, []float64{1}
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// the top bin is closed
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	p1 := stat.Histogram(nil, dividers, x1, nil)
	p2 := stat.Histogram(nil, dividers, x2, nil)
	floats.Scale(1/floats.Sum(p1), p1)
	floats.Scale(1/floats.Sum(p2), p2)
	return p1, p2
}

func maxAbsDiff(p1, p2 []float64) float64 {
	maxErr := 0.0
	for i := range p1 {
		maxErr = math.Max(maxErr, math.Abs(p1[i]-p2[i]))
	}
	return maxErr
}

func meanAbsDiff(p1, p2 []float64) float64 {
	return floats.Distance(p1, p2, 1) / float64(len(p1))
}

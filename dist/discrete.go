package dist

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

func init() {
	Register(&builtin{
		name:     "poisson",
		spec:     ParamSpec{Names: []string{"lambda"}},
		discrete: true,
		support:  nonNegative,
		valid:    func(p []float64) bool { return positive(p[0]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Poisson{Lambda: p[0]}.LogProb(x)
		},
		draw: func(src Source, p []float64) float64 {
			pois := distuv.Poisson{Lambda: p[0]}
			return discreteQuantile(src.Uniform(), 0, math.Inf(1), pois.LogProb)
		},
	})

	Register(&builtin{
		name:     "bernoulli",
		spec:     ParamSpec{Names: []string{"prob"}},
		discrete: true,
		support:  func([]float64) (float64, float64) { return 0, 1 },
		valid:    func(p []float64) bool { return p[0] >= 0 && p[0] <= 1 },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Bernoulli{P: p[0]}.LogProb(x)
		},
		draw: func(src Source, p []float64) float64 {
			if src.Uniform() < p[0] {
				return 1
			}
			return 0
		},
	})

	Register(&builtin{
		name:     "binomial",
		spec:     ParamSpec{Names: []string{"size", "prob"}},
		discrete: true,
		support:  func(p []float64) (float64, float64) { return 0, p[0] },
		valid: func(p []float64) bool {
			return p[0] >= 0 && math.Trunc(p[0]) == p[0] && !math.IsInf(p[0], 1) && p[1] >= 0 && p[1] <= 1
		},
		logProb: func(x float64, p []float64) float64 {
			return distuv.Binomial{N: p[0], P: p[1]}.LogProb(x)
		},
		draw: func(src Source, p []float64) float64 {
			bin := distuv.Binomial{N: p[0], P: p[1]}
			return discreteQuantile(src.Uniform(), 0, p[0], bin.LogProb)
		},
	})

	// categorical takes unnormalised weights; values are 0..K-1
	Register(&builtin{
		name:     "categorical",
		spec:     ParamSpec{Names: []string{"prob"}, Variadic: true},
		discrete: true,
		support:  func(p []float64) (float64, float64) { return 0, float64(len(p) - 1) },
		valid: func(p []float64) bool {
			for _, w := range p {
				if w < 0 || math.IsInf(w, 1) {
					return false
				}
			}
			return floats.Sum(p) > 0
		},
		logProb: func(x float64, p []float64) float64 {
			return math.Log(p[int(x)] / floats.Sum(p))
		},
		draw: func(src Source, p []float64) float64 {
			target := src.Uniform() * floats.Sum(p)
			var cum float64
			for k, w := range p {
				cum += w
				if target < cum {
					return float64(k)
				}
			}
			return float64(len(p) - 1)
		},
	})

	// interval: value k says which interval of the sorted cut points the
	// first parameter t falls into (k in 0..len(cuts)).
	Register(&builtin{
		name:     "interval",
		spec:     ParamSpec{Names: []string{"t", "cuts"}, Variadic: true},
		discrete: true,
		support:  func(p []float64) (float64, float64) { return 0, float64(len(p) - 1) },
		valid: func(p []float64) bool {
			cuts := p[1:]
			for i := 1; i < len(cuts); i++ {
				if cuts[i] < cuts[i-1] {
					return false
				}
			}
			return true
		},
		logProb: func(x float64, p []float64) float64 {
			if IntervalIndex(p[0], p[1:]) == int(x) {
				return 0
			}
			return math.Inf(-1)
		},
		draw: func(_ Source, p []float64) float64 {
			return float64(IntervalIndex(p[0], p[1:]))
		},
	})
}

// IntervalIndex returns k such that cuts[k-1] < t <= cuts[k], with 0 below
// the first cut and len(cuts) above the last one.
func IntervalIndex(t float64, cuts []float64) int {
	for k, c := range cuts {
		if t <= c {
			return k
		}
	}
	return len(cuts)
}

// IntervalBounds returns the range (lo, hi] of t values consistent with
// interval index k. Unbounded ends are +/-Inf.
func IntervalBounds(k int, cuts []float64) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if k > 0 && k-1 < len(cuts) {
		lo = cuts[k-1]
	}
	if k < len(cuts) {
		hi = cuts[k]
	}
	return lo, hi
}

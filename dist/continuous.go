package dist

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

func nonNegative(_ []float64) (float64, float64) { return 0, math.Inf(1) }

func init() {
	Register(&builtin{
		name:  "normal",
		spec:  ParamSpec{Names: []string{"mean", "sd"}},
		valid: func(p []float64) bool { return finite(p[0]) && positive(p[1]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Normal{Mu: p[0], Sigma: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Normal{Mu: p[0], Sigma: p[1]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:    "lognormal",
		spec:    ParamSpec{Names: []string{"meanlog", "sdlog"}},
		support: nonNegative,
		valid:   func(p []float64) bool { return finite(p[0]) && positive(p[1]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.LogNormal{Mu: p[0], Sigma: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.LogNormal{Mu: p[0], Sigma: p[1]}.Quantile(u)
		},
	})

	// gamma uses the rate parameterisation
	Register(&builtin{
		name:    "gamma",
		spec:    ParamSpec{Names: []string{"shape", "rate"}},
		support: nonNegative,
		valid:   func(p []float64) bool { return positive(p[0], p[1]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Gamma{Alpha: p[0], Beta: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Gamma{Alpha: p[0], Beta: p[1]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:    "exponential",
		spec:    ParamSpec{Names: []string{"rate"}},
		support: nonNegative,
		valid:   func(p []float64) bool { return positive(p[0]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Exponential{Rate: p[0]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Exponential{Rate: p[0]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:    "beta",
		spec:    ParamSpec{Names: []string{"a", "b"}},
		support: func([]float64) (float64, float64) { return 0, 1 },
		valid:   func(p []float64) bool { return positive(p[0], p[1]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Beta{Alpha: p[0], Beta: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Beta{Alpha: p[0], Beta: p[1]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:    "uniform",
		spec:    ParamSpec{Names: []string{"min", "max"}},
		support: func(p []float64) (float64, float64) { return p[0], p[1] },
		valid:   func(p []float64) bool { return finite(p[0], p[1]) && p[0] < p[1] },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Uniform{Min: p[0], Max: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Uniform{Min: p[0], Max: p[1]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:  "student_t",
		spec:  ParamSpec{Names: []string{"mu", "sigma", "df"}},
		valid: func(p []float64) bool { return finite(p[0]) && positive(p[1], p[2]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.StudentsT{Mu: p[0], Sigma: p[1], Nu: p[2]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.StudentsT{Mu: p[0], Sigma: p[1], Nu: p[2]}.Quantile(u)
		},
	})

	Register(&builtin{
		name:    "weibull",
		spec:    ParamSpec{Names: []string{"shape", "scale"}},
		support: nonNegative,
		valid:   func(p []float64) bool { return positive(p[0], p[1]) },
		logProb: func(x float64, p []float64) float64 {
			return distuv.Weibull{K: p[0], Lambda: p[1]}.LogProb(x)
		},
		quantile: func(u float64, p []float64) float64 {
			return distuv.Weibull{K: p[0], Lambda: p[1]}.Quantile(u)
		},
	})
}

// Package dist holds the distribution families a stochastic node can use.
// Densities come from gonum's stat/distuv; draws use inverse-transform
// sampling driven by a uniform source so that every execution path consumes
// the random stream identically.
package dist

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Source yields uniform draws on the open interval (0, 1).
type Source interface {
	Uniform() float64
}

// ParamSpec names a family's parameters in order. When Variadic is set the
// last name absorbs every remaining value (at least one).
type ParamSpec struct {
	Names    []string
	Variadic bool
}

// Arity checks a flattened parameter count against the spec.
func (ps ParamSpec) Arity(n int) error {
	if ps.Variadic {
		if n < len(ps.Names) {
			return errors.Errorf("Need at least %d parameter values, found %d", len(ps.Names), n)
		}
		return nil
	}
	if n != len(ps.Names) {
		return errors.Errorf("Need %d parameter values, found %d", len(ps.Names), n)
	}
	return nil
}

// Family is a parametric distribution over a scalar value.
type Family interface {
	Name() string
	Params() ParamSpec
	Discrete() bool

	// Support returns the closed bounds of the support for the given
	// parameters. Infinite bounds are returned as +/-Inf.
	Support(params []float64) (lo, hi float64)

	// LogProb returns the log density (or mass). Values outside the support
	// and invalid parameters give -Inf; NaN inputs give NaN.
	LogProb(x float64, params []float64) float64

	// Rand draws a value. Invalid parameters give NaN.
	Rand(src Source, params []float64) float64
}

// InSupport reports whether x is a possible value of f under params.
func InSupport(f Family, x float64, params []float64) bool {
	if math.IsNaN(x) {
		return false
	}
	lo, hi := f.Support(params)
	if x < lo || x > hi {
		return false
	}
	if f.Discrete() && math.Trunc(x) != x {
		return false
	}
	return true
}

// Finite reports whether f has a finite, enumerable support under params.
func Finite(f Family, params []float64) bool {
	if !f.Discrete() {
		return false
	}
	lo, hi := f.Support(params)
	return !math.IsInf(lo, 0) && !math.IsInf(hi, 0)
}

var families = map[string]Family{}

// Register adds a family under its name, replacing any previous entry.
// It is meant to be called from init functions.
func Register(f Family) {
	families[f.Name()] = f
}

// Lookup returns the named family.
func Lookup(name string) (Family, error) {
	f, ok := families[name]
	if !ok {
		return nil, errors.Errorf("Unknown distribution %q", name)
	}
	return f, nil
}

// Names lists the registered families in sorted order.
func Names() []string {
	names := make([]string, 0, len(families))
	for n := range families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// builtin implements Family from a handful of functions.
type builtin struct {
	name     string
	spec     ParamSpec
	discrete bool
	support  func(p []float64) (float64, float64)
	valid    func(p []float64) bool
	logProb  func(x float64, p []float64) float64
	quantile func(u float64, p []float64) float64
	draw     func(src Source, p []float64) float64
}

func (b *builtin) Name() string      { return b.name }
func (b *builtin) Params() ParamSpec { return b.spec }
func (b *builtin) Discrete() bool    { return b.discrete }

func (b *builtin) Support(p []float64) (float64, float64) {
	if b.support == nil {
		return math.Inf(-1), math.Inf(1)
	}
	return b.support(p)
}

func (b *builtin) LogProb(x float64, p []float64) float64 {
	if math.IsNaN(x) || anyNaN(p) {
		return math.NaN()
	}
	if !b.valid(p) || !InSupport(b, x, p) {
		return math.Inf(-1)
	}
	return b.logProb(x, p)
}

func (b *builtin) Rand(src Source, p []float64) float64 {
	if anyNaN(p) || !b.valid(p) {
		return math.NaN()
	}
	if b.draw != nil {
		return b.draw(src, p)
	}
	return b.quantile(src.Uniform(), p)
}

func anyNaN(p []float64) bool {
	for _, v := range p {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func positive(vs ...float64) bool {
	for _, v := range vs {
		if !(v > 0) || math.IsInf(v, 1) {
			return false
		}
	}
	return true
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// discreteQuantile inverts a discrete CDF by summing probability mass from
// lo upward. The search stops at hi or when the remaining mass is
// negligible.
func discreteQuantile(u float64, lo, hi float64, logProb func(k float64) float64) float64 {
	const maxSteps = 1 << 20
	var cdf float64
	k := lo
	for step := 0; step < maxSteps; step++ {
		cdf += math.Exp(logProb(k))
		if cdf >= u || k >= hi {
			return k
		}
		k++
	}
	return k
}

package expr

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Function is a built-in numeric function. Exactly one of the fields is set.
type Function struct {
	Unary    func(float64) float64
	Binary   func(float64, float64) float64
	Variadic func([]float64) float64
}

func (f Function) arity() int {
	switch {
	case f.Unary != nil:
		return 1
	case f.Binary != nil:
		return 2
	}
	return -1
}

var functions = map[string]Function{
	"exp":     {Unary: math.Exp},
	"log":     {Unary: math.Log},
	"sqrt":    {Unary: math.Sqrt},
	"abs":     {Unary: math.Abs},
	"floor":   {Unary: math.Floor},
	"ceil":    {Unary: math.Ceil},
	"round":   {Unary: math.Round},
	"logit":   {Unary: logit},
	"expit":   {Unary: expit},
	"ilogit":  {Unary: expit},
	"probit":  {Unary: distuv.UnitNormal.Quantile},
	"iprobit": {Unary: distuv.UnitNormal.CDF},
	"phi":     {Unary: distuv.UnitNormal.CDF},
	"step":    {Unary: step},
	"lgamma":  {Unary: lgamma},
	"pow":     {Binary: math.Pow},
	"equals":  {Binary: equals},
	"min":     {Variadic: minOf},
	"max":     {Variadic: maxOf},
	"sum":     {Variadic: sumOf},
}

// HasFunction reports whether name is a known built-in.
func HasFunction(name string) bool {
	_, ok := functions[name]
	return ok
}

func checkArity(c *Call) error {
	fn := functions[c.Name]
	want := fn.arity()
	if want < 0 {
		if len(c.Args) < 1 {
			return errors.Errorf("Function %s needs at least one argument", c.Name)
		}
		return nil
	}
	if len(c.Args) != want {
		return errors.Errorf("Function %s takes %d argument(s), found %d", c.Name, want, len(c.Args))
	}
	return nil
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func expit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func step(x float64) float64 {
	if x >= 0 {
		return 1
	}
	return 0
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func equals(a, b float64) float64 {
	return truth(a == b)
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func sumOf(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// applyBinary is the single arithmetic kernel for binary operators. Every
// evaluation path goes through it so results are bit-identical.
func applyBinary(op Op, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpMod:
		return math.Mod(a, b)
	case OpEq:
		return truth(a == b)
	case OpNe:
		return truth(a != b)
	case OpLt:
		return truth(a < b)
	case OpLe:
		return truth(a <= b)
	case OpGt:
		return truth(a > b)
	case OpGe:
		return truth(a >= b)
	case OpAnd:
		return truth(a != 0 && b != 0)
	case OpOr:
		return truth(a != 0 || b != 0)
	}
	return math.NaN()
}

func applyUnary(op Op, a float64) float64 {
	switch op {
	case OpNeg:
		return -a
	case OpNot:
		return truth(a == 0)
	}
	return math.NaN()
}

package model

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/expr"
)

// Evaluator computes node expressions from the current registry values
// (indexed by position).
type Evaluator interface {
	// Deterministic returns the value of a deterministic node
	Deterministic(n *Node, vals []float64) float64

	// Params appends the current parameter values of a stochastic node to
	// dst and returns it.
	Params(n *Node, vals []float64, dst []float64) []float64
}

// Interpreter walks the bound expression trees and looks names up on every
// evaluation.
type Interpreter struct {
	index map[string]int
}

// NewInterpreter evaluates against the positions in index
func NewInterpreter(index map[string]int) *Interpreter {
	return &Interpreter{index: index}
}

func (in *Interpreter) eval(e expr.Expr, vals []float64) float64 {
	v, err := expr.Eval(e, func(id string) (float64, bool) {
		p, ok := in.index[id]
		if !ok {
			return 0, false
		}
		return vals[p], true
	})
	if err != nil {
		// every reference is resolved when the model is built
		return math.NaN()
	}
	return v
}

// Deterministic implements Evaluator
func (in *Interpreter) Deterministic(n *Node, vals []float64) float64 {
	return in.eval(n.Expr, vals)
}

// Params implements Evaluator
func (in *Interpreter) Params(n *Node, vals []float64, dst []float64) []float64 {
	for _, p := range n.Params {
		dst = append(dst, in.eval(p, vals))
	}
	return dst
}

// Compiled holds one closure per expression with every reference resolved
// to a registry position ahead of time.
type Compiled struct {
	value  []expr.Func
	params [][]expr.Func
}

// CompileNodes compiles every node expression
func CompileNodes(nodes []*Node, index map[string]int) (*Compiled, error) {
	resolve := func(id string) (int, bool) {
		p, ok := index[id]
		return p, ok
	}

	c := &Compiled{
		value:  make([]expr.Func, len(nodes)),
		params: make([][]expr.Func, len(nodes)),
	}
	for _, n := range nodes {
		var err error
		switch n.Kind {
		case KindDeterministic:
			c.value[n.Pos], err = expr.Compile(n.Expr, resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "Could not compile %s", n.ID)
			}
		case KindStochastic:
			fns := make([]expr.Func, len(n.Params))
			for i, p := range n.Params {
				fns[i], err = expr.Compile(p, resolve)
				if err != nil {
					return nil, errors.Wrapf(err, "Could not compile parameter %d of %s", i, n.ID)
				}
			}
			c.params[n.Pos] = fns
		}
	}
	return c, nil
}

// Deterministic implements Evaluator
func (c *Compiled) Deterministic(n *Node, vals []float64) float64 {
	return c.value[n.Pos](vals)
}

// Params implements Evaluator
func (c *Compiled) Params(n *Node, vals []float64, dst []float64) []float64 {
	for _, fn := range c.params[n.Pos] {
		dst = append(dst, fn(vals))
	}
	return dst
}

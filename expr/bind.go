package expr

import (
	"math"

	"github.com/pkg/errors"
)

// Env supplies what Bind may fold into an expression: constants (scalars
// are stored with length one) and loop index values.
type Env struct {
	Constants map[string][]float64
	Indices   map[string]int
}

// Bind resolves loop indices and constants, folds constant sub-trees and
// checks that every remaining index is a non-negative integer. The result
// only references model nodes, each with a concrete ID.
func Bind(e Expr, env Env) (Expr, error) {
	switch x := e.(type) {
	case *Number:
		return x, nil

	case *Ref:
		if x.Index == nil {
			if k, ok := env.Indices[x.Name]; ok {
				return &Number{Value: float64(k)}, nil
			}
			if c, ok := env.Constants[x.Name]; ok {
				if len(c) != 1 {
					return nil, errors.Errorf("Vector constant %s (length %d) used without an index", x.Name, len(c))
				}
				return &Number{Value: c[0]}, nil
			}
			return &Ref{Name: x.Name}, nil
		}

		if _, isLoop := env.Indices[x.Name]; isLoop {
			return nil, errors.Errorf("Loop index %s can not be indexed", x.Name)
		}
		idx, err := Bind(x.Index, env)
		if err != nil {
			return nil, err
		}
		num, ok := idx.(*Number)
		if !ok {
			return nil, errors.Errorf("Index %s of %s does not reduce to a constant", x.Index, x.Name)
		}
		if !isIndex(num.Value) {
			return nil, errors.Errorf("Index %v of %s is not an integer in [0, %d)", num.Value, x.Name, MaxIndex)
		}
		k := int(num.Value)
		if c, ok := env.Constants[x.Name]; ok {
			if k >= len(c) {
				return nil, errors.Errorf("Index %d out of range for constant %s (length %d)", k, x.Name, len(c))
			}
			return &Number{Value: c[k]}, nil
		}
		return &Ref{Name: x.Name, Index: &Number{Value: float64(k)}}, nil

	case *Binary:
		lhs, err := Bind(x.LHS, env)
		if err != nil {
			return nil, err
		}
		rhs, err := Bind(x.RHS, env)
		if err != nil {
			return nil, err
		}
		ln, lok := lhs.(*Number)
		rn, rok := rhs.(*Number)
		if lok && rok {
			return &Number{Value: applyBinary(x.Op, ln.Value, rn.Value)}, nil
		}
		return &Binary{Op: x.Op, LHS: lhs, RHS: rhs}, nil

	case *Unary:
		operand, err := Bind(x.Operand, env)
		if err != nil {
			return nil, err
		}
		if n, ok := operand.(*Number); ok {
			return &Number{Value: applyUnary(x.Op, n.Value)}, nil
		}
		return &Unary{Op: x.Op, Operand: operand}, nil

	case *Call:
		out := &Call{Name: x.Name, Args: make([]Expr, len(x.Args))}
		allConst := true
		for i, a := range x.Args {
			b, err := Bind(a, env)
			if err != nil {
				return nil, err
			}
			if _, ok := b.(*Number); !ok {
				allConst = false
			}
			out.Args[i] = b
		}
		if allConst {
			args := make([]float64, len(out.Args))
			for i, a := range out.Args {
				args[i] = a.(*Number).Value
			}
			return &Number{Value: call(functions[x.Name], args)}, nil
		}
		return out, nil

	case *Cond:
		c, err := Bind(x.Cond, env)
		if err != nil {
			return nil, err
		}
		t, err := Bind(x.True, env)
		if err != nil {
			return nil, err
		}
		f, err := Bind(x.False, env)
		if err != nil {
			return nil, err
		}
		if n, ok := c.(*Number); ok {
			if n.Value != 0 {
				return t, nil
			}
			return f, nil
		}
		return &Cond{Cond: c, True: t, False: f}, nil

	case *Tuple:
		out := &Tuple{Items: make([]Expr, len(x.Items))}
		for i, item := range x.Items {
			b, err := Bind(item, env)
			if err != nil {
				return nil, err
			}
			out.Items[i] = b
		}
		return out, nil
	}

	return nil, errors.Errorf("Unsupported expression %T", e)
}

// Flatten expands a top-level tuple into its items; any other expression is
// returned as a single item. A vector constant referenced without an index is
// expanded to one number per element, which lets `cuts = cutpoints` work.
func Flatten(e Expr, env Env) ([]Expr, error) {
	if r, ok := e.(*Ref); ok && r.Index == nil {
		if c, ok := env.Constants[r.Name]; ok && len(c) != 1 {
			out := make([]Expr, len(c))
			for i, v := range c {
				out[i] = &Number{Value: v}
			}
			return out, nil
		}
	}

	b, err := Bind(e, env)
	if err != nil {
		return nil, err
	}
	if t, ok := b.(*Tuple); ok {
		return t.Items, nil
	}
	return []Expr{b}, nil
}

// MaxIndex bounds every element index, and so the length of any vector
const MaxIndex = 1 << 20

func isIndex(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f < MaxIndex && math.Trunc(f) == f
}

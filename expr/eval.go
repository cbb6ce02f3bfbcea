package expr

import (
	"github.com/pkg/errors"
)

// Lookup resolves a node id to its current value.
type Lookup func(id string) (float64, bool)

// Eval interprets a bound expression, resolving references by id on every
// call.
func Eval(e Expr, lookup Lookup) (float64, error) {
	switch x := e.(type) {
	case *Number:
		return x.Value, nil

	case *Ref:
		v, ok := lookup(x.ID())
		if !ok {
			return 0, errors.Errorf("Unresolved reference %s", x.ID())
		}
		return v, nil

	case *Binary:
		a, err := Eval(x.LHS, lookup)
		if err != nil {
			return 0, err
		}
		b, err := Eval(x.RHS, lookup)
		if err != nil {
			return 0, err
		}
		return applyBinary(x.Op, a, b), nil

	case *Unary:
		a, err := Eval(x.Operand, lookup)
		if err != nil {
			return 0, err
		}
		return applyUnary(x.Op, a), nil

	case *Call:
		fn, ok := functions[x.Name]
		if !ok {
			return 0, errors.Errorf("Unknown function %s", x.Name)
		}
		args := make([]float64, len(x.Args))
		for i, a := range x.Args {
			v, err := Eval(a, lookup)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return call(fn, args), nil

	case *Cond:
		c, err := Eval(x.Cond, lookup)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return Eval(x.True, lookup)
		}
		return Eval(x.False, lookup)
	}

	return 0, errors.Errorf("Can not evaluate %T", e)
}

func call(fn Function, args []float64) float64 {
	switch {
	case fn.Unary != nil:
		return fn.Unary(args[0])
	case fn.Binary != nil:
		return fn.Binary(args[0], args[1])
	}
	return fn.Variadic(args)
}

// Func is a compiled expression over the model's value slice.
type Func func(vals []float64) float64

// Resolver maps a node id to its position in the value slice.
type Resolver func(id string) (int, bool)

// Compile turns a bound expression into a closure tree with every reference
// resolved to a slice position up front.
func Compile(e Expr, resolve Resolver) (Func, error) {
	switch x := e.(type) {
	case *Number:
		v := x.Value
		return func([]float64) float64 { return v }, nil

	case *Ref:
		pos, ok := resolve(x.ID())
		if !ok {
			return nil, errors.Errorf("Unresolved reference %s", x.ID())
		}
		return func(vals []float64) float64 { return vals[pos] }, nil

	case *Binary:
		a, err := Compile(x.LHS, resolve)
		if err != nil {
			return nil, err
		}
		b, err := Compile(x.RHS, resolve)
		if err != nil {
			return nil, err
		}
		op := x.Op
		return func(vals []float64) float64 { return applyBinary(op, a(vals), b(vals)) }, nil

	case *Unary:
		a, err := Compile(x.Operand, resolve)
		if err != nil {
			return nil, err
		}
		op := x.Op
		return func(vals []float64) float64 { return applyUnary(op, a(vals)) }, nil

	case *Call:
		fn, ok := functions[x.Name]
		if !ok {
			return nil, errors.Errorf("Unknown function %s", x.Name)
		}
		args := make([]Func, len(x.Args))
		for i, a := range x.Args {
			f, err := Compile(a, resolve)
			if err != nil {
				return nil, err
			}
			args[i] = f
		}
		switch {
		case fn.Unary != nil:
			u, a0 := fn.Unary, args[0]
			return func(vals []float64) float64 { return u(a0(vals)) }, nil
		case fn.Binary != nil:
			bf, a0, a1 := fn.Binary, args[0], args[1]
			return func(vals []float64) float64 { return bf(a0(vals), a1(vals)) }, nil
		}
		vf := fn.Variadic
		return func(vals []float64) float64 {
			buf := make([]float64, len(args))
			for i, a := range args {
				buf[i] = a(vals)
			}
			return vf(buf)
		}, nil

	case *Cond:
		c, err := Compile(x.Cond, resolve)
		if err != nil {
			return nil, err
		}
		t, err := Compile(x.True, resolve)
		if err != nil {
			return nil, err
		}
		f, err := Compile(x.False, resolve)
		if err != nil {
			return nil, err
		}
		return func(vals []float64) float64 {
			if c(vals) != 0 {
				return t(vals)
			}
			return f(vals)
		}, nil
	}

	return nil, errors.Errorf("Can not compile %T", e)
}

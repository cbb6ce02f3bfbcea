package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// Parse parses a single HCL native-syntax expression.
func Parse(src string) (Expr, error) {
	e, diags := hclsyntax.ParseExpression([]byte(src), "<expr>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "Could not parse expression %q", src)
	}
	return FromHCL(e)
}

// FromHCL converts an already parsed hclsyntax expression.
func FromHCL(e hcl.Expression) (Expr, error) {
	se, ok := e.(hclsyntax.Expression)
	if !ok {
		return nil, errors.Errorf("Unsupported expression type %T (native syntax required)", e)
	}
	return convert(se)
}

var binaryOps = map[*hclsyntax.Operation]Op{
	hclsyntax.OpAdd:                OpAdd,
	hclsyntax.OpSubtract:           OpSub,
	hclsyntax.OpMultiply:           OpMul,
	hclsyntax.OpDivide:             OpDiv,
	hclsyntax.OpModulo:             OpMod,
	hclsyntax.OpEqual:              OpEq,
	hclsyntax.OpNotEqual:           OpNe,
	hclsyntax.OpLessThan:           OpLt,
	hclsyntax.OpLessThanOrEqual:    OpLe,
	hclsyntax.OpGreaterThan:        OpGt,
	hclsyntax.OpGreaterThanOrEqual: OpGe,
	hclsyntax.OpLogicalAnd:         OpAnd,
	hclsyntax.OpLogicalOr:          OpOr,
}

func convert(e hclsyntax.Expression) (Expr, error) {
	switch x := e.(type) {
	case *hclsyntax.LiteralValueExpr:
		return literal(x.Val, x.SrcRange)

	case *hclsyntax.ParenthesesExpr:
		return convert(x.Expression)

	case *hclsyntax.ScopeTraversalExpr:
		return traversal(x.Traversal)

	case *hclsyntax.IndexExpr:
		coll, err := convert(x.Collection)
		if err != nil {
			return nil, err
		}
		ref, ok := coll.(*Ref)
		if !ok || ref.Index != nil {
			return nil, errors.Errorf("Only a plain variable may be indexed at %s", x.SrcRange)
		}
		key, err := convert(x.Key)
		if err != nil {
			return nil, err
		}
		return &Ref{Name: ref.Name, Index: key}, nil

	case *hclsyntax.BinaryOpExpr:
		op, ok := binaryOps[x.Op]
		if !ok {
			return nil, errors.Errorf("Unsupported operator at %s", x.SrcRange)
		}
		lhs, err := convert(x.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := convert(x.RHS)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, LHS: lhs, RHS: rhs}, nil

	case *hclsyntax.UnaryOpExpr:
		operand, err := convert(x.Val)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case hclsyntax.OpNegate:
			return &Unary{Op: OpNeg, Operand: operand}, nil
		case hclsyntax.OpLogicalNot:
			return &Unary{Op: OpNot, Operand: operand}, nil
		}
		return nil, errors.Errorf("Unsupported unary operator at %s", x.SrcRange)

	case *hclsyntax.FunctionCallExpr:
		if x.ExpandFinal {
			return nil, errors.Errorf("Argument expansion is not supported at %s", x.NameRange)
		}
		if _, ok := functions[x.Name]; !ok {
			return nil, errors.Errorf("Unknown function %q at %s", x.Name, x.NameRange)
		}
		call := &Call{Name: x.Name, Args: make([]Expr, len(x.Args))}
		for i, a := range x.Args {
			arg, err := convert(a)
			if err != nil {
				return nil, err
			}
			call.Args[i] = arg
		}
		if err := checkArity(call); err != nil {
			return nil, err
		}
		return call, nil

	case *hclsyntax.ConditionalExpr:
		c, err := convert(x.Condition)
		if err != nil {
			return nil, err
		}
		t, err := convert(x.TrueResult)
		if err != nil {
			return nil, err
		}
		f, err := convert(x.FalseResult)
		if err != nil {
			return nil, err
		}
		return &Cond{Cond: c, True: t, False: f}, nil

	case *hclsyntax.TupleConsExpr:
		tup := &Tuple{Items: make([]Expr, len(x.Exprs))}
		for i, item := range x.Exprs {
			v, err := convert(item)
			if err != nil {
				return nil, err
			}
			if _, nested := v.(*Tuple); nested {
				return nil, errors.Errorf("Nested lists are not supported at %s", x.SrcRange)
			}
			tup.Items[i] = v
		}
		return tup, nil
	}

	return nil, errors.Errorf("Unsupported expression %T at %s", e, e.Range())
}

func literal(v cty.Value, rng hcl.Range) (Expr, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, errors.Errorf("Null value in expression at %s", rng)
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return &Number{Value: f}, nil
	case cty.Bool:
		if v.True() {
			return &Number{Value: 1}, nil
		}
		return &Number{Value: 0}, nil
	}
	return nil, errors.Errorf("Only numeric literals are allowed at %s (found %s)", rng, v.Type().FriendlyName())
}

func traversal(t hcl.Traversal) (Expr, error) {
	if t.IsRelative() || len(t) < 1 {
		return nil, errors.Errorf("Invalid variable reference at %s", t.SourceRange())
	}
	ref := &Ref{Name: t.RootName()}
	for _, step := range t[1:] {
		idx, ok := step.(hcl.TraverseIndex)
		if !ok || ref.Index != nil {
			return nil, errors.Errorf("Only a single index is supported on %s at %s", ref.Name, t.SourceRange())
		}
		if idx.Key.Type() != cty.Number || idx.Key.IsNull() {
			return nil, errors.Errorf("Index on %s must be a number at %s", ref.Name, t.SourceRange())
		}
		f := idx.Key.AsBigFloat()
		if !f.IsInt() || f.Sign() < 0 {
			return nil, errors.Errorf("Index on %s must be a non-negative integer at %s", ref.Name, t.SourceRange())
		}
		k, _ := f.Int64()
		ref.Index = &Number{Value: float64(k)}
	}
	return ref, nil
}

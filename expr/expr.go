// Package expr is the small numeric expression language used for
// deterministic node definitions and distribution parameters.
//
// Expressions are written in HCL native syntax and parsed with hclsyntax, then
// converted to the tree defined here. A parsed tree is bound against
// constants and loop indices (Bind), after which every reference names a
// concrete model node such as "mu" or "x[3]". Bound trees can be evaluated
// directly (Eval) or compiled into closures over a value slice (Compile); both
// share the arithmetic kernel in funcs.go and give identical results.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Op is a unary or binary operator.
type Op int

// Operators
const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNeg
	OpNot
)

var opText = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||", OpNeg: "-", OpNot: "!",
}

func (o Op) String() string {
	return opText[o]
}

// Expr is a node in an expression tree.
type Expr interface {
	String() string
	exprNode()
}

// Number is a numeric literal (booleans are stored as 1 and 0).
type Number struct {
	Value float64
}

// Ref references a model quantity by name, optionally indexed. After Bind the
// index, if any, is always a *Number holding an integer.
type Ref struct {
	Name  string
	Index Expr
}

// Binary applies a binary operator.
type Binary struct {
	Op       Op
	LHS, RHS Expr
}

// Unary applies a unary operator.
type Unary struct {
	Op      Op
	Operand Expr
}

// Call invokes a built-in function.
type Call struct {
	Name string
	Args []Expr
}

// Cond is `cond ? t : f`; any non-zero condition selects t.
type Cond struct {
	Cond, True, False Expr
}

// Tuple is a bracketed list. It is only valid as a variadic distribution
// parameter such as categorical probabilities or interval cut points.
type Tuple struct {
	Items []Expr
}

func (*Number) exprNode() {}
func (*Ref) exprNode()    {}
func (*Binary) exprNode() {}
func (*Unary) exprNode()  {}
func (*Call) exprNode()   {}
func (*Cond) exprNode()   {}
func (*Tuple) exprNode()  {}

func (n *Number) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (r *Ref) String() string {
	if r.Index == nil {
		return r.Name
	}
	return r.Name + "[" + r.Index.String() + "]"
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS)
}

func (u *Unary) String() string {
	return u.Op.String() + u.Operand.String()
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (c *Cond) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Cond, c.True, c.False)
}

func (t *Tuple) String() string {
	items := make([]string, len(t.Items))
	for i, a := range t.Items {
		items[i] = a.String()
	}
	return "[" + strings.Join(items, ", ") + "]"
}

// ID returns the node id for a bound reference: "name" or "name[k]".
func (r *Ref) ID() string {
	if r.Index == nil {
		return r.Name
	}
	if n, ok := r.Index.(*Number); ok {
		return ElementID(r.Name, int(n.Value))
	}
	return r.String()
}

// ElementID formats the id of one element of a vector variable.
func ElementID(name string, index int) string {
	return name + "[" + strconv.Itoa(index) + "]"
}

// ParseID splits "name[k]" into its parts. Scalar ids return index -1.
func ParseID(id string) (name string, index int, err error) {
	open := strings.IndexByte(id, '[')
	if open < 0 {
		return id, -1, nil
	}
	if !strings.HasSuffix(id, "]") || open == 0 {
		return "", 0, errors.Errorf("Malformed node id %q", id)
	}
	index, err = strconv.Atoi(id[open+1 : len(id)-1])
	if err != nil || index < 0 {
		return "", 0, errors.Errorf("Malformed index in node id %q", id)
	}
	return id[:open], index, nil
}

// Refs returns every reference in the tree, in first-use order, without
// duplicates (by ID).
func Refs(e Expr) []*Ref {
	var out []*Ref
	seen := make(map[string]bool)
	Walk(e, func(x Expr) {
		if r, ok := x.(*Ref); ok {
			id := r.ID()
			if !seen[id] {
				seen[id] = true
				out = append(out, r)
			}
		}
	})
	return out
}

// Walk visits every node of the tree depth first, parents before children.
// Index expressions of references are visited too.
func Walk(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch x := e.(type) {
	case *Ref:
		Walk(x.Index, visit)
	case *Binary:
		Walk(x.LHS, visit)
		Walk(x.RHS, visit)
	case *Unary:
		Walk(x.Operand, visit)
	case *Call:
		for _, a := range x.Args {
			Walk(a, visit)
		}
	case *Cond:
		Walk(x.Cond, visit)
		Walk(x.True, visit)
		Walk(x.False, visit)
	case *Tuple:
		for _, a := range x.Items {
			Walk(a, visit)
		}
	}
}

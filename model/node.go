package model

import (
	"github.com/CraigKelly/bayesgraph/dist"
	"github.com/CraigKelly/bayesgraph/expr"
)

// Role classifies a declared name.
type Role int

// Roles: a node's role only changes between data and its declared role, and
// only through SetData/ResetData.
const (
	RoleConstant Role = iota
	RoleData
	RoleFree
	RoleStochastic
	RoleDeterministic
)

func (r Role) String() string {
	switch r {
	case RoleConstant:
		return "constant"
	case RoleData:
		return "data"
	case RoleFree:
		return "free"
	case RoleStochastic:
		return "stochastic"
	case RoleDeterministic:
		return "deterministic"
	}
	return "unknown"
}

// Kind is how a node gets its value.
type Kind int

// Node kinds
const (
	KindStochastic Kind = iota
	KindDeterministic
	KindFree
)

func (k Kind) String() string {
	switch k {
	case KindStochastic:
		return "stochastic"
	case KindDeterministic:
		return "deterministic"
	case KindFree:
		return "free"
	}
	return "unknown"
}

// Role is the declared (non-data) role for the kind.
func (k Kind) Role() Role {
	switch k {
	case KindStochastic:
		return RoleStochastic
	case KindDeterministic:
		return RoleDeterministic
	}
	return RoleFree
}

// Node is one scalar element of a model variable. Nodes are immutable once
// the model is built and are shared between model clones; values and data
// flags live in the Registry.
type Node struct {
	ID    string // base or base[index]
	Base  string // variable name
	Index int    // element index, -1 for scalars
	Pos   int    // position in the registry (declaration order)
	Kind  Kind

	Family dist.Family // stochastic only
	Params []expr.Expr // stochastic only: bound and flattened, in family order
	Expr   expr.Expr   // deterministic only: bound value expression
}

// Exprs returns every bound expression the node depends on.
func (n *Node) Exprs() []expr.Expr {
	if n.Expr != nil {
		return []expr.Expr{n.Expr}
	}
	return n.Params
}

// Variable is a declared name: a scalar node, a vector of nodes or a
// constant.
type Variable struct {
	Name   string
	Role   Role  // declared role: constant, free, stochastic or deterministic
	Length int   // 0 for scalars
	Nodes  []int // registry positions, empty for constants
}

// Scalar is true for variables declared without a length.
func (v *Variable) Scalar() bool {
	return v.Length == 0
}

// Clone returns a copy of the variable
func (v *Variable) Clone() *Variable {
	cp := *v
	cp.Nodes = make([]int, len(v.Nodes))
	copy(cp.Nodes, v.Nodes)
	return &cp
}

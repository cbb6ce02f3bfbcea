package model

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/dist"
	"github.com/CraigKelly/bayesgraph/expr"
)

// DefaultIndex is the loop variable of vector node declarations
const DefaultIndex = "i"

// NodeDecl declares a stochastic or deterministic variable. Vector
// declarations (Length > 0) are expanded to one node per element with the
// loop variable bound to the element index.
type NodeDecl struct {
	Name   string
	Kind   Kind
	Length int
	Index  string // loop variable, DefaultIndex when empty

	Dist   string            // stochastic: family name
	Params map[string]string // stochastic: parameter name -> expression
	Value  string            // deterministic: expression
}

// Declaration is everything needed to build a model. Constants are folded
// into expressions, Inits give starting values and Data is applied with
// SetData after the graph is built.
type Declaration struct {
	Constants map[string][]float64
	Data      Values
	Inits     Values
	Nodes     []NodeDecl
}

type freeUse struct {
	name     string
	scalar   bool
	indexed  bool
	maxIndex int
}

// builder holds the state of one Build call
type builder struct {
	decl Declaration
	reg  *Registry
	log  *zap.Logger
	free []*freeUse
}

func (b *builder) declare() error {
	names := make([]string, 0, len(b.decl.Constants))
	for name := range b.decl.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.reg.DeclareConstant(name, b.decl.Constants[name]); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, nd := range b.decl.Nodes {
		if seen[nd.Name] {
			return errors.Wrapf(ErrDuplicateDeclaration, "Node %s declared twice", nd.Name)
		}
		seen[nd.Name] = true
		if _, isConst := b.decl.Constants[nd.Name]; isConst {
			return errors.Wrapf(ErrDuplicateDeclaration, "Node %s is also a constant", nd.Name)
		}
		if nd.Kind != KindStochastic && nd.Kind != KindDeterministic {
			return errors.Errorf("Node %s must be stochastic or deterministic, found %s", nd.Name, nd.Kind)
		}
		if nd.Length > expr.MaxIndex {
			return errors.Errorf("Node %s length %d is over the limit of %d", nd.Name, nd.Length, expr.MaxIndex)
		}
		if err := b.reg.Declare(nd.Name, nd.Kind.Role(), nd.Length); err != nil {
			return err
		}
	}
	return nil
}

// bind parses each declaration once and binds it per element
func (b *builder) bind(nd NodeDecl) error {
	v, _ := b.reg.Variable(nd.Name)
	index := nd.Index
	if index == "" {
		index = DefaultIndex
	}
	env := func(k int) expr.Env {
		env := expr.Env{Constants: b.reg.Constants()}
		if k >= 0 {
			env.Indices = map[string]int{index: k}
		}
		return env
	}

	if nd.Kind == KindDeterministic {
		if len(nd.Params) > 0 || nd.Dist != "" {
			return errors.Errorf("Deterministic node %s can not have a distribution", nd.Name)
		}
		parsed, err := expr.Parse(nd.Value)
		if err != nil {
			return errors.Wrapf(err, "Node %s value", nd.Name)
		}
		for _, p := range v.Nodes {
			n := b.reg.Node(p)
			n.Expr, err = expr.Bind(parsed, env(n.Index))
			if err != nil {
				return errors.Wrapf(err, "Node %s", n.ID)
			}
			if _, isTuple := n.Expr.(*expr.Tuple); isTuple {
				return errors.Errorf("Node %s value must be a scalar expression", n.ID)
			}
		}
		return nil
	}

	if nd.Value != "" {
		return errors.Errorf("Stochastic node %s can not have a value expression", nd.Name)
	}
	fam, err := dist.Lookup(nd.Dist)
	if err != nil {
		return errors.Wrapf(err, "Node %s", nd.Name)
	}
	spec := fam.Params()
	known := make(map[string]bool, len(spec.Names))
	for _, name := range spec.Names {
		known[name] = true
	}
	for name := range nd.Params {
		if !known[name] {
			return errors.Errorf("Node %s: %s has no parameter %q (expects %v)", nd.Name, fam.Name(), name, spec.Names)
		}
	}
	parsed := make([]expr.Expr, len(spec.Names))
	for i, name := range spec.Names {
		src, ok := nd.Params[name]
		if !ok {
			return errors.Errorf("Node %s: missing %s parameter %q", nd.Name, fam.Name(), name)
		}
		parsed[i], err = expr.Parse(src)
		if err != nil {
			return errors.Wrapf(err, "Node %s parameter %s", nd.Name, name)
		}
	}

	for _, p := range v.Nodes {
		n := b.reg.Node(p)
		n.Family = fam
		n.Params = nil
		for i, e := range parsed {
			items, err := expr.Flatten(e, env(n.Index))
			if err != nil {
				return errors.Wrapf(err, "Node %s parameter %s", n.ID, spec.Names[i])
			}
			last := spec.Variadic && i == len(parsed)-1
			if !last && len(items) != 1 {
				return errors.Errorf("Node %s parameter %s must be a scalar", n.ID, spec.Names[i])
			}
			n.Params = append(n.Params, items...)
		}
		if err := spec.Arity(len(n.Params)); err != nil {
			return errors.Wrapf(err, "Node %s", n.ID)
		}
	}
	return nil
}

// discover finds right-hand-side names that are neither constants nor
// declared nodes and declares them as free variables.
func (b *builder) discover() error {
	byName := make(map[string]*freeUse)
	for p := 0; p < b.reg.Len(); p++ {
		for _, e := range b.reg.Node(p).Exprs() {
			for _, r := range expr.Refs(e) {
				if _, declared := b.reg.Variable(r.Name); declared {
					continue
				}
				u, ok := byName[r.Name]
				if !ok {
					u = &freeUse{name: r.Name, maxIndex: -1}
					byName[r.Name] = u
					b.free = append(b.free, u)
				}
				if r.Index == nil {
					u.scalar = true
					continue
				}
				u.indexed = true
				if k := int(r.Index.(*expr.Number).Value); k > u.maxIndex {
					u.maxIndex = k
				}
			}
		}
	}

	for _, u := range b.free {
		if u.scalar && u.indexed {
			return errors.Errorf("Free variable %s is used both with and without an index", u.name)
		}
		length := 0
		if u.indexed {
			given := max(len(b.decl.Data[u.name]), len(b.decl.Inits[u.name]))
			if given > 0 && u.maxIndex >= given {
				return errors.Errorf("Free variable %s has %d value(s) but is used at index %d", u.name, given, u.maxIndex)
			}
			length = max(given, u.maxIndex+1)
		}
		if err := b.reg.Declare(u.name, RoleFree, length); err != nil {
			return err
		}
		b.log.Debug("free variable", zap.String("node", u.name), zap.Int("length", length))
	}
	return nil
}

// parents resolves every reference to a registry position, checking that
// scalars are not indexed and vectors are.
func (b *builder) parents() ([][]int, error) {
	parents := make([][]int, b.reg.Len())
	for p := 0; p < b.reg.Len(); p++ {
		n := b.reg.Node(p)
		for _, e := range n.Exprs() {
			for _, r := range expr.Refs(e) {
				v, _ := b.reg.Variable(r.Name)
				switch {
				case v.Scalar() && r.Index != nil:
					return nil, errors.Errorf("Node %s indexes scalar %s", n.ID, r.Name)
				case !v.Scalar() && r.Index == nil:
					return nil, errors.Errorf("Node %s uses vector %s without an index", n.ID, r.Name)
				}
				pos, ok := b.reg.Lookup(r.ID())
				if !ok {
					return nil, errors.Wrapf(ErrUnknownNode, "Node %s refers to %s (length %d)", n.ID, r.ID(), v.Length)
				}
				parents[p] = append(parents[p], pos)
			}
		}
	}
	return parents, nil
}

func (b *builder) inits() error {
	keys := make([]string, 0, len(b.decl.Inits))
	for k := range b.decl.Inits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pos, err := b.reg.targets(key, len(b.decl.Inits[key]))
		if err != nil {
			return errors.Wrap(err, "Invalid inits")
		}
		for j, p := range pos {
			if v, ok := b.decl.Inits[key][j].Get(); ok {
				b.reg.Put(p, v)
			}
		}
	}
	return nil
}

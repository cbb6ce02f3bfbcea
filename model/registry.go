package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/expr"
)

// Registry owns every declared name, the node values and the data flags.
type Registry struct {
	constants map[string][]float64
	vars      map[string]*Variable
	names     []string // non-constant variables in declaration order
	nodes     []*Node
	index     map[string]int // node ID -> position

	values []float64
	data   []bool
	set    []bool // value assigned by inits, data, simulation or SetValue
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		constants: make(map[string][]float64),
		vars:      make(map[string]*Variable),
		index:     make(map[string]int),
	}
}

// DeclareConstant registers a constant. Scalars are stored with length one.
func (r *Registry) DeclareConstant(name string, value []float64) error {
	if len(value) < 1 {
		return errors.Errorf("Constant %s has no value", name)
	}
	if old, ok := r.vars[name]; ok {
		if old.Role == RoleConstant && floatsEqual(r.constants[name], value) {
			return nil
		}
		return errors.Wrapf(ErrDuplicateDeclaration, "Constant %s", name)
	}

	cp := make([]float64, len(value))
	copy(cp, value)
	r.constants[name] = cp
	length := len(cp)
	if length == 1 {
		length = 0
	}
	r.vars[name] = &Variable{Name: name, Role: RoleConstant, Length: length}
	return nil
}

// Declare registers a free, stochastic or deterministic variable with
// length elements (0 for a scalar) and creates its nodes. Declaring the
// same name again with the same role and shape is a no-op.
func (r *Registry) Declare(name string, role Role, length int) error {
	var kind Kind
	switch role {
	case RoleStochastic:
		kind = KindStochastic
	case RoleDeterministic:
		kind = KindDeterministic
	case RoleFree:
		kind = KindFree
	default:
		return errors.Errorf("Can not declare %s with role %s", name, role)
	}
	if length < 0 {
		return errors.Errorf("Invalid length %d for %s", length, name)
	}
	if !validName(name) {
		return errors.Errorf("Invalid variable name %q", name)
	}

	if old, ok := r.vars[name]; ok {
		if old.Role == role && old.Length == length {
			return nil
		}
		return errors.Wrapf(ErrDuplicateDeclaration, "%s declared as %s[%d], now %s[%d]",
			name, old.Role, old.Length, role, length)
	}

	v := &Variable{Name: name, Role: role, Length: length}
	count := length
	if length == 0 {
		count = 1
	}
	for k := 0; k < count; k++ {
		n := &Node{Base: name, Index: -1, Pos: len(r.nodes), Kind: kind}
		n.ID = name
		if length > 0 {
			n.Index = k
			n.ID = expr.ElementID(name, k)
		}
		r.index[n.ID] = n.Pos
		r.nodes = append(r.nodes, n)
		r.values = append(r.values, math.NaN())
		r.data = append(r.data, false)
		r.set = append(r.set, false)
		v.Nodes = append(v.Nodes, n.Pos)
	}

	r.vars[name] = v
	r.names = append(r.names, name)
	return nil
}

func validName(name string) bool {
	for i, c := range name {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && (c >= '0' && c <= '9'):
		default:
			return false
		}
	}
	return len(name) > 0
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Len is the number of nodes
func (r *Registry) Len() int { return len(r.nodes) }

// Node returns the node at a registry position
func (r *Registry) Node(pos int) *Node { return r.nodes[pos] }

// Lookup returns the position of a node ID
func (r *Registry) Lookup(id string) (int, bool) {
	p, ok := r.index[id]
	return p, ok
}

// Variable returns the declaration of a name
func (r *Registry) Variable(name string) (*Variable, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Constants returns the constant table. Callers must not modify it.
func (r *Registry) Constants() map[string][]float64 {
	return r.constants
}

// Names returns the non-constant variable names in declaration order
func (r *Registry) Names() []string {
	cp := make([]string, len(r.names))
	copy(cp, r.names)
	return cp
}

// Get returns the value at a position
func (r *Registry) Get(pos int) float64 { return r.values[pos] }

// Put writes the value at a position without any role check. It is for
// samplers working on nodes already known to be unobserved.
func (r *Registry) Put(pos int, v float64) {
	r.values[pos] = v
	r.set[pos] = true
}

// Values returns the raw value slice indexed by position. Callers must not
// keep it across Clone.
func (r *Registry) Values() []float64 { return r.values }

// Data reports the data flag at a position
func (r *Registry) Data(pos int) bool { return r.data[pos] }

// Initialized reports whether the node at pos has ever been given a value
func (r *Registry) Initialized(pos int) bool { return r.set[pos] }

// Role returns the current role of a constant, variable or node ID. A vector
// variable is data only when every element is.
func (r *Registry) Role(name string) (Role, error) {
	if p, ok := r.index[name]; ok {
		if r.data[p] {
			return RoleData, nil
		}
		return r.nodes[p].Kind.Role(), nil
	}
	if v, ok := r.vars[name]; ok {
		if v.Role == RoleConstant {
			return RoleConstant, nil
		}
		for _, p := range v.Nodes {
			if !r.data[p] {
				return v.Role, nil
			}
		}
		return RoleData, nil
	}
	if _, ok := r.constantElement(name); ok {
		return RoleConstant, nil
	}
	return 0, errors.Wrapf(ErrUnknownNode, "%s", name)
}

// IsData reports whether a node ID (or every element of a variable) is data.
// Unknown names and constants are not data.
func (r *Registry) IsData(name string) bool {
	role, err := r.Role(name)
	return err == nil && role == RoleData
}

func (r *Registry) constantElement(id string) (float64, bool) {
	name, k, err := expr.ParseID(id)
	if err != nil {
		return 0, false
	}
	c, ok := r.constants[name]
	if !ok {
		return 0, false
	}
	if k < 0 {
		if len(c) != 1 {
			return 0, false
		}
		k = 0
	}
	if k >= len(c) {
		return 0, false
	}
	return c[k], true
}

// Value returns the current value of a node ID or scalar constant (or
// constant element).
func (r *Registry) Value(id string) (float64, error) {
	if p, ok := r.index[id]; ok {
		return r.values[p], nil
	}
	if v, ok := r.constantElement(id); ok {
		return v, nil
	}
	if v, ok := r.vars[id]; ok && !v.Scalar() {
		return 0, errors.Errorf("%s is a vector of length %d: use an element id", id, v.Length)
	}
	return 0, errors.Wrapf(ErrUnknownNode, "%s", id)
}

// SetValue assigns a node. Constants are read-only and data nodes are
// immutable.
func (r *Registry) SetValue(id string, value float64) error {
	p, ok := r.index[id]
	if !ok {
		if _, isConst := r.constantElement(id); isConst {
			return errors.Wrapf(ErrReadOnly, "Can not set %s", id)
		}
		if v, isVar := r.vars[id]; isVar {
			if v.Role == RoleConstant {
				return errors.Wrapf(ErrReadOnly, "Can not set %s", id)
			}
			return errors.Errorf("%s is a vector of length %d: use an element id", id, v.Length)
		}
		return errors.Wrapf(ErrUnknownNode, "%s", id)
	}
	if r.data[p] {
		return errors.Wrapf(ErrImmutableNode, "Can not set %s", id)
	}
	r.Put(p, value)
	return nil
}

// targets resolves a Values key to node positions and checks the entry
// count.
func (r *Registry) targets(key string, count int) ([]int, error) {
	if p, ok := r.index[key]; ok {
		if count != 1 {
			return nil, errors.Errorf("%s needs exactly one entry, found %d", key, count)
		}
		return []int{p}, nil
	}
	v, ok := r.vars[key]
	if !ok {
		if _, isConst := r.constantElement(key); isConst {
			return nil, errors.Wrapf(ErrReadOnly, "%s", key)
		}
		return nil, errors.Wrapf(ErrUnknownNode, "%s", key)
	}
	if v.Role == RoleConstant {
		return nil, errors.Wrapf(ErrReadOnly, "%s", key)
	}
	if len(v.Nodes) != count {
		return nil, errors.Errorf("%s has %d elements, found %d entries", key, len(v.Nodes), count)
	}
	return v.Nodes, nil
}

// SetData applies observed values. Provided entries become data with the
// value copied in; Missing entries become (or stay) non-data and keep their
// current value. Nothing is modified if any key is invalid.
func (r *Registry) SetData(vals Values) error {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make([][]int, len(keys))
	for i, key := range keys {
		pos, err := r.targets(key, len(vals[key]))
		if err != nil {
			return errors.Wrap(err, "Invalid data")
		}
		for j, p := range pos {
			if _, ok := vals[key][j].Get(); ok && r.nodes[p].Kind == KindDeterministic {
				return errors.Errorf("Deterministic node %s can not be data", r.nodes[p].ID)
			}
		}
		resolved[i] = pos
	}

	for i, key := range keys {
		for j, p := range resolved[i] {
			v, ok := vals[key][j].Get()
			if !ok {
				r.data[p] = false
				continue
			}
			r.data[p] = true
			r.values[p] = v
			r.set[p] = true
		}
	}
	return nil
}

// ResetData clears the data flag of the named variables or node IDs, or of
// every node when called without names. Values are kept.
func (r *Registry) ResetData(names ...string) error {
	if len(names) == 0 {
		for p := range r.data {
			r.data[p] = false
		}
		return nil
	}
	pos, err := r.Select(names...)
	if err != nil {
		return err
	}
	for _, p := range pos {
		r.data[p] = false
	}
	return nil
}

// Select resolves variable names and node IDs to sorted, unique node
// positions.
func (r *Registry) Select(selectors ...string) ([]int, error) {
	seen := make(map[int]bool)
	var pos []int
	for _, s := range selectors {
		var ps []int
		if p, ok := r.index[s]; ok {
			ps = []int{p}
		} else if v, ok := r.vars[s]; ok && v.Role != RoleConstant {
			ps = v.Nodes
		} else if ok {
			return nil, errors.Wrapf(ErrReadOnly, "Constant %s", s)
		} else if _, isConst := r.constantElement(s); isConst {
			return nil, errors.Wrapf(ErrReadOnly, "Constant %s", s)
		} else {
			return nil, errors.Wrapf(ErrUnknownNode, "%s", s)
		}
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				pos = append(pos, p)
			}
		}
	}
	sort.Ints(pos)
	return pos, nil
}

// Clone returns an independent copy. Nodes are shared since they are
// immutable.
func (r *Registry) Clone() *Registry {
	cp := &Registry{
		constants: make(map[string][]float64, len(r.constants)),
		vars:      make(map[string]*Variable, len(r.vars)),
		names:     make([]string, len(r.names)),
		nodes:     make([]*Node, len(r.nodes)),
		index:     make(map[string]int, len(r.index)),
		values:    make([]float64, len(r.values)),
		data:      make([]bool, len(r.data)),
		set:       make([]bool, len(r.set)),
	}
	for k, v := range r.constants {
		c := make([]float64, len(v))
		copy(c, v)
		cp.constants[k] = c
	}
	for k, v := range r.vars {
		cp.vars[k] = v.Clone()
	}
	for k, v := range r.index {
		cp.index[k] = v
	}
	copy(cp.names, r.names)
	copy(cp.nodes, r.nodes)
	copy(cp.values, r.values)
	copy(cp.data, r.data)
	copy(cp.set, r.set)
	return cp
}

// Package model holds the probabilistic graphical model: the variable
// registry, the dependency graph and the node evaluators.
package model

import (
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/dist"
	"github.com/CraigKelly/bayesgraph/rand"
)

// Reader implementors instantiate a model declaration from a byte stream and
// optionally apply data/inits from a second byte stream.
type Reader interface {
	ReadModel(data []byte) (*Declaration, error)
	ReadData(data []byte, decl *Declaration) error
}

// Model is a built graphical model. It is not safe for concurrent use: run
// chains on clones.
type Model struct {
	Name string

	reg      *Registry
	graph    *Graph
	eval     Evaluator
	compiled bool
	seed     int64
	src      dist.Source
	log      *zap.Logger
	buf      []float64
}

type options struct {
	log  *zap.Logger
	seed int64
	name string
}

// Option configures Build
type Option func(*options)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSeed seeds the generator used by Simulate
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// WithName names the model
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Build creates the registry and graph from a declaration: constants are
// folded, vector declarations expanded, free variables discovered, inits
// and data applied and every deterministic node calculated.
func Build(decl Declaration, opts ...Option) (*Model, error) {
	o := options{log: zap.NewNop(), seed: 1}
	for _, opt := range opts {
		opt(&o)
	}

	b := &builder{decl: decl, reg: NewRegistry(), log: o.log}
	if err := b.declare(); err != nil {
		return nil, err
	}
	for _, nd := range decl.Nodes {
		if err := b.bind(nd); err != nil {
			return nil, err
		}
	}
	if err := b.discover(); err != nil {
		return nil, err
	}
	parents, err := b.parents()
	if err != nil {
		return nil, err
	}

	kinds := make([]Kind, b.reg.Len())
	ids := make([]string, b.reg.Len())
	for p := range kinds {
		kinds[p] = b.reg.Node(p).Kind
		ids[p] = b.reg.Node(p).ID
	}
	graph, err := NewGraph(kinds, parents, ids)
	if err != nil {
		return nil, err
	}

	gen, err := rand.NewGenerator(o.seed)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not seed model generator")
	}

	m := &Model{
		Name:  o.name,
		reg:   b.reg,
		graph: graph,
		eval:  NewInterpreter(b.reg.index),
		seed:  o.seed,
		src:   gen,
		log:   o.log,
	}
	if err := b.inits(); err != nil {
		return nil, err
	}
	if err := m.reg.SetData(decl.Data); err != nil {
		return nil, err
	}
	m.recompute(m.deterministicNodes())

	o.log.Debug("model built",
		zap.String("model", m.Name),
		zap.Int("nodes", m.reg.Len()),
		zap.Int("variables", len(m.reg.Names())))
	return m, nil
}

// NewModelFromFile reads a model file and, when dataFile is not empty, a
// data/inits file before building.
func NewModelFromFile(r Reader, filename string, dataFile string, opts ...Option) (*Model, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ model from %s", filename)
	}

	decl, err := r.ReadModel(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not PARSE model %s", filename)
	}

	if dataFile != "" {
		data, err = os.ReadFile(dataFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not READ model data from %s", dataFile)
		}
		if err = r.ReadData(data, decl); err != nil {
			return nil, errors.Wrapf(err, "Could not apply data file %s", dataFile)
		}
	}

	ext := filepath.Ext(filename)
	opts = append([]Option{WithName(filepath.Base(filename[0 : len(filename)-len(ext)]))}, opts...)
	m, err := Build(*decl, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "Model %s is not valid", filename)
	}
	return m, nil
}

// Registry exposes the registry. Mutating it directly skips role checks.
func (m *Model) Registry() *Registry { return m.reg }

// Graph returns the dependency graph
func (m *Model) Graph() *Graph { return m.graph }

// Evaluator returns the active evaluator
func (m *Model) Evaluator() Evaluator { return m.eval }

// IsCompiled reports whether the model uses compiled expressions
func (m *Model) IsCompiled() bool { return m.compiled }

// Logger returns the model logger
func (m *Model) Logger() *zap.Logger { return m.log }

// IsData reports whether a node (or every element of a variable) is data
func (m *Model) IsData(name string) bool { return m.reg.IsData(name) }

// Value returns the current value of a node ID or constant
func (m *Model) Value(id string) (float64, error) { return m.reg.Value(id) }

// Values returns every element value of a variable or vector constant
func (m *Model) Values(name string) ([]float64, error) {
	v, ok := m.reg.Variable(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "%s", name)
	}
	if v.Role == RoleConstant {
		c := m.reg.Constants()[name]
		cp := make([]float64, len(c))
		copy(cp, c)
		return cp, nil
	}
	out := make([]float64, len(v.Nodes))
	for i, p := range v.Nodes {
		out[i] = m.reg.Get(p)
	}
	return out, nil
}

// VarNames returns every non-constant variable name once, in declaration
// order with free variables last.
func (m *Model) VarNames() []string { return m.reg.Names() }

// NodeNames returns every node ID in declaration order
func (m *Model) NodeNames() []string {
	ids := make([]string, m.reg.Len())
	for p := range ids {
		ids[p] = m.reg.Node(p).ID
	}
	return ids
}

// Role returns the role of a name
func (m *Model) Role(name string) (Role, error) { return m.reg.Role(name) }

// SetValue assigns a non-data node. Deterministic descendants are not
// recalculated until Calculate.
func (m *Model) SetValue(id string, value float64) error { return m.reg.SetValue(id, value) }

// SetData applies observed values and recalculates deterministic nodes
func (m *Model) SetData(vals Values) error {
	if err := m.reg.SetData(vals); err != nil {
		return err
	}
	m.recompute(m.deterministicNodes())
	return nil
}

// ResetData clears data flags (all of them without names)
func (m *Model) ResetData(names ...string) error { return m.reg.ResetData(names...) }

// Source returns the generator used by Simulate
func (m *Model) Source() dist.Source { return m.src }

// SetSource replaces the generator used by Simulate
func (m *Model) SetSource(src dist.Source) { m.src = src }

// Simulate draws the selected stochastic nodes from their prior in
// topological order, recalculating deterministic descendants after each
// draw. Without selectors every unobserved stochastic node is drawn. Data
// nodes in the selection fail with ErrImmutableNode and nothing is changed.
// The prior is unconstrained: downstream interval observations are not
// enforced.
func (m *Model) Simulate(selectors ...string) error {
	var pos []int
	if len(selectors) == 0 {
		for p := 0; p < m.reg.Len(); p++ {
			if m.reg.Node(p).Kind == KindStochastic && !m.reg.Data(p) {
				pos = append(pos, p)
			}
		}
	} else {
		var err error
		pos, err = m.reg.Select(selectors...)
		if err != nil {
			return err
		}
		for _, p := range pos {
			n := m.reg.Node(p)
			if m.reg.Data(p) {
				return errors.Wrapf(ErrImmutableNode, "Can not simulate %s", n.ID)
			}
			if n.Kind == KindFree {
				return errors.Errorf("Free variable %s has no distribution to simulate", n.ID)
			}
		}
	}

	m.graph.sortByRank(pos)
	for _, p := range pos {
		n := m.reg.Node(p)
		if n.Kind == KindDeterministic {
			m.reg.Put(p, m.eval.Deterministic(n, m.reg.values))
			continue
		}
		v := m.Draw(p, m.src)
		if math.IsNaN(v) {
			return errors.Wrapf(&ParamError{Node: n.ID, Params: slices.Clone(m.Params(p))}, "Could not simulate %s", n.ID)
		}
		m.reg.Put(p, v)
		m.recompute(m.graph.Descendants([]int{p}))
	}
	return nil
}

// LogDensity sums the log density of the selected stochastic nodes (all of
// them, data included, without selectors). A value outside its support
// fails with a *DomainError.
func (m *Model) LogDensity(selectors ...string) (float64, error) {
	pos, err := m.stochastic(selectors)
	if err != nil {
		return 0, err
	}
	return m.logDensity(pos)
}

// Calculate recalculates the selected deterministic nodes and returns the
// log density of the selected stochastic nodes, in topological order.
// Without selectors it covers the whole model.
func (m *Model) Calculate(selectors ...string) (float64, error) {
	var pos []int
	if len(selectors) == 0 {
		pos = make([]int, 0, m.reg.Len())
		for v := range m.graph.TopologicalOrder() {
			pos = append(pos, v)
		}
	} else {
		var err error
		pos, err = m.reg.Select(selectors...)
		if err != nil {
			return 0, err
		}
		m.graph.sortByRank(pos)
	}

	var stoch []int
	for _, p := range pos {
		switch m.reg.Node(p).Kind {
		case KindDeterministic:
			m.recompute([]int{p})
		case KindStochastic:
			stoch = append(stoch, p)
		}
	}
	return m.logDensity(stoch)
}

func (m *Model) stochastic(selectors []string) ([]int, error) {
	var pos []int
	if len(selectors) == 0 {
		for p := 0; p < m.reg.Len(); p++ {
			pos = append(pos, p)
		}
	} else {
		var err error
		if pos, err = m.reg.Select(selectors...); err != nil {
			return nil, err
		}
	}
	out := pos[:0]
	for _, p := range pos {
		if m.reg.Node(p).Kind == KindStochastic {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Model) logDensity(pos []int) (float64, error) {
	var total float64
	for _, p := range pos {
		n := m.reg.Node(p)
		params := m.Params(p)
		x := m.reg.Get(p)
		lp := n.Family.LogProb(x, params)
		if err := domainCheck(n, x, params, lp); err != nil {
			return lp, err
		}
		total += lp
	}
	return total, nil
}

// Params returns the current parameter values of a stochastic node. The
// slice is reused by the next call.
func (m *Model) Params(pos int) []float64 {
	m.buf = m.eval.Params(m.reg.Node(pos), m.reg.values, m.buf[:0])
	return m.buf
}

// LogProb is the log density of one stochastic node at its current value
func (m *Model) LogProb(pos int) float64 {
	return m.reg.Node(pos).Family.LogProb(m.reg.values[pos], m.Params(pos))
}

// LogProbSum adds LogProb over nodes
func (m *Model) LogProbSum(pos []int) float64 {
	var total float64
	for _, p := range pos {
		total += m.LogProb(p)
	}
	return total
}

// Draw returns a prior draw for a stochastic node without storing it
func (m *Model) Draw(pos int, src dist.Source) float64 {
	return m.reg.Node(pos).Family.Rand(src, m.Params(pos))
}

// Recompute evaluates deterministic nodes in the given order
func (m *Model) Recompute(pos []int) { m.recompute(pos) }

func (m *Model) recompute(pos []int) {
	for _, p := range pos {
		m.reg.values[p] = m.eval.Deterministic(m.reg.Node(p), m.reg.values)
		m.reg.set[p] = true
	}
}

func (m *Model) deterministicNodes() []int {
	var pos []int
	for v := range m.graph.TopologicalOrder() {
		if m.reg.Node(v).Kind == KindDeterministic {
			pos = append(pos, v)
		}
	}
	return pos
}

// Clone returns an independent copy sharing only immutable structure. The
// clone gets a fresh generator with the model seed.
func (m *Model) Clone() *Model {
	cp := *m
	cp.reg = m.reg.Clone()
	cp.buf = nil
	if gen, err := rand.NewGenerator(m.seed); err == nil {
		cp.src = gen
	}
	return &cp
}

// Compile returns a clone whose evaluator runs closures built from the bound
// expressions. Results are identical to the interpreter.
func (m *Model) Compile() (*Model, error) {
	c, err := CompileNodes(m.reg.nodes, m.reg.index)
	if err != nil {
		return nil, err
	}
	cp := m.Clone()
	cp.eval = c
	cp.compiled = true
	return cp, nil
}

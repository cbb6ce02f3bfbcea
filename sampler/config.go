package sampler

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/model"
)

// ErrFrozen is returned for changes to a finalized configuration
var ErrFrozen = errors.New("Configuration is finalized")

// Assignment names the procedure updating one node or block of nodes
type Assignment struct {
	Procedure string
	Targets   []string
}

type options struct {
	log      *zap.Logger
	monitors []string
	replace  bool
	metrics  *Metrics
}

// Option configures Configure and NewEngine
type Option func(*options)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMonitors replaces the default monitors (every unobserved stochastic
// node) with the named nodes.
func WithMonitors(names ...string) Option {
	return func(o *options) {
		o.monitors = append(o.monitors, names...)
		o.replace = true
	}
}

// WithMetrics records engine activity in m
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func newOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// step is one procedure with its targets, in the order chains run them
type step struct {
	procedure string
	targets   []int
}

// Configuration maps every unobserved stochastic node to an update procedure
// and lists the monitored nodes. It works on a snapshot of the model taken by
// Configure.
type Configuration struct {
	m        *model.Model
	log      *zap.Logger
	steps    []step
	monitors []int
	frozen   *Frozen
}

// Configure snapshots the model and assigns a default procedure to every
// unobserved stochastic node, visited in topological order.
func Configure(m *model.Model, opts ...Option) (*Configuration, error) {
	if m == nil {
		return nil, errors.New("No model supplied")
	}
	o := newOptions(opts)
	c := &Configuration{m: m.Clone(), log: o.log}

	reg := c.m.Registry()
	for p := range c.m.Graph().TopologicalOrder() {
		if reg.Node(p).Kind != model.KindStochastic || reg.Data(p) {
			continue
		}
		proc := defaultProcedure(c.m, p)
		c.steps = append(c.steps, step{procedure: proc, targets: []int{p}})
		c.log.Debug("default procedure",
			zap.String("node", reg.Node(p).ID),
			zap.String("procedure", proc))
	}

	if !o.replace {
		for p := 0; p < reg.Len(); p++ {
			if reg.Node(p).Kind == model.KindStochastic && !reg.Data(p) {
				c.monitors = append(c.monitors, p)
			}
		}
	}
	if err := c.AddMonitors(o.monitors...); err != nil {
		return nil, err
	}
	return c, nil
}

// defaultProcedure picks the procedure for a node: direct simulation when
// nothing depends on it, enumeration for finite discrete supports, integer
// walks for other discrete ones, a constrained walk under an interval
// observation, a reflecting walk for bounded supports and a plain walk
// otherwise.
func defaultProcedure(m *model.Model, p int) string {
	n := m.Registry().Node(p)
	_, stoch := m.Graph().Dependencies(p)
	if len(stoch) == 0 {
		return ProcPosteriorPredictive
	}
	if n.Family.Discrete() {
		if _, _, ok := finiteSupport(m, p); ok {
			return ProcGibbsDiscrete
		}
		return ProcDiscreteWalk
	}
	for _, s := range stoch {
		if constrains(m, s, p) {
			return ProcConstrained
		}
	}
	lo, hi := ownSupport(m, p)
	if !math.IsInf(lo, -1) || !math.IsInf(hi, 1) {
		return ProcReflect
	}
	return ProcRandomWalk
}

// Override assigns a procedure to the selected nodes. A block procedure gets
// one assignment covering every selected node; others get one per node.
// Base names skip their data elements, but naming a data element directly
// fails with ErrImmutableNode.
func (c *Configuration) Override(procedure string, selectors ...string) error {
	if c.frozen != nil {
		return errors.Wrapf(ErrFrozen, "Can not override %v", selectors)
	}
	f, ok := procedures[procedure]
	if !ok {
		return errors.Errorf("Unknown procedure %s (known: %v)", procedure, Procedures())
	}
	if len(selectors) < 1 {
		return errors.Errorf("No nodes selected for %s", procedure)
	}

	reg := c.m.Registry()
	seen := make(map[int]bool)
	var targets []int
	for _, sel := range selectors {
		pos, err := reg.Select(sel)
		if err != nil {
			return err
		}
		kept := 0
		for _, p := range pos {
			n := reg.Node(p)
			if n.Kind != model.KindStochastic {
				return errors.Errorf("%s is a %s node, only stochastic nodes are sampled", n.ID, n.Kind)
			}
			if reg.Data(p) {
				continue
			}
			kept++
			if !seen[p] {
				seen[p] = true
				targets = append(targets, p)
			}
		}
		if kept == 0 {
			return errors.Wrapf(model.ErrImmutableNode, "Can not assign %s to data %s", procedure, sel)
		}
	}
	if err := f.check(c.m, targets); err != nil {
		return errors.Wrapf(err, "Procedure %s can not update %v", procedure, selectors)
	}

	g := c.m.Graph()
	sort.Slice(targets, func(i, j int) bool { return g.Rank(targets[i]) < g.Rank(targets[j]) })

	c.release(seen)
	if f.block {
		c.steps = append(c.steps, step{procedure: procedure, targets: targets})
	} else {
		for _, p := range targets {
			c.steps = append(c.steps, step{procedure: procedure, targets: []int{p}})
		}
	}
	c.log.Debug("procedure override",
		zap.String("procedure", procedure),
		zap.Strings("nodes", selectors))
	return nil
}

// release removes nodes from their current assignments
func (c *Configuration) release(nodes map[int]bool) {
	kept := c.steps[:0]
	for _, s := range c.steps {
		var left []int
		for _, p := range s.targets {
			if !nodes[p] {
				left = append(left, p)
			}
		}
		if len(left) > 0 {
			s.targets = left
			kept = append(kept, s)
		}
	}
	c.steps = kept
}

// AddMonitors traces the named nodes in addition to the current monitors.
// Data elements of a vector are skipped.
func (c *Configuration) AddMonitors(names ...string) error {
	if len(names) > 0 && c.frozen != nil {
		return errors.Wrapf(ErrFrozen, "Can not monitor %v", names)
	}
	reg := c.m.Registry()
	have := make(map[int]bool, len(c.monitors))
	for _, p := range c.monitors {
		have[p] = true
	}
	for _, name := range names {
		pos, err := reg.Select(name)
		if err != nil {
			return err
		}
		for _, p := range pos {
			if reg.Data(p) || have[p] {
				continue
			}
			have[p] = true
			c.monitors = append(c.monitors, p)
		}
	}
	return nil
}

// Assignments lists the procedures in execution order
func (c *Configuration) Assignments() []Assignment {
	return assignments(c.m, sortSteps(c.m, c.steps))
}

// Monitors lists the monitored node ids in column order
func (c *Configuration) Monitors() []string { return ids(c.m, c.monitors) }

// Finalize freezes the configuration. Calling it again returns the same
// Frozen value.
func (c *Configuration) Finalize() (*Frozen, error) {
	if c.frozen != nil {
		return c.frozen, nil
	}

	reg := c.m.Registry()
	owner := make(map[int]string)
	for _, s := range c.steps {
		for _, p := range s.targets {
			if prev, ok := owner[p]; ok {
				return nil, errors.Errorf("%s is assigned to both %s and %s", reg.Node(p).ID, prev, s.procedure)
			}
			owner[p] = s.procedure
		}
	}
	for p := 0; p < reg.Len(); p++ {
		if reg.Node(p).Kind == model.KindStochastic && !reg.Data(p) && owner[p] == "" {
			return nil, errors.Errorf("%s has no sampler assignment", reg.Node(p).ID)
		}
	}

	c.frozen = &Frozen{p: &plan{
		model:   c.m,
		steps:   sortSteps(c.m, c.steps),
		columns: append([]int(nil), c.monitors...),
		names:   ids(c.m, c.monitors),
	}}
	c.log.Info("sampler configuration finalized",
		zap.Int("procedures", len(c.steps)),
		zap.Int("monitors", len(c.monitors)))
	return c.frozen, nil
}

// Runnable is a finalized configuration the engine can load: a *Frozen or a
// *Compiled.
type Runnable interface {
	Assignments() []Assignment
	Monitors() []string
	plan() *plan
}

// plan is the read-only content shared by every chain of a run
type plan struct {
	model   *model.Model
	steps   []step
	columns []int
	names   []string
}

// Frozen is a finalized configuration. It is safe to share between
// goroutines.
type Frozen struct {
	p *plan

	mu       sync.Mutex
	compiled *Compiled
}

func (f *Frozen) plan() *plan { return f.p }

// Assignments lists the procedures in execution order
func (f *Frozen) Assignments() []Assignment { return assignments(f.p.model, f.p.steps) }

// Monitors lists the trace columns
func (f *Frozen) Monitors() []string { return append([]string(nil), f.p.names...) }

// Compile returns the configuration running on compiled expressions. The
// result is cached.
func (f *Frozen) Compile() (*Compiled, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compiled != nil {
		return f.compiled, nil
	}
	cm, err := f.p.model.Compile()
	if err != nil {
		return nil, errors.Wrap(err, "Could not compile model")
	}
	p := *f.p
	p.model = cm
	f.compiled = &Compiled{p: &p}
	return f.compiled, nil
}

// Compiled has the contract of Frozen but evaluates nodes with closures
// instead of walking expressions.
type Compiled struct {
	p *plan
}

func (c *Compiled) plan() *plan { return c.p }

// Assignments lists the procedures in execution order
func (c *Compiled) Assignments() []Assignment { return assignments(c.p.model, c.p.steps) }

// Monitors lists the trace columns
func (c *Compiled) Monitors() []string { return append([]string(nil), c.p.names...) }

func sortSteps(m *model.Model, steps []step) []step {
	out := make([]step, len(steps))
	for i, s := range steps {
		out[i] = step{procedure: s.procedure, targets: append([]int(nil), s.targets...)}
	}
	g := m.Graph()
	sort.SliceStable(out, func(i, j int) bool {
		return g.Rank(out[i].targets[0]) < g.Rank(out[j].targets[0])
	})
	return out
}

func assignments(m *model.Model, steps []step) []Assignment {
	out := make([]Assignment, len(steps))
	for i, s := range steps {
		out[i] = Assignment{Procedure: s.procedure, Targets: ids(m, s.targets)}
	}
	return out
}

func ids(m *model.Model, pos []int) []string {
	out := make([]string, len(pos))
	for i, p := range pos {
		out[i] = m.Registry().Node(p).ID
	}
	return out
}

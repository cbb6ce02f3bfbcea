package sampler

import (
	"context"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
	"github.com/CraigKelly/bayesgraph/trace"
)

// Chain runs the procedures of a finalized configuration over its own model
// snapshot. Nothing in a chain is shared with other chains.
type Chain struct {
	ID         int
	Target     *model.Model
	Procedures []Procedure
	History    *trace.Buffer
	Iteration  int // last completed iteration (0 before the first)

	src     *rand.Generator
	columns []int
	row     []float64
	log     *zap.Logger

	iterations prometheus.Counter
	accepted   []prometheus.Counter
	rejected   []prometheus.Counter
}

// newChain clones the plan's model and builds fresh procedure instances.
// The generator is keyed by both the run seed and the chain number.
func newChain(p *plan, id int, seed int64, capacity int, o options) (*Chain, error) {
	gen, err := rand.NewGeneratorSlice([]uint64{uint64(seed), uint64(id)})
	if err != nil {
		return nil, errors.Wrapf(err, "Could not seed chain %d", id)
	}
	m := p.model.Clone()
	m.SetSource(gen)

	ch := &Chain{
		ID:         id,
		Target:     m,
		Procedures: make([]Procedure, len(p.steps)),
		History:    trace.NewBuffer(id, p.names, capacity),
		src:        gen,
		columns:    p.columns,
		row:        make([]float64, len(p.columns)),
		log:        o.log.With(zap.Int("chain", id)),
	}
	for i, s := range p.steps {
		ch.Procedures[i] = procedures[s.procedure].build(m, s.targets)
	}

	if o.metrics != nil {
		ch.iterations = o.metrics.Iterations.WithLabelValues(strconv.Itoa(id))
		ch.accepted = make([]prometheus.Counter, len(ch.Procedures))
		ch.rejected = make([]prometheus.Counter, len(ch.Procedures))
		for i, proc := range ch.Procedures {
			ch.accepted[i] = o.metrics.Proposals.WithLabelValues(proc.Name(), "accepted")
			ch.rejected[i] = o.metrics.Proposals.WithLabelValues(proc.Name(), "rejected")
		}
	}
	return ch, nil
}

// init simulates every unobserved stochastic node without an initial value
// and checks the starting point.
func (c *Chain) init() error {
	reg := c.Target.Registry()
	var missing []string
	for p := range c.Target.Graph().TopologicalOrder() {
		n := reg.Node(p)
		if n.Kind == model.KindStochastic && !reg.Data(p) && !reg.Initialized(p) {
			missing = append(missing, n.ID)
		}
	}
	if len(missing) > 0 {
		if err := c.Target.Simulate(missing...); err != nil {
			node := ""
			var pe *model.ParamError
			if errors.As(err, &pe) {
				node = pe.Node
			}
			return c.failure(0, node, "init", err)
		}
		c.log.Debug("simulated initial values", zap.Strings("nodes", missing))
	}

	lp, err := c.Target.Calculate()
	if err != nil {
		node := ""
		var de *model.DomainError
		if errors.As(err, &de) {
			node = de.Node
		}
		return c.failure(0, node, "init", err)
	}
	if math.IsNaN(lp) {
		return c.failure(0, c.firstNaN(), "init", errors.New("Initial log density is NaN"))
	}
	return nil
}

// firstNaN is the first stochastic node, in topological order, whose log
// density is NaN
func (c *Chain) firstNaN() string {
	reg := c.Target.Registry()
	for p := range c.Target.Graph().TopologicalOrder() {
		if reg.Node(p).Kind == model.KindStochastic && math.IsNaN(c.Target.LogProb(p)) {
			return reg.Node(p).ID
		}
	}
	return ""
}

// run initializes the chain and iterates. Iterations are numbered from 1;
// rows are kept after burn-in every thin iterations, and only for complete
// iterations.
func (c *Chain) run(ctx context.Context, opts RunOptions) error {
	if err := c.init(); err != nil {
		return err
	}

	for it := 1; it <= opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return c.failure(it, "", "", err)
		}
		if err := c.oneIteration(it <= opts.Burnin); err != nil {
			return c.failure(it, err.node, err.procedure, err.cause)
		}
		c.Iteration = it
		if c.iterations != nil {
			c.iterations.Inc()
		}

		if it > opts.Burnin && (it-opts.Burnin)%opts.Thin == 0 {
			c.record()
		}
	}

	c.log.Debug("chain complete", zap.Int("iteration", c.Iteration), zap.Int("rows", c.History.Len()))
	return nil
}

type procError struct {
	node      string
	procedure string
	cause     error
}

// oneIteration runs every procedure once in plan order
func (c *Chain) oneIteration(adapt bool) *procError {
	for k, proc := range c.Procedures {
		accepted, err := proc.Update(c.Target, c.src, adapt)
		if err != nil {
			id := c.Target.Registry().Node(proc.Targets()[0]).ID
			return &procError{node: id, procedure: proc.Name(), cause: err}
		}
		if c.accepted != nil {
			if accepted {
				c.accepted[k].Inc()
			} else {
				c.rejected[k].Inc()
			}
		}
	}
	return nil
}

func (c *Chain) record() {
	reg := c.Target.Registry()
	for i, p := range c.columns {
		c.row[i] = reg.Get(p)
	}
	c.History.Append(c.row)
}

func (c *Chain) failure(iteration int, node, procedure string, cause error) error {
	f := &SamplingFailure{
		Chain:     c.ID,
		Iteration: iteration,
		Node:      node,
		Procedure: procedure,
		Cause:     cause,
	}
	c.log.Warn("chain failed",
		zap.Int("iteration", iteration),
		zap.String("node", node),
		zap.String("procedure", procedure),
		zap.Error(cause))
	return f
}

package sampler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/trace"
)

// State of an Engine
type State int

// Engine states. Load moves Idle, Completed or Failed to Configured; Run
// moves Configured through Running to Completed or Failed.
const (
	Idle State = iota
	Configured
	Running
	Completed
	Failed
)

var stateNames = [...]string{"idle", "configured", "running", "completed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// RunOptions controls one run. Thin defaults to 1 and Parallel (the number
// of chains sampling at once) to Chains.
type RunOptions struct {
	Iterations int
	Burnin     int
	Chains     int
	Seed       int64
	Thin       int
	Parallel   int
}

func (o RunOptions) normalize() (RunOptions, error) {
	if o.Iterations < 0 {
		return o, errors.Errorf("Iterations must not be negative, found %d", o.Iterations)
	}
	if o.Burnin < 0 || o.Burnin > o.Iterations {
		return o, errors.Errorf("Burn-in must be in 0..%d, found %d", o.Iterations, o.Burnin)
	}
	if o.Chains < 1 {
		return o, errors.Errorf("At least 1 chain required, found %d", o.Chains)
	}
	if o.Thin == 0 {
		o.Thin = 1
	}
	if o.Thin < 1 {
		return o, errors.Errorf("Thin must be positive, found %d", o.Thin)
	}
	if o.Parallel <= 0 || o.Parallel > o.Chains {
		o.Parallel = o.Chains
	}
	return o, nil
}

// SamplingFailure aborts one chain. Iteration 0 means the starting point
// was unusable.
type SamplingFailure struct {
	Chain     int
	Iteration int
	Node      string
	Procedure string
	Cause     error
}

func (f *SamplingFailure) Error() string {
	where := ""
	if f.Node != "" {
		where = " on " + f.Node
	}
	if f.Procedure != "" {
		where += " (" + f.Procedure + ")"
	}
	return fmt.Sprintf("%s: chain %d iteration %d%s: %v", model.ErrSamplingFailure, f.Chain, f.Iteration, where, f.Cause)
}

// Unwrap returns the cause
func (f *SamplingFailure) Unwrap() error { return f.Cause }

// Is lets errors.Is(err, model.ErrSamplingFailure) match.
func (f *SamplingFailure) Is(target error) bool { return target == model.ErrSamplingFailure }

// RunError lists the chains that failed in a run
type RunError struct {
	Failures []*SamplingFailure
}

func (e *RunError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d chain(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As
func (e *RunError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Engine runs a finalized configuration. It is safe for concurrent use,
// but only one Run happens at a time.
type Engine struct {
	mu    sync.Mutex
	state State
	plan  *plan
	runID string
	o     options
}

// NewEngine returns an idle engine
func NewEngine(opts ...Option) *Engine {
	return &Engine{state: Idle, o: newOptions(opts)}
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunID identifies the most recent run (empty before the first)
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Load readies the engine to run r
func (e *Engine) Load(r Runnable) error {
	if r == nil {
		return errors.New("No configuration supplied")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Running {
		return errors.New("Can not load a configuration while running")
	}
	e.plan = r.plan()
	e.state = Configured
	return nil
}

// Run samples every chain and returns one trace per chain, in chain order.
// Failed chains keep the rows of their completed iterations and are listed
// in the returned *RunError; the other chains are unaffected. Cancelling
// ctx fails every chain still running.
func (e *Engine) Run(ctx context.Context, opts RunOptions) ([]*trace.Trace, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.state != Configured {
		st := e.state
		e.mu.Unlock()
		return nil, errors.Errorf("Engine must be configured to run, state is %s", st)
	}
	e.state = Running
	e.runID = uuid.NewString()
	p, runID := e.plan, e.runID
	e.mu.Unlock()

	log := e.o.log.With(zap.String("run_id", runID))
	log.Info("run started",
		zap.Int("iterations", opts.Iterations),
		zap.Int("burnin", opts.Burnin),
		zap.Int("chains", opts.Chains),
		zap.Int64("seed", opts.Seed),
		zap.Bool("compiled", p.model.IsCompiled()))
	start := time.Now()

	kept := (opts.Iterations - opts.Burnin) / opts.Thin
	traces := make([]*trace.Trace, opts.Chains)
	failures := make([]error, opts.Chains)
	co := e.o
	co.log = log

	var g errgroup.Group
	g.SetLimit(opts.Parallel)
	for id := 0; id < opts.Chains; id++ {
		g.Go(func() error {
			ch, err := newChain(p, id, opts.Seed, kept, co)
			if err != nil {
				failures[id] = &SamplingFailure{Chain: id, Procedure: "init", Cause: err}
				traces[id] = trace.NewBuffer(id, p.names, 0).Trace()
				return nil
			}
			if m := co.metrics; m != nil {
				m.ChainsRunning.Inc()
				defer m.ChainsRunning.Dec()
			}
			failures[id] = ch.run(ctx, opts)
			traces[id] = ch.History.Trace()
			return nil
		})
	}
	_ = g.Wait()

	runErr := &RunError{}
	for _, f := range failures {
		if f != nil {
			runErr.Failures = append(runErr.Failures, f.(*SamplingFailure))
		}
	}
	if m := co.metrics; m != nil {
		m.RunSeconds.Observe(time.Since(start).Seconds())
		m.Failures.Add(float64(len(runErr.Failures)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(runErr.Failures) > 0 {
		e.state = Failed
		log.Warn("run failed", zap.Int("failed_chains", len(runErr.Failures)), zap.Duration("elapsed", time.Since(start)))
		return traces, runErr
	}
	e.state = Completed
	log.Info("run complete", zap.Duration("elapsed", time.Since(start)))
	return traces, nil
}

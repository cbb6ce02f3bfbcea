package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/sampler"
	"github.com/CraigKelly/bayesgraph/trace"
	"github.com/CraigKelly/bayesgraph/tracestore"
)

type runParams struct {
	Iterations  int `validate:"gte=0"`
	Burnin      int `validate:"gte=0,ltefield=Iterations"`
	Chains      int `validate:"gte=1"`
	Thin        int `validate:"gte=1"`
	Parallel    int `validate:"gte=0"`
	Compile     bool
	Monitors    []string
	Samplers    []string
	TraceFile   string
	StoreFile   string
	MetricsAddr string `validate:"omitempty,hostname_port|startswith=:"`
}

var runValidate = validator.New()

// Validate checks the flag values before any model is read
func (rp *runParams) Validate() error {
	err := runValidate.Struct(rp)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s=%v fails %s", strings.ToLower(fe.Field()), fe.Value(), fe.Tag())
		if fe.Param() != "" {
			msgs[i] += " " + fe.Param()
		}
	}
	return errors.Errorf("Invalid run settings: %s", strings.Join(msgs, "; "))
}

func newRunCmd(s *settings) *cobra.Command {
	rp := &runParams{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample the posterior of a model",
		Long: `run configures a sampler for every unobserved stochastic node, runs the
requested chains and prints a posterior summary of the monitored nodes.

Procedures may be reassigned with --sampler PROCEDURE=NODE[,NODE...]; a
block procedure gets every listed node as one block.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSampler(cmd, s, rp)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&rp.Iterations, "iterations", "n", 2000, "Iterations per chain, burn-in included")
	flags.IntVarP(&rp.Burnin, "burnin", "b", 500, "Iterations discarded (and used for adaptation) at the start of each chain")
	flags.IntVar(&rp.Chains, "chains", 2, "Number of chains")
	flags.IntVar(&rp.Thin, "thin", 1, "Keep every thin-th iteration after burn-in")
	flags.IntVar(&rp.Parallel, "parallel", 0, "Chains sampled at once (default is all of them)")
	flags.BoolVar(&rp.Compile, "compile", false, "Run the compiled form of the model")
	flags.StringSliceVar(&rp.Monitors, "monitor", nil, "Extra nodes to record in the trace")
	flags.StringArrayVarP(&rp.Samplers, "sampler", "s", nil, "Procedure override as PROCEDURE=NODE[,NODE...] (repeatable)")
	flags.StringVarP(&rp.TraceFile, "trace", "t", "", "Write the traces to this CSV file")
	flags.StringVar(&rp.StoreFile, "store", "", "Save the run to this SQLite trace store")
	flags.StringVar(&rp.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :8000)")
	return cmd
}

// parseOverride splits PROCEDURE=NODE[,NODE...]
func parseOverride(s string) (string, []string, error) {
	proc, nodes, ok := strings.Cut(s, "=")
	proc = strings.TrimSpace(proc)
	if !ok || proc == "" {
		return "", nil, errors.Errorf("Sampler override %q must look like PROCEDURE=NODE[,NODE...]", s)
	}
	var selectors []string
	for _, n := range strings.Split(nodes, ",") {
		if n = strings.TrimSpace(n); n != "" {
			selectors = append(selectors, n)
		}
	}
	if len(selectors) < 1 {
		return "", nil, errors.Errorf("Sampler override %q names no nodes", s)
	}
	return proc, selectors, nil
}

func configureRun(s *settings, rp *runParams) (sampler.Runnable, string, error) {
	m, err := s.loadModel()
	if err != nil {
		return nil, "", err
	}
	conf, err := sampler.Configure(m, sampler.WithLogger(s.log))
	if err != nil {
		return nil, "", err
	}
	for _, o := range rp.Samplers {
		proc, selectors, err := parseOverride(o)
		if err != nil {
			return nil, "", err
		}
		if err := conf.Override(proc, selectors...); err != nil {
			return nil, "", errors.Wrapf(err, "Could not assign %s", proc)
		}
	}
	if err := conf.AddMonitors(rp.Monitors...); err != nil {
		return nil, "", err
	}

	frozen, err := conf.Finalize()
	if err != nil {
		return nil, "", err
	}
	if !rp.Compile {
		return frozen, m.Name, nil
	}
	compiled, err := frozen.Compile()
	if err != nil {
		return nil, "", err
	}
	return compiled, m.Name, nil
}

func runSampler(cmd *cobra.Command, s *settings, rp *runParams) error {
	if err := rp.Validate(); err != nil {
		return err
	}
	runnable, modelName, err := configureRun(s, rp)
	if err != nil {
		return err
	}

	engineOpts := []sampler.Option{sampler.WithLogger(s.log)}
	if rp.MetricsAddr != "" {
		mon, err := newMonitor(rp.MetricsAddr, s.log)
		if err != nil {
			return err
		}
		if err := mon.Start(); err != nil {
			return err
		}
		defer mon.Stop()
		engineOpts = append(engineOpts, sampler.WithMetrics(mon.Metrics))
	}

	engine := sampler.NewEngine(engineOpts...)
	if err := engine.Load(runnable); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := sampler.RunOptions{
		Iterations: rp.Iterations,
		Burnin:     rp.Burnin,
		Chains:     rp.Chains,
		Seed:       s.randomSeed,
		Thin:       rp.Thin,
		Parallel:   rp.Parallel,
	}
	traces, runErr := engine.Run(ctx, opts)
	if traces == nil {
		return runErr
	}

	// Partial traces of failed chains are still written out
	out := cmd.OutOrStdout()
	if rp.TraceFile != "" {
		if err := writeTraceFile(rp.TraceFile, traces); err != nil {
			return err
		}
		s.log.Info("traces written", zap.String("file", rp.TraceFile))
	}
	if rp.StoreFile != "" {
		id, err := saveRun(ctx, s, rp.StoreFile, tracestore.Run{
			ID:         engine.RunID(),
			Model:      modelName,
			Iterations: opts.Iterations,
			Burnin:     opts.Burnin,
			Thin:       opts.Thin,
			Seed:       opts.Seed,
			Compiled:   rp.Compile,
		}, traces)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Run %s saved to %s\n", id, rp.StoreFile)
	}

	fmt.Fprintf(out, "Model %s: %d chain(s), %d iterations, %d burn-in, thin %d\n",
		modelName, opts.Chains, opts.Iterations, opts.Burnin, max(opts.Thin, 1))
	if err := printSummary(out, traces); err != nil {
		s.log.Warn("no summary", zap.Error(err))
	}
	return runErr
}

func writeTraceFile(path string, traces []*trace.Trace) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "Could not create directory for %s", path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Could not create trace file %s", path)
	}
	if err := trace.WriteCSV(f, traces...); err != nil {
		f.Close()
		return errors.Wrapf(err, "Could not write trace file %s", path)
	}
	return errors.Wrapf(f.Close(), "Could not close trace file %s", path)
}

func saveRun(ctx context.Context, s *settings, path string, run tracestore.Run, traces []*trace.Trace) (string, error) {
	store, err := tracestore.Open(path, s.log)
	if err != nil {
		return "", err
	}
	defer store.Close()
	// A cancelled run is still worth keeping
	return store.Save(context.WithoutCancel(ctx), run, traces)
}

// printSummary writes one line per monitored node. Chains without rows are
// left out.
func printSummary(w io.Writer, traces []*trace.Trace) error {
	var kept []*trace.Trace
	for _, t := range traces {
		if t.Len() > 1 {
			kept = append(kept, t)
		}
	}
	if len(kept) < 1 {
		return errors.New("No chain has enough rows to summarize")
	}
	summaries, err := trace.Summarize(kept...)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tN\tMEAN\tSD\t2.5%\tMEDIAN\t97.5%\tRHAT")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.3f\n",
			s.Name, s.N, s.Mean, s.SD, s.Q025, s.Median, s.Q975, s.RHat)
	}
	return tw.Flush()
}

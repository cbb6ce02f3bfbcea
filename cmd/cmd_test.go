package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/trace"
	"github.com/CraigKelly/bayesgraph/tracestore"
)

const regression = "../res/regression.hcl"

// execute runs a fresh command tree with an empty HOME so no user config
// file is picked up.
func execute(t *testing.T, args ...string) (string, error) {
	t.Setenv("HOME", t.TempDir())
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCheck(t *testing.T) {
	assert := assert.New(t)

	out, err := execute(t, "check", "-m", regression)
	require.NoError(t, err)
	assert.Contains(out, "Model regression:")
	assert.Regexp(`y\[0\]\s+data\s+1.2`, out)
	assert.Regexp(`y\[2\]\s+stochastic`, out)
	assert.Regexp(`pred\[1\]\s+deterministic`, out)
	assert.Regexp(`posterior_predictive\s+y\[2\]`, out)
	assert.Regexp(`rw_reflect\s+sigma`, out)
	assert.Contains(out, "Monitors: mu beta sigma y[2] y[4]")

	// the data file changes the observed values
	out, err = execute(t, "check", "-m", regression, "-d", "../res/regression.data.hcl")
	require.NoError(t, err)
	assert.Regexp(`y\[0\]\s+data\s+1\n`, out)

	_, err = execute(t, "check")
	assert.Error(err)
	_, err = execute(t, "check", "-m", "../res/nope.hcl")
	assert.Error(err)
}

func TestDot(t *testing.T) {
	assert := assert.New(t)

	out, err := execute(t, "dot", "-m", "../res/censored.hcl")
	require.NoError(t, err)
	assert.True(strings.HasPrefix(out, `digraph "censored" {`))
	assert.Contains(out, `"lambda" [shape=ellipse];`)
	assert.Contains(out, `"mean_time" [shape=box];`)
	assert.Contains(out, `"censored[1]" [shape=ellipse, style=filled, fillcolor=lightgrey];`)
	assert.Contains(out, `"lambda" -> "time[1]";`)
	assert.Contains(out, `"time[1]" -> "censored[1]";`)
	assert.NotContains(out, `"time[1]" -> "censored[2]";`)
	assert.True(strings.HasSuffix(out, "}\n"))

	path := filepath.Join(t.TempDir(), "g.dot")
	_, err = execute(t, "dot", "-m", "../res/censored.hcl", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(out, string(data))
}

func TestSimulate(t *testing.T) {
	assert := assert.New(t)

	a, err := execute(t, "simulate", "-m", regression, "-r", "5")
	require.NoError(t, err)
	b, err := execute(t, "simulate", "-m", regression, "-r", "5")
	require.NoError(t, err)
	assert.Equal(a, b, "same seed, same draws")
	assert.Contains(a, "y[0] = 1.2\n")
	assert.Contains(a, "log density: ")

	c, err := execute(t, "simulate", "-m", regression, "-r", "6")
	require.NoError(t, err)
	assert.NotEqual(a, c)

	_, err = execute(t, "simulate", "-m", regression, "y[0]")
	assert.Error(err, "data can not be simulated")
}

func TestRunWritesTraces(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "trace.csv")
	dbPath := filepath.Join(dir, "runs.db")

	out, err := execute(t, "run", "-m", regression,
		"-n", "60", "-b", "10", "--chains", "2", "--thin", "2",
		"-s", "slice=mu", "--monitor", "pred[0]",
		"-t", csvPath, "--store", dbPath)
	require.NoError(t, err)
	assert.Contains(out, "Model regression: 2 chain(s), 60 iterations, 10 burn-in, thin 2")
	assert.Regexp(`pred\[0\]\s+50`, out)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	traces, err := trace.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(25, traces[0].Len())
	assert.Equal([]string{"mu", "beta", "sigma", "y[2]", "y[4]", "pred[0]"}, traces[0].Columns)

	store, err := tracestore.Open(dbPath, nil)
	require.NoError(t, err)
	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	assert.Equal("regression", runs[0].Model)
	assert.Equal(2, runs[0].Chains)
	assert.Contains(out, "Run "+runs[0].ID+" saved")

	listing, err := execute(t, "runs", "--store", dbPath)
	require.NoError(t, err)
	assert.Contains(listing, runs[0].ID)

	shown, err := execute(t, "runs", "--store", dbPath, runs[0].ID)
	require.NoError(t, err)
	assert.Contains(shown, "of model regression: 2 chain(s)")
	assert.Regexp(`sigma\s+50`, shown)

	cmp, err := execute(t, "runs", "--store", dbPath, runs[0].ID, "--compare", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(cmp, "over 6 column(s)")
	assert.Regexp(`hellinger\s+0.000000\s+0.000000`, cmp)

	_, err = execute(t, "runs", "--store", dbPath, "--delete", runs[0].ID)
	require.NoError(t, err)
	_, err = execute(t, "runs", "--store", dbPath, runs[0].ID)
	assert.ErrorIs(err, tracestore.ErrUnknownRun)
}

func TestRunErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := execute(t, "run", "-m", regression, "-n", "10", "-b", "20")
	assert.ErrorContains(err, "burnin=20 fails ltefield")
	_, err = execute(t, "run", "-m", regression, "--chains", "0", "--thin", "0")
	assert.ErrorContains(err, "chains=0 fails gte 1; thin=0 fails gte 1")
	_, err = execute(t, "run", "-m", regression, "-s", "slice")
	assert.Error(err)
	_, err = execute(t, "run", "-m", regression, "-s", "metropolis=mu")
	assert.Error(err)
	_, err = execute(t, "run", "-m", regression, "--monitor", "bogus")
	assert.Error(err)
}

func TestConfigFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trace.csv")
	cfg := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
model: `+regression+`
seed: 9
iterations: 30
burnin: 10
chains: 1
compile: true
sampler:
  - slice=mu
  - slice=beta
monitor:
  - "pred[0]"
  - "pred[1]"
trace: `+csvPath+`
`), 0644))

	// flags beat the file
	_, err := execute(t, "run", "-c", cfg, "-n", "40")
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	traces, err := trace.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(30, traces[0].Len())
	assert.True(traces[0].Has("pred[1]"))

	// settings for other commands are allowed, unknown ones are not
	out, err := execute(t, "check", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(out, "Model regression:")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("colour: blue\n"), 0644))
	_, err = execute(t, "check", "-c", bad, "-m", regression)
	assert.Error(err)

	_, err = execute(t, "check", "-c", filepath.Join(dir, "missing.yaml"), "-m", regression)
	assert.Error(err)
}

func TestParseOverride(t *testing.T) {
	assert := assert.New(t)

	proc, nodes, err := parseOverride("gibbs_block = z[0], z[2]")
	assert.NoError(err)
	assert.Equal("gibbs_block", proc)
	assert.Equal([]string{"z[0]", "z[2]"}, nodes)

	for _, bad := range []string{"slice", "=mu", "slice=", "slice= , "} {
		_, _, err := parseOverride(bad)
		assert.Error(err, bad)
	}
}

func TestMonitorServesMetrics(t *testing.T) {
	assert := assert.New(t)

	mon, err := newMonitor("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mon.Start())
	defer mon.Stop()
	assert.Error(mon.Start(), "only one start")

	mon.Metrics.ChainsRunning.Set(3)
	resp, err := http.Get("http://" + mon.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Contains(string(body), "bayesgraph_chains_running 3")
	assert.Contains(string(body), "go_goroutines")
}

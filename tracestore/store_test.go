package tracestore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CraigKelly/bayesgraph/trace"
)

func testTraces(t *testing.T) []*trace.Trace {
	cols := []string{"mu", "y[2]"}
	t0, err := trace.New(0, cols, [][]float64{{0.5, 1.5}, {0.25, math.NaN()}})
	require.NoError(t, err)
	t1, err := trace.New(1, cols, nil)
	require.NoError(t, err)
	return []*trace.Trace{t0, t1}
}

func TestSaveLoad(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s, err := Open(filepath.Join(t.TempDir(), "sub", "runs.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	created := time.Unix(1700000000, 42)
	id, err := s.Save(ctx, Run{Model: "regression", Created: created, Iterations: 12, Burnin: 10, Thin: 1, Seed: -3, Compiled: true}, testTraces(t))
	require.NoError(t, err)
	assert.Len(id, 36)

	run, traces, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(id, run.ID)
	assert.Equal("regression", run.Model)
	assert.True(created.Equal(run.Created))
	assert.Equal(2, run.Chains)
	assert.Equal(int64(-3), run.Seed)
	assert.True(run.Compiled)

	require.Len(t, traces, 2)
	assert.Equal([]string{"mu", "y[2]"}, traces[0].Columns)
	assert.Equal(2, traces[0].Len())
	assert.Equal([]float64{0.5, 1.5}, traces[0].Row(0))
	v, _ := traces[0].Value(1, "y[2]")
	assert.True(math.IsNaN(v))
	assert.Equal(0, traces[1].Len())
	assert.Equal(1, traces[1].Chain)
}

func TestRunsAndDelete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Save(ctx, Run{ID: "first", Model: "a", Created: time.Unix(10, 0)}, testTraces(t))
	require.NoError(t, err)
	assert.Equal("first", first)
	_, err = s.Save(ctx, Run{ID: "second", Model: "b", Created: time.Unix(20, 0)}, testTraces(t))
	require.NoError(t, err)

	_, err = s.Save(ctx, Run{ID: "first"}, testTraces(t))
	assert.Error(err, "duplicate id")
	_, err = s.Save(ctx, Run{}, nil)
	assert.Error(err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal("second", runs[0].ID)
	assert.Equal("first", runs[1].ID)

	assert.NoError(s.Delete(ctx, "first"))
	assert.True(errors.Is(s.Delete(ctx, "first"), ErrUnknownRun))
	_, _, err = s.Load(ctx, "first")
	assert.True(errors.Is(err, ErrUnknownRun))

	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(runs, 1)
}

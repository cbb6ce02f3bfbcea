package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

func lookup(t *testing.T, m *model.Model, id string) int {
	p, ok := m.Registry().Lookup(id)
	require.True(t, ok, id)
	return p
}

// normalMeanDecl is a conjugate model: mu ~ N(0, 10^2), 20 observations
// ~ N(mu, 1). The posterior is N(22/20.01, 1/20.01).
func normalMeanDecl() model.Declaration {
	return model.Declaration{
		Data: model.Values{"y": model.Entries(
			0.8, 1.3, 1.1, 0.6, 1.9, 1.2, 0.7, 1.4, 1.0, 1.5,
			0.9, 1.2, 0.4, 1.6, 1.1, 0.8, 1.3, 1.0, 1.7, 0.5,
		)},
		Inits: model.Values{"mu": model.Entries(-3)},
		Nodes: []model.NodeDecl{
			{Name: "mu", Kind: model.KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "10"}},
			{Name: "y", Kind: model.KindStochastic, Length: 20, Dist: "normal", Params: map[string]string{"mean": "mu", "sd": "1"}},
		},
	}
}

func TestContinuousPosterior(t *testing.T) {
	assert := assert.New(t)

	wantMean := 22 / 20.01
	wantSD := 1 / math.Sqrt(20.01)

	for _, proc := range []string{ProcRandomWalk, ProcReflect, ProcSlice} {
		m, err := model.Build(normalMeanDecl())
		require.NoError(t, err)
		c := configure(t, m)
		require.NoError(t, c.Override(proc, "mu"))
		f, err := c.Finalize()
		require.NoError(t, err)

		traces, err := runOnce(t, f, RunOptions{Iterations: 5000, Burnin: 1000, Chains: 1, Seed: 17})
		require.NoError(t, err)
		mu, _ := traces[0].Column("mu")
		mean, sd := stat.MeanStdDev(mu, nil)
		assert.InDelta(wantMean, mean, 0.05, proc)
		assert.InDelta(wantSD, sd, 0.05, proc)
	}
}

func TestDiscretePrior(t *testing.T) {
	assert := assert.New(t)

	decl := model.Declaration{
		Nodes: []model.NodeDecl{
			{Name: "z", Kind: model.KindStochastic, Length: 2, Dist: "bernoulli", Params: map[string]string{"prob": "0.3"}},
			{Name: "k", Kind: model.KindStochastic, Dist: "poisson", Params: map[string]string{"lambda": "3"}},
			{Name: "c", Kind: model.KindStochastic, Dist: "categorical", Params: map[string]string{"prob": "[0.2, 0.5, 0.3]"}},
		},
	}

	cases := []struct {
		proc string
		node string
		mean float64
		tol  float64
	}{
		{ProcGibbsDiscrete, "z[0]", 0.3, 0.05},
		{ProcGibbsBlock, "z[1]", 0.3, 0.05},
		{ProcDiscreteWalk, "k", 3, 0.3},
		{ProcGibbsDiscrete, "c", 1.1, 0.05},
		{ProcPosteriorPredictive, "k", 3, 0.1},
	}
	for _, tc := range cases {
		m, err := model.Build(decl)
		require.NoError(t, err)
		c := configure(t, m)
		if tc.proc == ProcGibbsBlock {
			require.NoError(t, c.Override(tc.proc, "z"))
		} else {
			require.NoError(t, c.Override(tc.proc, tc.node))
		}
		f, err := c.Finalize()
		require.NoError(t, err)

		traces, err := runOnce(t, f, RunOptions{Iterations: 6000, Burnin: 1000, Chains: 1, Seed: 23})
		require.NoError(t, err)
		col, _ := traces[0].Column(tc.node)
		for _, v := range col {
			assert.Equal(math.Trunc(v), v)
		}
		assert.InDelta(tc.mean, stat.Mean(col, nil), tc.tol, "%s %s", tc.proc, tc.node)
	}
}

func TestMixtureLabels(t *testing.T) {
	assert := assert.New(t)

	traces, err := runOnce(t, finalize(t, loadModel(t, "mixture")), RunOptions{Iterations: 500, Burnin: 100, Chains: 1, Seed: 2})
	require.NoError(t, err)
	tr := traces[0]

	// y[0] and y[1] sit near -2, y[2] and y[3] near +2
	z0, _ := tr.Column("z[0]")
	z2, _ := tr.Column("z[2]")
	assert.Less(stat.Mean(z0, nil), 0.1)
	assert.Greater(stat.Mean(z2, nil), 0.9)
	p, _ := tr.Column("p")
	for _, v := range p {
		assert.True(v >= 0 && v <= 1)
	}
}

func TestGibbsNoFiniteCandidate(t *testing.T) {
	assert := assert.New(t)

	decl := model.Declaration{
		Data: model.Values{"w": model.Entries(0.5)},
		Nodes: []model.NodeDecl{
			{Name: "z", Kind: model.KindStochastic, Dist: "bernoulli", Params: map[string]string{"prob": "0.5"}},
			{Name: "w", Kind: model.KindStochastic, Dist: "uniform", Params: map[string]string{"min": "z + 5", "max": "z + 6"}},
		},
	}
	m, err := model.Build(decl)
	require.NoError(t, err)
	require.NoError(t, m.SetValue("z", 1))

	gen, err := rand.NewGenerator(1)
	require.NoError(t, err)
	g := procedures[ProcGibbsDiscrete].build(m, []int{lookup(t, m, "z")})
	ok, err := g.Update(m, gen, false)
	assert.False(ok)
	assert.Error(err)
	v, _ := m.Value("z")
	assert.Equal(1.0, v, "failed update restores the value")
}

func TestNaNDensityFails(t *testing.T) {
	assert := assert.New(t)

	decl := model.Declaration{
		Data: model.Values{"y": model.Entries(1)},
		Nodes: []model.NodeDecl{
			{Name: "mu", Kind: model.KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "1"}},
			{Name: "y", Kind: model.KindStochastic, Dist: "normal", Params: map[string]string{"mean": "mu", "sd": "1"}},
		},
	}
	m, err := model.Build(decl)
	require.NoError(t, err)
	require.NoError(t, m.SetValue("mu", math.NaN()))

	gen, err := rand.NewGenerator(1)
	require.NoError(t, err)
	for _, name := range []string{ProcRandomWalk, ProcSlice} {
		p := procedures[name].build(m, []int{lookup(t, m, "mu")})
		_, err := p.Update(m, gen, false)
		assert.Error(err, name)
	}
}

func TestReflectInto(t *testing.T) {
	assert := assert.New(t)
	inf := math.Inf(1)

	cases := []struct{ x, lo, hi, want float64 }{
		{0.5, 0, 1, 0.5},
		{-0.25, 0, 1, 0.25},
		{1.25, 0, 1, 0.75},
		{2.25, 0, 1, 0.25},
		{-3.5, 0, 1, 0.5},
		{-2, 0, inf, 2},
		{7, -inf, 5, 3},
		{42, -inf, inf, 42},
		{3, 2, 2, 2},
	}
	for _, tc := range cases {
		assert.InDelta(tc.want, reflectInto(tc.x, tc.lo, tc.hi), 1e-12, "%+v", tc)
	}
}

func TestConstrainedSupport(t *testing.T) {
	assert := assert.New(t)

	m := loadModel(t, "censored")
	t1 := lookup(t, m, "time[1]")
	lo, hi := constrainedSupport(m, t1)(m, t1)
	assert.Equal(5.0, lo)
	assert.True(math.IsInf(hi, 1))

	t0 := lookup(t, m, "time[0]")
	assert.True(constrains(m, lookup(t, m, "censored[1]"), t1))
	assert.False(constrains(m, lookup(t, m, "censored[1]"), t0))
	assert.False(constrains(m, lookup(t, m, "time[1]"), lookup(t, m, "lambda")))
}

func TestRandomWalkAdapt(t *testing.T) {
	assert := assert.New(t)

	m, err := model.Build(normalMeanDecl())
	require.NoError(t, err)
	rw := newRandomWalk(ProcRandomWalk, m, lookup(t, m, "mu"), nil)

	for i := 0; i < adaptWindow-1; i++ {
		rw.adapt(true)
	}
	assert.Equal(1.0, rw.scale, "no change before a full window")
	rw.adapt(true)
	assert.Greater(rw.scale, 1.0)
	assert.Equal(1, rw.timesAdapted)

	up := rw.scale
	for i := 0; i < adaptWindow; i++ {
		rw.adapt(false)
	}
	assert.Less(rw.scale, up)
}

func TestConditionalRestore(t *testing.T) {
	assert := assert.New(t)

	m := loadModel(t, "regression")
	mu := lookup(t, m, "mu")
	c := newConditional(m, []int{mu})
	assert.Len(c.determ, 6)
	assert.Len(c.stoch, 7) // mu and every y

	require.NoError(t, m.Simulate("y[2]", "y[4]"))
	pred0, _ := m.Value("pred[0]")
	c.save(m)
	lp := c.try(m, 3)
	assert.False(math.IsNaN(lp))
	v, _ := m.Value("pred[0]")
	assert.Equal(3.0, v)
	c.restore(m)
	v, _ = m.Value("pred[0]")
	assert.Equal(pred0, v)
}

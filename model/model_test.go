package model

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CraigKelly/bayesgraph/expr"
)

// regressionDecl has six responses, two of them missing
func regressionDecl() Declaration {
	return Declaration{
		Constants: map[string][]float64{
			"n": {6},
			"x": {-1, -0.5, 0, 0.5, 1, 1.5},
		},
		Data: Values{
			"y": {Provided(1.2), Provided(0.4), Missing(), Provided(2.0), Missing(), Provided(1.1)},
		},
		Inits: Values{
			"mu":    Entries(0),
			"beta":  Entries(0),
			"sigma": Entries(1),
		},
		Nodes: []NodeDecl{
			{Name: "mu", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "100"}},
			{Name: "beta", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "10"}},
			{Name: "sigma", Kind: KindStochastic, Dist: "uniform", Params: map[string]string{"min": "0", "max": "10"}},
			{Name: "y", Kind: KindStochastic, Length: 6, Dist: "normal", Params: map[string]string{"mean": "mu + beta * x[i]", "sd": "sigma"}},
			{Name: "pred", Kind: KindDeterministic, Length: 6, Value: "mu + beta * x[i]"},
		},
	}
}

func mustBuild(t *testing.T, decl Declaration, opts ...Option) *Model {
	m, err := Build(decl, opts...)
	require.NoError(t, err)
	return m
}

func TestBuildRoles(t *testing.T) {
	assert := assert.New(t)
	m := mustBuild(t, regressionDecl())

	for _, id := range []string{"y[0]", "y[1]", "y[3]", "y[5]"} {
		assert.True(m.IsData(id), id)
	}
	for _, id := range []string{"y[2]", "y[4]", "mu", "pred[0]", "y", "n", "nope"} {
		assert.False(m.IsData(id), id)
	}

	cases := map[string]Role{
		"n":       RoleConstant,
		"x":       RoleConstant,
		"x[2]":    RoleConstant,
		"mu":      RoleStochastic,
		"y":       RoleStochastic,
		"y[0]":    RoleData,
		"y[2]":    RoleStochastic,
		"pred":    RoleDeterministic,
		"pred[5]": RoleDeterministic,
	}
	for name, want := range cases {
		role, err := m.Role(name)
		assert.NoError(err, name)
		assert.Equal(want, role, name)
	}

	_, err := m.Role("nope")
	assert.True(errors.Is(err, ErrUnknownNode))

	assert.Equal([]string{"mu", "beta", "sigma", "y", "pred"}, m.VarNames())
	assert.Len(m.NodeNames(), 15)
	assert.Equal("y[0]", m.NodeNames()[3])
}

func TestBuildDeterministicValues(t *testing.T) {
	assert := assert.New(t)
	decl := regressionDecl()
	decl.Inits["mu"] = Entries(1)
	decl.Inits["beta"] = Entries(2)
	m := mustBuild(t, decl)

	pred, err := m.Values("pred")
	assert.NoError(err)
	assert.Equal([]float64{-1, 0, 1, 2, 3, 4}, pred)

	// stale until recalculated
	assert.NoError(m.SetValue("beta", 0))
	v, _ := m.Value("pred[5]")
	assert.Equal(4.0, v)
	_, err = m.Calculate()
	assert.NoError(err)
	v, _ = m.Value("pred[5]")
	assert.Equal(1.0, v)

	x, err := m.Values("x")
	assert.NoError(err)
	assert.Len(x, 6)
	v, err = m.Value("x[1]")
	assert.NoError(err)
	assert.Equal(-0.5, v)
	v, err = m.Value("n")
	assert.NoError(err)
	assert.Equal(6.0, v)
}

func TestFreeVariables(t *testing.T) {
	assert := assert.New(t)

	decl := Declaration{
		Data: Values{"x": Entries(1, 2, 3)},
		Nodes: []NodeDecl{
			{Name: "a", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "1"}},
			{Name: "y", Kind: KindStochastic, Length: 3, Dist: "normal", Params: map[string]string{"mean": "a * x[i] + offset", "sd": "1"}},
		},
		Inits: Values{"offset": Entries(0.5)},
	}
	m := mustBuild(t, decl)

	// every base name exactly once, free variables included
	assert.Equal([]string{"a", "y", "x", "offset"}, m.VarNames())
	role, err := m.Role("offset")
	assert.NoError(err)
	assert.Equal(RoleFree, role)
	assert.True(m.IsData("x"))
	assert.True(m.IsData("x[2]"))

	// a free variable is not simulated
	assert.Error(m.Simulate("offset"))

	decl.Nodes[1].Params["mean"] = "a * x[i] + x"
	_, err = Build(decl)
	assert.Error(err, "x used with and without index")

	// an index beyond the values given, or beyond any sane length
	decl.Nodes[1].Params["mean"] = "a * x[i + 1]"
	_, err = Build(decl)
	assert.ErrorContains(err, "Free variable x has 3 value(s) but is used at index 3")

	decl.Nodes[1].Params["mean"] = "a * z[2000000000]"
	_, err = Build(decl)
	assert.Error(err)

	decl.Nodes[1].Params["mean"] = "a"
	decl.Nodes[1].Length = expr.MaxIndex + 1
	_, err = Build(decl)
	assert.ErrorContains(err, "over the limit")
}

func TestBuildErrors(t *testing.T) {
	assert := assert.New(t)

	dup := regressionDecl()
	dup.Nodes = append(dup.Nodes, NodeDecl{Name: "mu", Kind: KindDeterministic, Value: "1"})
	_, err := Build(dup)
	assert.True(errors.Is(err, ErrDuplicateDeclaration), "%v", err)

	clash := regressionDecl()
	clash.Nodes = append(clash.Nodes, NodeDecl{Name: "n", Kind: KindDeterministic, Value: "1"})
	_, err = Build(clash)
	assert.True(errors.Is(err, ErrDuplicateDeclaration), "%v", err)

	cyclic := Declaration{Nodes: []NodeDecl{
		{Name: "a", Kind: KindDeterministic, Value: "b + 1"},
		{Name: "b", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "a", "sd": "1"}},
	}}
	_, err = Build(cyclic)
	assert.True(errors.Is(err, ErrCyclicModel), "%v", err)

	self := Declaration{Nodes: []NodeDecl{
		{Name: "a", Kind: KindDeterministic, Value: "a + 1"},
	}}
	_, err = Build(self)
	assert.True(errors.Is(err, ErrCyclicModel), "%v", err)

	bad := []Declaration{
		{Nodes: []NodeDecl{{Name: "a", Kind: KindStochastic, Dist: "nope", Params: map[string]string{}}}},
		{Nodes: []NodeDecl{{Name: "a", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0"}}}},
		{Nodes: []NodeDecl{{Name: "a", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "0", "sd": "1", "df": "2"}}}},
		{Nodes: []NodeDecl{{Name: "a", Kind: KindStochastic, Dist: "normal", Params: map[string]string{"mean": "[0, 1]", "sd": "1"}}}},
		{Nodes: []NodeDecl{{Name: "a", Kind: KindDeterministic, Value: "b +"}}},
		{Nodes: []NodeDecl{{Name: "a", Kind: KindFree}}},
		{Nodes: []NodeDecl{
			{Name: "v", Kind: KindDeterministic, Length: 2, Value: "i"},
			{Name: "a", Kind: KindDeterministic, Value: "v[2]"},
		}},
		{Nodes: []NodeDecl{
			{Name: "v", Kind: KindDeterministic, Length: 2, Value: "i"},
			{Name: "a", Kind: KindDeterministic, Value: "v"},
		}},
		{Nodes: []NodeDecl{
			{Name: "s", Kind: KindDeterministic, Value: "1"},
			{Name: "a", Kind: KindDeterministic, Value: "s[0]"},
		}},
	}
	for i, d := range bad {
		m, err := Build(d)
		assert.Error(err, "case %d", i)
		assert.Nil(m)
	}

	// data for a deterministic node
	withData := regressionDecl()
	withData.Data["pred"] = Entries(1, 2, 3, 4, 5, 6)
	_, err = Build(withData)
	assert.Error(err)
}

func TestSetValueProtection(t *testing.T) {
	assert := assert.New(t)
	m := mustBuild(t, regressionDecl())

	err := m.SetValue("n", 3)
	assert.True(errors.Is(err, ErrReadOnly), "%v", err)
	err = m.SetValue("x[1]", 3)
	assert.True(errors.Is(err, ErrReadOnly), "%v", err)
	err = m.SetValue("y[0]", 3)
	assert.True(errors.Is(err, ErrImmutableNode), "%v", err)
	err = m.SetValue("zz", 3)
	assert.True(errors.Is(err, ErrUnknownNode), "%v", err)
	assert.Error(m.SetValue("y", 3), "vector needs an element")

	v, _ := m.Value("y[0]")
	assert.Equal(1.2, v)

	assert.NoError(m.SetValue("y[2]", 0.75))
	v, _ = m.Value("y[2]")
	assert.Equal(0.75, v)
}

func TestSetDataAndReset(t *testing.T) {
	assert := assert.New(t)
	decl := regressionDecl()
	decl.Data = nil
	m := mustBuild(t, decl)

	assert.NoError(m.SetValue("y[2]", 9))
	assert.NoError(m.SetData(Values{
		"y": {Provided(1.2), Provided(0.4), Missing(), Provided(2.0), Missing(), Provided(1.1)},
	}))

	assert.True(m.IsData("y[0]"))
	assert.False(m.IsData("y[2]"))
	// missing entries keep their value
	v, _ := m.Value("y[2]")
	assert.Equal(9.0, v)
	v, _ = m.Value("y[3]")
	assert.Equal(2.0, v)

	// element keys
	assert.NoError(m.SetData(Values{"y[2]": Entries(0.3)}))
	assert.True(m.IsData("y[2]"))

	// invalid mappings change nothing
	err := m.SetData(Values{"y[4]": Entries(1), "nope": Entries(1)})
	assert.True(errors.Is(err, ErrUnknownNode), "%v", err)
	assert.False(m.IsData("y[4]"))
	err = m.SetData(Values{"n": Entries(1)})
	assert.True(errors.Is(err, ErrReadOnly), "%v", err)
	assert.Error(m.SetData(Values{"y": Entries(1, 2)}), "wrong length")

	assert.NoError(m.ResetData("y[0]"))
	assert.False(m.IsData("y[0]"))
	assert.True(m.IsData("y[1]"))
	assert.NoError(m.ResetData())
	assert.False(m.IsData("y[1]"))
	v, _ = m.Value("y[1]")
	assert.Equal(0.4, v)
}

func TestSimulate(t *testing.T) {
	assert := assert.New(t)
	m := mustBuild(t, regressionDecl(), WithSeed(7))
	assert.NoError(m.SetValue("y[2]", 0.5))
	assert.NoError(m.SetValue("y[4]", 0.5))

	before, _ := m.Values("y")
	err := m.Simulate("y")
	assert.True(errors.Is(err, ErrImmutableNode), "%v", err)
	after, _ := m.Values("y")
	assert.Equal(before, after, "nothing changes on failure")

	err = m.Simulate("y[0]")
	assert.True(errors.Is(err, ErrImmutableNode))
	err = m.Simulate("n")
	assert.True(errors.Is(err, ErrReadOnly))
	err = m.Simulate("nope")
	assert.True(errors.Is(err, ErrUnknownNode))

	assert.NoError(m.Simulate("y[2]", "y[4]"))
	after, _ = m.Values("y")
	assert.Equal(before[0], after[0])
	assert.NotEqual(before[2], after[2])
	assert.NotEqual(before[4], after[4])

	// sigma is drawn from its prior support and pred follows mu/beta
	for i := 0; i < 20; i++ {
		assert.NoError(m.Simulate())
		sigma, _ := m.Value("sigma")
		assert.True(sigma > 0 && sigma < 10)
		mu, _ := m.Value("mu")
		beta, _ := m.Value("beta")
		pred, _ := m.Value("pred[4]")
		assert.Equal(mu+beta*1.0, pred)
	}
	data, _ := m.Values("y")
	assert.Equal(before[5], data[5])
}

func TestLogDensity(t *testing.T) {
	assert := assert.New(t)
	m := mustBuild(t, regressionDecl())

	lp, err := m.LogDensity("mu")
	assert.NoError(err)
	assert.InDelta(-0.5*math.Log(2*math.Pi)-math.Log(100), lp, 1e-12)

	// y[0] ~ normal(0, 1) at 1.2
	lp, err = m.LogDensity("y[0]")
	assert.NoError(err)
	assert.InDelta(-0.5*math.Log(2*math.Pi)-0.72, lp, 1e-12)

	// sigma outside (0, 10)
	assert.NoError(m.SetValue("sigma", -1))
	_, err = m.LogDensity("sigma")
	assert.True(errors.Is(err, ErrDomain), "%v", err)
	var de *DomainError
	assert.True(errors.As(err, &de))
	assert.Equal("sigma", de.Node)
	assert.Equal("uniform", de.Family)

	// invalid parameters are -Inf, not a domain error
	lp, err = m.LogDensity("y[0]")
	assert.NoError(err)
	assert.True(math.IsInf(lp, -1))

	// and can not be drawn from
	err = m.Simulate("y[2]")
	assert.True(errors.Is(err, ErrInvalidParameters), "%v", err)
	var pe *ParamError
	require.True(t, errors.As(err, &pe))
	assert.Equal("y[2]", pe.Node)
	assert.Equal([]float64{0, -1}, pe.Params)

	// missing response: NaN passes through
	assert.NoError(m.SetValue("sigma", 1))
	lp, err = m.LogDensity()
	assert.NoError(err)
	assert.True(math.IsNaN(lp), "y[2] was never initialized")

	assert.NoError(m.Simulate("y[2]", "y[4]"))
	lp, err = m.Calculate()
	assert.NoError(err)
	assert.False(math.IsNaN(lp))
}

func TestCloneAndCompile(t *testing.T) {
	assert := assert.New(t)
	m := mustBuild(t, regressionDecl())

	cp := m.Clone()
	assert.NoError(cp.SetValue("mu", 3))
	v, _ := m.Value("mu")
	assert.Equal(0.0, v)
	assert.NoError(cp.SetData(Values{"y[2]": Entries(1)}))
	assert.False(m.IsData("y[2]"))

	c, err := m.Compile()
	assert.NoError(err)
	assert.True(c.IsCompiled())
	assert.False(m.IsCompiled())

	assert.NoError(m.SetValue("beta", 0.3))
	assert.NoError(c.SetValue("beta", 0.3))
	assert.NoError(m.SetValue("y[2]", 0.1))
	assert.NoError(c.SetValue("y[2]", 0.1))
	assert.NoError(m.SetValue("y[4]", 0.2))
	assert.NoError(c.SetValue("y[4]", 0.2))

	lm, err := m.Calculate()
	assert.NoError(err)
	lc, err := c.Calculate()
	assert.NoError(err)
	assert.Equal(math.Float64bits(lm), math.Float64bits(lc))

	pm, _ := m.Values("pred")
	pc, _ := c.Values("pred")
	assert.Equal(pm, pc)
}

func TestNewModelFromFile(t *testing.T) {
	assert := assert.New(t)

	m, err := NewModelFromFile(HCLReader{}, "../res/regression.hcl", "")
	assert.NoError(err)
	assert.Equal("regression", m.Name)
	assert.True(m.IsData("y[0]"))
	assert.False(m.IsData("y[2]"))

	m, err = NewModelFromFile(HCLReader{}, "../res/regression.hcl", "../res/regression.data.hcl")
	assert.NoError(err)
	v, _ := m.Value("y[0]")
	assert.Equal(1.0, v)
	v, _ = m.Value("beta")
	assert.Equal(0.25, v)
	v, _ = m.Value("sigma")
	assert.Equal(1.0, v)

	_, err = NewModelFromFile(HCLReader{}, "../res/nope.hcl", "")
	assert.Error(err)
	_, err = NewModelFromFile(HCLReader{}, "../res/regression.hcl", "../res/nope.hcl")
	assert.Error(err)
}

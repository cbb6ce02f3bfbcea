package model

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRegistryDeclare(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry()

	assert.NoError(r.Declare("mu", RoleStochastic, 0))
	assert.NoError(r.Declare("y", RoleStochastic, 3))
	assert.NoError(r.Declare("y", RoleStochastic, 3), "same shape is a no-op")
	assert.Equal(4, r.Len())

	err := r.Declare("y", RoleStochastic, 4)
	assert.True(errors.Is(err, ErrDuplicateDeclaration))
	err = r.Declare("y", RoleDeterministic, 3)
	assert.True(errors.Is(err, ErrDuplicateDeclaration))

	assert.Error(r.Declare("bad", RoleConstant, 0))
	assert.Error(r.Declare("bad", RoleData, 0))
	assert.Error(r.Declare("bad", RoleFree, -1))
	assert.Error(r.Declare("y[1]", RoleFree, 0))
	assert.Error(r.Declare("1y", RoleFree, 0))

	assert.NoError(r.DeclareConstant("n", []float64{3}))
	assert.NoError(r.DeclareConstant("n", []float64{3}))
	err = r.DeclareConstant("n", []float64{4})
	assert.True(errors.Is(err, ErrDuplicateDeclaration))
	err = r.DeclareConstant("mu", []float64{4})
	assert.True(errors.Is(err, ErrDuplicateDeclaration))
	err = r.Declare("n", RoleFree, 0)
	assert.True(errors.Is(err, ErrDuplicateDeclaration))
	assert.Error(r.DeclareConstant("empty", nil))

	p, ok := r.Lookup("y[2]")
	assert.True(ok)
	assert.Equal(3, p)
	n := r.Node(p)
	assert.Equal("y", n.Base)
	assert.Equal(2, n.Index)
	assert.True(math.IsNaN(r.Get(p)))
	assert.False(r.Initialized(p))

	assert.Equal([]string{"mu", "y"}, r.Names())
	v, ok := r.Variable("y")
	assert.True(ok)
	assert.Equal([]int{1, 2, 3}, v.Nodes)
}

func TestRegistrySelect(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry()
	assert.NoError(r.Declare("a", RoleStochastic, 2))
	assert.NoError(r.Declare("b", RoleStochastic, 0))
	assert.NoError(r.DeclareConstant("c", []float64{1, 2}))

	pos, err := r.Select("b", "a", "a[1]")
	assert.NoError(err)
	assert.Equal([]int{0, 1, 2}, pos)

	_, err = r.Select("c")
	assert.True(errors.Is(err, ErrReadOnly))
	_, err = r.Select("c[0]")
	assert.True(errors.Is(err, ErrReadOnly))
	_, err = r.Select("q")
	assert.True(errors.Is(err, ErrUnknownNode))

	pos, err = r.Select()
	assert.NoError(err)
	assert.Empty(pos)
}

func TestRegistryClone(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry()
	assert.NoError(r.Declare("a", RoleStochastic, 2))
	assert.NoError(r.SetData(Values{"a": {Provided(1), Missing()}}))

	cp := r.Clone()
	assert.NoError(cp.SetValue("a[1]", 5))
	assert.NoError(cp.ResetData())

	assert.True(r.IsData("a[0]"))
	assert.True(math.IsNaN(r.Get(1)))
	assert.False(cp.IsData("a[0]"))
	assert.Equal(5.0, cp.Get(1))
	assert.Same(r.Node(0), cp.Node(0))

	assert.NoError(cp.Declare("extra", RoleFree, 0))
	_, ok := r.Variable("extra")
	assert.False(ok)
}

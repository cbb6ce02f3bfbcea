package model

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Error kinds returned by model construction and mutation. Callers should
// test with errors.Is since most are wrapped with context.
var (
	ErrDuplicateDeclaration = errors.New("Duplicate declaration")
	ErrUnknownNode          = errors.New("Unknown node")
	ErrReadOnly             = errors.New("Constant is read-only")
	ErrImmutableNode        = errors.New("Data node is immutable")
	ErrCyclicModel          = errors.New("Model graph has a cycle")
	ErrDomain               = errors.New("Value outside distribution support")
	ErrSamplingFailure      = errors.New("Sampling failure")
	ErrInvalidParameters    = errors.New("Invalid distribution parameters")
)

// DomainError reports a stochastic node whose current value is impossible
// under its distribution and current parameters.
type DomainError struct {
	Node   string
	Value  float64
	Family string
	Params []float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s=%v is outside the support of %s%v", ErrDomain, e.Node, e.Value, e.Family, e.Params)
}

// Is lets errors.Is(err, ErrDomain) match.
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}

// domainCheck returns a DomainError when lp is -Inf because x left the
// support. Invalid parameters also give -Inf but are not a domain error.
func domainCheck(n *Node, x float64, params []float64, lp float64) error {
	if !math.IsInf(lp, -1) {
		return nil
	}
	lo, hi := n.Family.Support(params)
	if x < lo || x > hi || (n.Family.Discrete() && math.Trunc(x) != x) {
		cp := make([]float64, len(params))
		copy(cp, params)
		return &DomainError{Node: n.ID, Value: x, Family: n.Family.Name(), Params: cp}
	}
	return nil
}

// ParamError reports a stochastic node that can not be drawn from because
// its current parameters are invalid.
type ParamError struct {
	Node   string
	Params []float64
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrInvalidParameters, e.Node, e.Params)
}

// Is lets errors.Is(err, ErrInvalidParameters) match.
func (e *ParamError) Is(target error) bool {
	return target == ErrInvalidParameters
}

// Package sampler assigns update procedures to the unobserved stochastic
// nodes of a model and runs MCMC chains over them.
package sampler

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayesgraph/model"
	"github.com/CraigKelly/bayesgraph/rand"
)

// Procedure names
const (
	ProcRandomWalk          = "rw"
	ProcReflect             = "rw_reflect"
	ProcConstrained         = "rw_constrained"
	ProcDiscreteWalk        = "rw_discrete"
	ProcGibbsDiscrete       = "gibbs_discrete"
	ProcGibbsBlock          = "gibbs_block"
	ProcSlice               = "slice"
	ProcPosteriorPredictive = "posterior_predictive"
)

// A Procedure updates its target nodes in place on one chain's model. Update
// reports whether the current values moved (a Gibbs draw or direct
// simulation always counts as accepted). When adapt is set the procedure may
// tune itself. Every Procedure instance belongs to exactly one chain.
type Procedure interface {
	Name() string
	Targets() []int
	Update(m *model.Model, src *rand.Generator, adapt bool) (bool, error)
}

// factory describes a procedure: whether it takes a block of nodes, how to
// check it can serve a set of targets and how to build a fresh instance.
type factory struct {
	block bool
	check func(m *model.Model, targets []int) error
	build func(m *model.Model, targets []int) Procedure
}

var procedures = map[string]factory{
	ProcRandomWalk: {
		check: requireContinuous,
		build: func(m *model.Model, t []int) Procedure { return newRandomWalk(ProcRandomWalk, m, t[0], nil) },
	},
	ProcReflect: {
		check: requireContinuous,
		build: func(m *model.Model, t []int) Procedure { return newRandomWalk(ProcReflect, m, t[0], ownSupport) },
	},
	ProcConstrained: {
		check: requireContinuous,
		build: func(m *model.Model, t []int) Procedure {
			return newRandomWalk(ProcConstrained, m, t[0], constrainedSupport(m, t[0]))
		},
	},
	ProcDiscreteWalk: {
		check: requireDiscrete,
		build: func(m *model.Model, t []int) Procedure { return newRandomWalk(ProcDiscreteWalk, m, t[0], ownSupport) },
	},
	ProcGibbsDiscrete: {
		check: requireFinite,
		build: func(m *model.Model, t []int) Procedure { return newGibbs(ProcGibbsDiscrete, m, t) },
	},
	ProcGibbsBlock: {
		block: true,
		check: requireFinite,
		build: func(m *model.Model, t []int) Procedure { return newGibbs(ProcGibbsBlock, m, t) },
	},
	ProcSlice: {
		check: requireContinuous,
		build: func(m *model.Model, t []int) Procedure { return newSlice(m, t[0]) },
	},
	ProcPosteriorPredictive: {
		check: func(*model.Model, []int) error { return nil },
		build: func(m *model.Model, t []int) Procedure { return newPredictive(m, t[0]) },
	},
}

// Procedures lists every known procedure name
func Procedures() []string {
	names := make([]string, 0, len(procedures))
	for n := range procedures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func requireContinuous(m *model.Model, targets []int) error {
	for _, p := range targets {
		if n := m.Registry().Node(p); n.Family.Discrete() {
			return errors.Errorf("%s has discrete family %s", n.ID, n.Family.Name())
		}
	}
	return nil
}

func requireDiscrete(m *model.Model, targets []int) error {
	for _, p := range targets {
		if n := m.Registry().Node(p); !n.Family.Discrete() {
			return errors.Errorf("%s has continuous family %s", n.ID, n.Family.Name())
		}
	}
	return nil
}

func requireFinite(m *model.Model, targets []int) error {
	if err := requireDiscrete(m, targets); err != nil {
		return err
	}
	size := 1.0
	for _, p := range targets {
		n := m.Registry().Node(p)
		lo, hi, ok := finiteSupport(m, p)
		if !ok {
			return errors.Errorf("%s has no finite support under %s", n.ID, n.Family.Name())
		}
		size *= hi - lo + 1
	}
	if size > maxEnumeration {
		return errors.Errorf("Joint support of %d nodes has %g values (max %d)", len(targets), size, maxEnumeration)
	}
	return nil
}

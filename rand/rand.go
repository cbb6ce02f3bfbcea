package rand

import (
	"math"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
	"gonum.org/v1/gonum/stat/distuv"
)

// A Generator is a seeded 64-bit Mersenne twister. Each chain owns exactly
// one Generator, so there is no locking: a Generator must not be shared
// between goroutines.
type Generator struct {
	mt *mt19937.MT19937
}

// NewGenerator returns a generator seeded with the given value.
func NewGenerator(seed int64) (*Generator, error) {
	mt := mt19937.New()
	mt.Seed(seed)
	return &Generator{mt: mt}, nil
}

// NewGeneratorSlice seeds the generator from a key slice (init_by_array in the
// reference implementation). We use this to derive independent per-chain
// streams from (seed, chain).
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("At least one key value is required to seed a generator")
	}

	mt := mt19937.New()
	mt.SeedFromSlice(key)
	return &Generator{mt: mt}, nil
}

// Uint64 returns 64 random bits. It makes a Generator a math/rand/v2 Source.
func (g *Generator) Uint64() uint64 {
	return g.mt.Uint64()
}

// Int63 provides the same interface as Go's math/rand
func (g *Generator) Int63() int64 {
	return int64(g.mt.Uint64() & 0x7fffffffffffffff)
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Intn returns a value in [0, n)
func (g *Generator) Intn(n int) int {
	return int(g.Int63n(int64(n)))
}

// Float64 returns a value in [0, 1)
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// Uniform returns a value in the open interval (0, 1). Inverse-transform
// sampling needs both ends excluded.
func (g *Generator) Uniform() float64 {
	return (float64(g.Int63n(1<<53)) + 0.5) / (1 << 53)
}

// NormFloat64 returns a standard normal draw.
func (g *Generator) NormFloat64() float64 {
	return distuv.UnitNormal.Quantile(g.Uniform())
}

// LogUniform returns log(U) for U in (0, 1): the usual Metropolis-Hastings
// acceptance threshold.
func (g *Generator) LogUniform() float64 {
	return math.Log(g.Uniform())
}

package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// A nil rng uses a source seeded with 0, so construction is reproducible.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	if rng == nil {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		rng = rand.New(rand.NewSource(0))
	}
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, bound, rng)
}

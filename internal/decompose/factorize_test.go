package decompose

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lowrank/internal/linalg"
	"github.com/born-ml/lowrank/internal/nn"
	"github.com/born-ml/lowrank/internal/tensor"
)

func newLinear(t *testing.T, in, out int, bias bool, seed int64) *nn.Linear {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	layer := nn.NewLinear(in, out, nn.WithBias(bias), nn.WithRand(rng))
	if bias {
		b := layer.Bias().Tensor().AsFloat32()
		for i := range b {
			b[i] = float32(rng.NormFloat64())
		}
	}
	return layer
}

func TestFactorize_Shapes(t *testing.T) {
	layer := newLinear(t, 10, 20, true, 1)

	seq, report, err := Factorize(layer, 0.5, RankClamp)
	require.NoError(t, err)
	require.Equal(t, 2, seq.Len())

	first := seq.Module(0).(*nn.Linear)
	second := seq.Module(1).(*nn.Linear)

	assert.Equal(t, 10, first.InFeatures())
	assert.Equal(t, 10, first.OutFeatures())
	assert.False(t, first.HasBias())
	assert.Equal(t, tensor.Shape{10, 10}, first.Weight().Tensor().Shape())

	assert.Equal(t, 10, second.InFeatures())
	assert.Equal(t, 20, second.OutFeatures())
	assert.True(t, second.HasBias())
	assert.Equal(t, tensor.Shape{20, 10}, second.Weight().Tensor().Shape())
	assert.Equal(t, tensor.Shape{20}, second.Bias().Tensor().Shape())

	assert.Equal(t, 10, report.RequestedRank)
	assert.Equal(t, 10, report.Rank)
	assert.False(t, report.Clamped)
	assert.Equal(t, 10*20+20, report.ParamsBefore)
	assert.Equal(t, 10*10+20*10+20, report.ParamsAfter)
	assert.Empty(t, report.Path)
}

func TestFactorize_BiasPassthrough(t *testing.T) {
	layer := newLinear(t, 6, 4, true, 2)

	first, second, _, err := FactorizeLayers(layer, 0.25, RankClamp)
	require.NoError(t, err)
	assert.Nil(t, first.Bias())

	assert.Equal(t, layer.Bias().Tensor().AsFloat32(), second.Bias().Tensor().AsFloat32())
	assert.True(t, layer.Bias().Tensor().Equal(second.Bias().Tensor()))
	assert.False(t, layer.Bias().Tensor().SameStorage(second.Bias().Tensor()))
}

func TestFactorize_NoBiasGivesZeros(t *testing.T) {
	layer := newLinear(t, 6, 4, false, 3)

	_, second, _, err := FactorizeLayers(layer, 0.5, RankClamp)
	require.NoError(t, err)
	require.True(t, second.HasBias())
	assert.Equal(t, make([]float32, 4), second.Bias().Tensor().AsFloat32())
}

func TestFactorize_ZeroRatioNearIdentity(t *testing.T) {
	layer := newLinear(t, 16, 8, true, 4)
	seq, report, err := Factorize(layer, 0, RankClamp)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Rank)
	assert.InDelta(t, 0.0, report.RelativeError, 1e-12)

	x := tensor.Randn(tensor.Shape{32, 16}, rand.New(rand.NewSource(5)))
	want := layer.Forward(x)
	got := seq.Forward(x)
	assert.Less(t, tensor.RelativeError(got, want), 1e-4)
}

func TestFactorize_ApproximationImprovesWithRank(t *testing.T) {
	layer := newLinear(t, 12, 12, false, 6)
	x := tensor.Randn(tensor.Shape{16, 12}, rand.New(rand.NewSource(7)))
	want := layer.Forward(x)

	prev := math.Inf(1)
	for _, ratio := range []float64{0.75, 0.5, 0.25, 0} {
		seq, report, err := Factorize(layer, ratio, RankClamp)
		require.NoError(t, err)
		errNow := tensor.RelativeError(seq.Forward(x), want)
		assert.LessOrEqual(t, errNow, prev+1e-6, "ratio %v", ratio)
		assert.LessOrEqual(t, report.RelativeError, 1.0)
		prev = errNow
	}
}

func TestFactorize_WeightsMatchSVD(t *testing.T) {
	layer := newLinear(t, 5, 3, true, 8)
	first, second, _, err := FactorizeLayers(layer, 0, RankClamp)
	require.NoError(t, err)

	svd, err := linalg.Factorize(layer.Weight().Tensor())
	require.NoError(t, err)

	assert.True(t, svd.Right(3).Equal(first.Weight().Tensor()))
	assert.True(t, svd.Left(3).Equal(second.Weight().Tensor()))

	product := tensor.MatMul(second.Weight().Tensor(), first.Weight().Tensor())
	assert.Less(t, tensor.RelativeError(product, layer.Weight().Tensor()), 1e-5)
}

func TestFactorize_DoesNotMutateInput(t *testing.T) {
	layer := newLinear(t, 7, 9, true, 9)
	before := layer.Clone().(*nn.Linear)

	_, _, err := Factorize(layer, 0.4, RankClamp)
	require.NoError(t, err)

	assert.True(t, before.Weight().Tensor().Equal(layer.Weight().Tensor()))
	assert.True(t, before.Bias().Tensor().Equal(layer.Bias().Tensor()))
}

func TestFactorize_RankAboveSVDRank(t *testing.T) {
	// out > in: floor((1-0)*10) = 10 but the SVD only has 3 components.
	layer := newLinear(t, 3, 10, true, 10)

	seq, report, err := Factorize(layer, 0, RankClamp)
	require.NoError(t, err)
	assert.Equal(t, 10, report.RequestedRank)
	assert.Equal(t, 3, report.Rank)
	assert.True(t, report.Clamped)
	assert.Equal(t, 3, seq.Module(0).(*nn.Linear).OutFeatures())

	x := tensor.Randn(tensor.Shape{4, 3}, rand.New(rand.NewSource(11)))
	assert.Less(t, tensor.RelativeError(seq.Forward(x), layer.Forward(x)), 1e-4)

	_, _, err = Factorize(layer, 0, RankStrict)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFactorize_RankBelowOne(t *testing.T) {
	layer := newLinear(t, 8, 10, true, 12)

	_, report, err := Factorize(layer, 0.9, RankClamp)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RequestedRank)
	assert.Equal(t, 1, report.Rank)
	assert.True(t, report.Clamped)

	_, _, err = Factorize(layer, 0.9, RankStrict)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFactorize_InvalidArguments(t *testing.T) {
	layer := newLinear(t, 4, 4, true, 13)

	for _, ratio := range []float64{-0.5, 1, math.NaN()} {
		_, _, err := Factorize(layer, ratio, RankClamp)
		assert.ErrorIs(t, err, ErrInvalidArgument, ratio)
	}

	_, _, err := Factorize(nil, 0.5, RankClamp)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = Factorize(&nn.Linear{}, 0.5, RankClamp)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFactorize_NonFiniteWeight(t *testing.T) {
	w := tensor.Ones(tensor.Shape{3, 3})
	w.AsFloat32()[4] = float32(math.NaN())
	layer, err := nn.NewLinearFrom(w, nil)
	require.NoError(t, err)

	_, _, err = Factorize(layer, 0.5, RankClamp)
	assert.ErrorIs(t, err, ErrComputation)
	assert.ErrorIs(t, err, linalg.ErrNonFinite)
}

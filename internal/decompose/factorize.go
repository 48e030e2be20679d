package decompose

import (
	"time"

	"github.com/born-ml/lowrank/internal/linalg"
	"github.com/born-ml/lowrank/internal/nn"
	"github.com/born-ml/lowrank/internal/tensor"
)

// LayerReport describes how one linear layer was factorized.
type LayerReport struct {
	Path          string        // Dotted module path of the replaced layer
	InFeatures    int           // Input features of the original layer
	OutFeatures   int           // Output features of the original layer
	RequestedRank int           // floor((1 - ratio) * OutFeatures)
	Rank          int           // Intermediate dimension actually used
	Clamped       bool          // Rank differs from RequestedRank
	ParamsBefore  int           // Parameters of the original layer
	ParamsAfter   int           // Parameters of the replacement pair
	RelativeError float64       // ||W - W_L||_F / ||W||_F
	SVDDuration   time.Duration // Time spent in the SVD
}

// Factorize replaces a linear layer by a two-layer low-rank composite.
//
// For W = U · diag(S) · Vᵗ and rank L the composite is
//
//	Sequential(
//	    Linear(in → L, no bias)   weight diag(S[:L]) · V[:, :L]ᵗ
//	    Linear(L → out, bias)     weight U[:, :L], bias copied or zero
//	)
//
// The input layer is not modified.
func Factorize(layer *nn.Linear, ratio float64, policy RankPolicy) (*nn.Sequential, *LayerReport, error) {
	first, second, report, err := FactorizeLayers(layer, ratio, policy)
	if err != nil {
		return nil, nil, err
	}
	return nn.NewSequential(first, second), report, nil
}

// FactorizeLayers is like Factorize but returns the two layers separately.
func FactorizeLayers(layer *nn.Linear, ratio float64, policy RankPolicy) (*nn.Linear, *nn.Linear, *LayerReport, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, nil, nil, err
	}
	if err := validateLayer(layer); err != nil {
		return nil, nil, nil, err
	}

	in, out := layer.InFeatures(), layer.OutFeatures()

	start := time.Now()
	svd, err := linalg.Factorize(layer.Weight().Tensor())
	elapsed := time.Since(start)
	if err != nil {
		return nil, nil, nil, computationError(err, "svd of %dx%d weight", out, in)
	}

	requested := RequestedRank(out, ratio)
	rank, clamped, err := policy.Resolve(requested, svd.Rank())
	if err != nil {
		return nil, nil, nil, err
	}

	first, err := nn.NewLinearFrom(svd.Right(rank), nil)
	if err != nil {
		return nil, nil, nil, computationError(err, "build first layer")
	}

	var bias *tensor.RawTensor
	if layer.HasBias() {
		bias = layer.Bias().Tensor().Clone()
	} else {
		bias = tensor.Zeros(tensor.Shape{out})
	}
	second, err := nn.NewLinearFrom(svd.Left(rank), bias)
	if err != nil {
		return nil, nil, nil, computationError(err, "build second layer")
	}

	report := &LayerReport{
		InFeatures:    in,
		OutFeatures:   out,
		RequestedRank: requested,
		Rank:          rank,
		Clamped:       clamped,
		ParamsBefore:  nn.CountParameters(layer),
		ParamsAfter:   nn.CountParameters(first) + nn.CountParameters(second),
		RelativeError: svd.ResidualRatio(rank),
		SVDDuration:   elapsed,
	}
	return first, second, report, nil
}

func validateLayer(layer *nn.Linear) error {
	if layer == nil {
		return invalidArgument("layer is nil")
	}
	in, out := layer.InFeatures(), layer.OutFeatures()
	if in <= 0 || out <= 0 {
		return invalidArgument("layer features must be positive, got in=%d out=%d", in, out)
	}
	if layer.Weight() == nil || layer.Weight().Tensor() == nil {
		return invalidArgument("layer has no weight")
	}

	w := layer.Weight().Tensor()
	if w.DType() != tensor.Float32 {
		return invalidArgument("weight dtype %s, want float32", w.DType())
	}
	if !w.Shape().Equal(tensor.Shape{out, in}) {
		return invalidArgument("weight shape %v does not match [%d, %d]", w.Shape(), out, in)
	}
	if layer.HasBias() {
		b := layer.Bias().Tensor()
		if b == nil || b.DType() != tensor.Float32 || !b.Shape().Equal(tensor.Shape{out}) {
			return invalidArgument("bias does not match out_features %d", out)
		}
	}
	return nil
}

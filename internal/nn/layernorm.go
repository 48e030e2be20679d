package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/lowrank/internal/tensor"
)

// LayerNorm applies Layer Normalization over the last dimension of a 2D input.
//
// Formula: Y = gamma * (X - mean(X)) / sqrt(var(X) + eps) + beta
//
// LayerNorm is a non-target leaf for decomposition: it is copied unchanged.
// Its parameters are exported as "weight" (gamma) and "bias" (beta).
type LayerNorm struct {
	Gamma   *Parameter // scale [features]
	Beta    *Parameter // shift [features]
	Epsilon float32    // numerical stability constant
}

// NewLayerNorm creates a LayerNorm with gamma = 1 and beta = 0.
func NewLayerNorm(features int, epsilon float32) *LayerNorm {
	return &LayerNorm{
		Gamma:   NewParameter("weight", tensor.Ones(tensor.Shape{features})),
		Beta:    NewParameter("bias", tensor.Zeros(tensor.Shape{features})),
		Epsilon: epsilon,
	}
}

// Features returns the size of the normalized dimension.
func (l *LayerNorm) Features() int {
	return l.Gamma.Tensor().NumElements()
}

// Forward normalizes every row of a [batch, features] input.
func (l *LayerNorm) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	features := l.Features()
	if len(shape) != 2 || shape[1] != features {
		panic(fmt.Sprintf("LayerNorm.Forward: expected input [batch, %d], got shape %v", features, shape))
	}

	out := x.Clone()
	data := out.AsFloat32()
	gamma, beta := l.Gamma.Tensor().AsFloat32(), l.Beta.Tensor().AsFloat32()

	for i := 0; i < shape[0]; i++ {
		row := data[i*features : (i+1)*features]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(features)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(features)

		rstd := 1.0 / math.Sqrt(variance+float64(l.Epsilon))
		for j, v := range row {
			row[j] = float32((float64(v)-mean)*rstd)*gamma[j] + beta[j]
		}
	}
	return out
}

// Parameters returns [gamma, beta].
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Gamma, l.Beta}
}

// Clone returns a deep copy of the layer.
func (l *LayerNorm) Clone() Module {
	return &LayerNorm{
		Gamma:   l.Gamma.Clone(),
		Beta:    l.Beta.Clone(),
		Epsilon: l.Epsilon,
	}
}

// StateDict returns {"weight": gamma, "bias": beta}.
func (l *LayerNorm) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.Gamma.Tensor(),
		"bias":   l.Beta.Tensor(),
	}
}

// LoadStateDict loads gamma and beta.
func (l *LayerNorm) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	expected := tensor.Shape{l.Features()}
	for _, p := range l.Parameters() {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if err := checkRaw(p.Name(), raw, expected); err != nil {
			return err
		}
	}
	for _, p := range l.Parameters() {
		copy(p.Tensor().AsFloat32(), stateDict[p.Name()].AsFloat32())
	}
	return nil
}

package nn

import (
	"math"

	"github.com/born-ml/lowrank/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
type ReLU struct{}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return tensor.Map(input, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Parameters returns nil (ReLU has no parameters).
func (r *ReLU) Parameters() []*Parameter { return nil }

// StateDict returns an empty map.
func (r *ReLU) StateDict() map[string]*tensor.RawTensor {
	return make(map[string]*tensor.RawTensor)
}

// LoadStateDict does nothing.
func (r *ReLU) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// Clone returns a new ReLU.
func (r *ReLU) Clone() Module { return &ReLU{} }

// Sigmoid is a sigmoid activation module.
//
// Applies the element-wise function: σ(x) = 1 / (1 + exp(-x))
type Sigmoid struct{}

// NewSigmoid creates a new Sigmoid activation module.
func NewSigmoid() *Sigmoid {
	return &Sigmoid{}
}

// Forward applies Sigmoid activation.
func (s *Sigmoid) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return tensor.Map(input, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// Parameters returns nil (Sigmoid has no parameters).
func (s *Sigmoid) Parameters() []*Parameter { return nil }

// StateDict returns an empty map.
func (s *Sigmoid) StateDict() map[string]*tensor.RawTensor {
	return make(map[string]*tensor.RawTensor)
}

// LoadStateDict does nothing.
func (s *Sigmoid) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// Clone returns a new Sigmoid.
func (s *Sigmoid) Clone() Module { return &Sigmoid{} }

// Tanh is a hyperbolic tangent activation module.
type Tanh struct{}

// NewTanh creates a new Tanh activation module.
func NewTanh() *Tanh {
	return &Tanh{}
}

// Forward applies Tanh activation.
func (t *Tanh) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return tensor.Map(input, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Parameters returns nil (Tanh has no parameters).
func (t *Tanh) Parameters() []*Parameter { return nil }

// StateDict returns an empty map.
func (t *Tanh) StateDict() map[string]*tensor.RawTensor {
	return make(map[string]*tensor.RawTensor)
}

// LoadStateDict does nothing.
func (t *Tanh) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// Clone returns a new Tanh.
func (t *Tanh) Clone() Module { return &Tanh{} }

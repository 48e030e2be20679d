package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the optional bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
//	proj := nn.NewLinear(784, 32, nn.WithBias(false))
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features], nil when the layer has no bias
}

type linearConfig struct {
	bias bool
	rng  *rand.Rand
}

// LinearOption configures NewLinear.
type LinearOption func(*linearConfig)

// WithBias controls whether the layer has a bias vector (default true).
func WithBias(bias bool) LinearOption {
	return func(c *linearConfig) {
		c.bias = bias
	}
}

// WithRand sets the random source used for Xavier initialization.
func WithRand(rng *rand.Rand) LinearOption {
	return func(c *linearConfig) {
		c.rng = rng
	}
}

// NewLinear creates a new Linear layer.
//
// Weights are initialized using Xavier/Glorot uniform distribution.
// Biases, when enabled, are initialized to zeros.
//
// Panics if inFeatures or outFeatures is not positive.
func NewLinear(inFeatures, outFeatures int, opts ...LinearOption) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("NewLinear: features must be positive, got in=%d out=%d", inFeatures, outFeatures))
	}

	cfg := linearConfig{bias: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight: NewParameter("weight",
			Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, cfg.rng)),
	}
	if cfg.bias {
		l.bias = NewParameter("bias", tensor.Zeros(tensor.Shape{outFeatures}))
	}
	return l
}

// NewLinearFrom creates a Linear layer that takes ownership of the given
// weight and bias tensors. bias may be nil.
func NewLinearFrom(weight, bias *tensor.RawTensor) (*Linear, error) {
	if weight == nil {
		return nil, fmt.Errorf("weight must not be nil")
	}
	if weight.DType() != tensor.Float32 {
		return nil, fmt.Errorf("weight dtype mismatch: expected float32, got %v", weight.DType())
	}
	ws := weight.Shape()
	if len(ws) != 2 {
		return nil, fmt.Errorf("weight must be 2D [out_features, in_features], got shape %v", ws)
	}

	l := &Linear{
		inFeatures:  ws[1],
		outFeatures: ws[0],
		weight:      NewParameter("weight", weight),
	}

	if bias != nil {
		if bias.DType() != tensor.Float32 {
			return nil, fmt.Errorf("bias dtype mismatch: expected float32, got %v", bias.DType())
		}
		if !bias.Shape().Equal(tensor.Shape{ws[0]}) {
			return nil, fmt.Errorf("bias shape mismatch: expected %v, got %v",
				tensor.Shape{ws[0]}, bias.Shape())
		}
		l.bias = NewParameter("bias", bias)
	}
	return l, nil
}

// Forward computes the output of the linear layer.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}

	// [batch_size, in_features] @ [in_features, out_features]
	output := tensor.MatMul(input, tensor.Transpose(l.weight.Tensor()))

	if l.bias != nil {
		tensor.AddRow(output, l.bias.Tensor())
	}
	return output
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, or nil if the layer has no bias.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// HasBias reports whether the layer has a bias vector.
func (l *Linear) HasBias() bool {
	return l.bias != nil
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// Clone returns a deep copy of the layer.
func (l *Linear) Clone() Module {
	return &Linear{
		inFeatures:  l.inFeatures,
		outFeatures: l.outFeatures,
		weight:      l.weight.Clone(),
		bias:        l.bias.Clone(),
	}
}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	stateDict["weight"] = l.weight.Tensor()
	if l.bias != nil {
		stateDict["bias"] = l.bias.Tensor()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	weightRaw, ok := stateDict["weight"]
	if !ok {
		return fmt.Errorf("missing weight in state dict")
	}
	if err := checkRaw("weight", weightRaw, tensor.Shape{l.outFeatures, l.inFeatures}); err != nil {
		return err
	}

	var biasRaw *tensor.RawTensor
	if l.bias != nil {
		biasRaw, ok = stateDict["bias"]
		if !ok {
			return fmt.Errorf("missing bias in state dict")
		}
		if err := checkRaw("bias", biasRaw, tensor.Shape{l.outFeatures}); err != nil {
			return err
		}
	}

	copy(l.weight.Tensor().AsFloat32(), weightRaw.AsFloat32())
	if biasRaw != nil {
		copy(l.bias.Tensor().AsFloat32(), biasRaw.AsFloat32())
	}
	return nil
}

// checkRaw validates the shape and dtype of a state dict entry.
func checkRaw(name string, raw *tensor.RawTensor, expected tensor.Shape) error {
	if !raw.Shape().Equal(expected) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, expected, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", name, raw.DType())
	}
	return nil
}

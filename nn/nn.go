// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/lowrank/internal/nn"
	"github.com/born-ml/lowrank/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module = nn.Module

// Container is a module with ordered, named children.
type Container = nn.Container

// Parameter represents a named parameter tensor.
type Parameter = nn.Parameter

// Kind classifies a module as container, linear layer or other leaf.
type Kind = nn.Kind

// Module kinds.
const (
	KindOther     = nn.KindOther
	KindLinear    = nn.KindLinear
	KindContainer = nn.KindContainer
)

// Layers

// Linear represents a fully connected (dense) layer.
type Linear = nn.Linear

// LinearOption configures NewLinear.
type LinearOption = nn.LinearOption

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
//	head := nn.NewLinear(128, 10, nn.WithBias(false))
func NewLinear(inFeatures, outFeatures int, opts ...LinearOption) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, opts...)
}

// NewLinearFrom creates a linear layer from existing weight [out, in] and
// optional bias [out] tensors.
func NewLinearFrom(weight, bias *tensor.RawTensor) (*Linear, error) {
	return nn.NewLinearFrom(weight, bias)
}

// WithBias controls whether NewLinear allocates a bias (default true).
func WithBias(bias bool) LinearOption {
	return nn.WithBias(bias)
}

// WithRand sets the random source used for weight initialization.
func WithRand(rng *rand.Rand) LinearOption {
	return nn.WithRand(rng)
}

// LayerNorm applies layer normalization over the last dimension.
type LayerNorm = nn.LayerNorm

// NewLayerNorm creates a LayerNorm with gamma = 1 and beta = 0.
func NewLayerNorm(features int, epsilon float32) *LayerNorm {
	return nn.NewLayerNorm(features, epsilon)
}

// Activations

// ReLU represents the Rectified Linear Unit activation.
type ReLU = nn.ReLU

// NewReLU creates a new ReLU activation.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// Sigmoid represents the logistic activation.
type Sigmoid = nn.Sigmoid

// NewSigmoid creates a new Sigmoid activation.
func NewSigmoid() *Sigmoid {
	return nn.NewSigmoid()
}

// Tanh represents the hyperbolic tangent activation.
type Tanh = nn.Tanh

// NewTanh creates a new Tanh activation.
func NewTanh() *Tanh {
	return nn.NewTanh()
}

// Containers

// Sequential chains modules; its children are named "0", "1", ...
type Sequential = nn.Sequential

// NewSequential creates a new sequential container.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// Dict holds named children in declaration order.
type Dict = nn.Dict

// NewDict creates an empty Dict.
func NewDict() *Dict {
	return nn.NewDict()
}

// Utilities

// Classify returns the kind of m.
func Classify(m Module) Kind {
	return nn.Classify(m)
}

// Clone returns a deep copy of m.
func Clone(m Module) Module {
	return nn.Clone(m)
}

// Walk calls fn for m and every descendant in depth-first pre-order with
// dotted paths relative to m.
func Walk(m Module, fn func(path string, m Module) error) error {
	return nn.Walk(m, fn)
}

// CountParameters returns the total number of scalar parameters in m.
func CountParameters(m Module) int {
	return nn.CountParameters(m)
}

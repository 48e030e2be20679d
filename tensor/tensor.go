// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Type aliases for public API

// RawTensor is a dense row-major tensor that owns its buffer.
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// NewRaw creates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromBytes creates a tensor from a copy of data.
func FromBytes(data []byte, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.FromBytes(data, shape, dtype)
}

// FromFloat32 creates a float32 tensor from a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// Zeros creates a float32 tensor filled with zeros.
func Zeros(shape Shape) *RawTensor {
	return tensor.Zeros(shape)
}

// Ones creates a float32 tensor filled with ones.
func Ones(shape Shape) *RawTensor {
	return tensor.Ones(shape)
}

// Randn creates a float32 tensor with standard normal entries drawn from rng.
func Randn(shape Shape, rng *rand.Rand) *RawTensor {
	return tensor.Randn(shape, rng)
}

// MatMul multiplies two 2D float32 tensors.
func MatMul(a, b *RawTensor) *RawTensor {
	return tensor.MatMul(a, b)
}

// Transpose returns the transpose of a 2D float32 tensor.
func Transpose(t *RawTensor) *RawTensor {
	return tensor.Transpose(t)
}

// RelativeError returns ||a - b||_F / ||b||_F.
func RelativeError(a, b *RawTensor) float64 {
	return tensor.RelativeError(a, b)
}

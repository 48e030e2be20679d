package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a float32 tensor filled with zeros.
// Panics if shape is invalid.
func Zeros(shape Shape) *RawTensor {
	t, err := NewRaw(shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("Zeros: %v", err))
	}
	return t
}

// Ones creates a float32 tensor filled with ones.
// Panics if shape is invalid.
func Ones(shape Shape) *RawTensor {
	t := Zeros(shape)
	data := t.AsFloat32()
	for i := range data {
		data[i] = 1
	}
	return t
}

// FromFloat32 creates a float32 tensor from a copy of data.
//
// Example:
//
//	w, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// Randn creates a float32 tensor with values drawn from N(0, 1).
func Randn(shape Shape, rng *rand.Rand) *RawTensor {
	t := Zeros(shape)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Uniform creates a float32 tensor with values drawn from U(-bound, bound).
func Uniform(shape Shape, bound float64, rng *rand.Rand) *RawTensor {
	t := Zeros(shape)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

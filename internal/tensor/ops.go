package tensor

import (
	"fmt"
	"math"

	"github.com/born-ml/lowrank/internal/parallel"
)

// matmulConfig splits large products across CPUs by output row.
var matmulConfig = parallel.DefaultConfig()

// MatMul computes the matrix product a @ b of two 2D float32 tensors.
//
// a has shape [m, k], b has shape [k, n], result has shape [m, n].
// Accumulation is done in float64. Large products are split by output row
// across goroutines.
func MatMul(a, b *RawTensor) *RawTensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("MatMul: expected 2D tensors, got %v and %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]
	if bs[0] != k {
		panic(fmt.Sprintf("MatMul: inner dimensions differ: %v @ %v", as, bs))
	}

	ad, bd := a.AsFloat32(), b.AsFloat32()
	out := Zeros(Shape{m, n})
	od := out.AsFloat32()

	parallel.Rows(m, m*k*n, matmulConfig, func(lo, hi int) {
		acc := make([]float64, n)
		for i := lo; i < hi; i++ {
			clear(acc)
			row := ad[i*k : (i+1)*k]
			for p, av := range row {
				if av == 0 {
					continue
				}
				brow := bd[p*n : (p+1)*n]
				for j, bv := range brow {
					acc[j] += float64(av) * float64(bv)
				}
			}
			for j, v := range acc {
				od[i*n+j] = float32(v)
			}
		}
	})
	return out
}

// Transpose returns the transpose of a 2D float32 tensor.
func Transpose(t *RawTensor) *RawTensor {
	s := t.Shape()
	if len(s) != 2 {
		panic(fmt.Sprintf("Transpose: expected 2D tensor, got %v", s))
	}
	rows, cols := s[0], s[1]
	src := t.AsFloat32()
	out := Zeros(Shape{cols, rows})
	dst := out.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return out
}

// AddRow adds a 1D vector to every row of a 2D tensor in place.
func AddRow(t, row *RawTensor) {
	s := t.Shape()
	if len(s) != 2 || row.NumElements() != s[1] {
		panic(fmt.Sprintf("AddRow: cannot broadcast %v over %v", row.Shape(), s))
	}
	data, r := t.AsFloat32(), row.AsFloat32()
	cols := s[1]
	for i := 0; i < s[0]; i++ {
		line := data[i*cols : (i+1)*cols]
		for j := range line {
			line[j] += r[j]
		}
	}
}

// Map returns a new tensor with f applied to every element.
func Map(t *RawTensor, f func(float32) float32) *RawTensor {
	out := t.Clone()
	data := out.AsFloat32()
	for i, v := range data {
		data[i] = f(v)
	}
	return out
}

// RelativeError returns ||a - b||_F / ||b||_F for two float32 tensors of
// equal shape. If b is all zeros the absolute error is returned.
func RelativeError(a, b *RawTensor) float64 {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("RelativeError: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	ad, bd := a.AsFloat32(), b.AsFloat32()
	var diff, ref float64
	for i := range ad {
		d := float64(ad[i]) - float64(bd[i])
		diff += d * d
		ref += float64(bd[i]) * float64(bd[i])
	}
	if ref == 0 {
		return math.Sqrt(diff)
	}
	return math.Sqrt(diff / ref)
}

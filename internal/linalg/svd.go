// Package linalg wraps the dense linear algebra used to factorize layer
// weights. All math runs in float64 on gonum matrices and is converted back
// to float32 tensors at the boundary.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Common errors.
var (
	ErrNoConvergence = errors.New("svd did not converge")
	ErrNonFinite     = errors.New("matrix contains NaN or Inf")
	ErrNotMatrix     = errors.New("tensor is not a 2D float32 matrix")
)

// SVD is a thin singular value decomposition W = U · diag(S) · Vᵗ.
//
// For W of shape [rows, cols] and r = min(rows, cols):
//   - U has shape [rows, r]
//   - S has length r, sorted in descending order
//   - V has shape [cols, r]
type SVD struct {
	U *mat.Dense
	S []float64
	V *mat.Dense
}

// Factorize computes the thin SVD of a 2D float32 tensor.
func Factorize(w *tensor.RawTensor) (*SVD, error) {
	a, err := ToDense(w)
	if err != nil {
		return nil, err
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		rows, cols := a.Dims()
		return nil, fmt.Errorf("factorize %dx%d: %w", rows, cols, ErrNoConvergence)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	return &SVD{
		U: &u,
		S: svd.Values(nil),
		V: &v,
	}, nil
}

// Rank returns the number of singular values, min(rows, cols).
func (s *SVD) Rank() int {
	return len(s.S)
}

// Left returns U[:, :l] as a float32 tensor of shape [rows, l].
func (s *SVD) Left(l int) *tensor.RawTensor {
	s.checkRank(l)
	rows, _ := s.U.Dims()
	return FromMatrix(s.U.Slice(0, rows, 0, l))
}

// Right returns diag(S[:l]) · V[:, :l]ᵗ as a float32 tensor of shape [l, cols].
func (s *SVD) Right(l int) *tensor.RawTensor {
	s.checkRank(l)
	cols, _ := s.V.Dims()

	sigma := mat.NewDiagDense(l, append([]float64(nil), s.S[:l]...))
	var right mat.Dense
	right.Mul(sigma, s.V.Slice(0, cols, 0, l).T())
	return FromMatrix(&right)
}

// ResidualRatio returns the relative Frobenius error of the rank-l
// approximation, sqrt(sum S[l:]²) / sqrt(sum S²).
func (s *SVD) ResidualRatio(l int) float64 {
	var total, tail float64
	for i, v := range s.S {
		total += v * v
		if i >= l {
			tail += v * v
		}
	}
	if total == 0 {
		return 0
	}
	return math.Sqrt(tail / total)
}

func (s *SVD) checkRank(l int) {
	if l < 1 || l > len(s.S) {
		panic(fmt.Sprintf("linalg: rank %d out of range [1, %d]", l, len(s.S)))
	}
}

// ToDense converts a 2D float32 tensor into a float64 gonum matrix.
func ToDense(t *tensor.RawTensor) (*mat.Dense, error) {
	if t == nil || t.DType() != tensor.Float32 || len(t.Shape()) != 2 {
		return nil, ErrNotMatrix
	}
	shape := t.Shape()
	src := t.AsFloat32()
	data := make([]float64, len(src))
	for i, v := range src {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("element %d: %w", i, ErrNonFinite)
		}
		data[i] = f
	}
	return mat.NewDense(shape[0], shape[1], data), nil
}

// FromMatrix converts a gonum matrix into a float32 tensor.
func FromMatrix(m mat.Matrix) *tensor.RawTensor {
	rows, cols := m.Dims()
	out := tensor.Zeros(tensor.Shape{rows, cols})
	dst := out.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[i*cols+j] = float32(m.At(i, j))
		}
	}
	return out
}

package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.NoError(t, s.Validate())
	assert.Error(t, Shape{2, 0}.Validate())
	assert.Error(t, Shape{-1}.Validate())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0], "Clone must not alias")
	assert.True(t, Shape{5, 6}.Equal(Shape{5, 6}))
	assert.False(t, Shape{5, 6}.Equal(Shape{6, 5}))
	assert.Equal(t, 5, Shape{5, 6}.Rows())
	assert.Equal(t, 6, Shape{5, 6}.Cols())
	assert.Panics(t, func() { s.Rows() })
}

func TestNewRaw(t *testing.T) {
	r, err := NewRaw(Shape{2, 3}, Float32)
	require.NoError(t, err)
	assert.Equal(t, 24, r.ByteSize())
	assert.Equal(t, Float32, r.DType())
	for _, v := range r.AsFloat32() {
		assert.Zero(t, v)
	}

	_, err = NewRaw(Shape{0, 3}, Float32)
	assert.Error(t, err)

	assert.Panics(t, func() { r.AsFloat64() })
}

func TestFromBytes(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r, err := FromBytes(src, Shape{2}, Float32)
	require.NoError(t, err)
	src[0] = 42
	assert.Equal(t, byte(1), r.Data()[0], "FromBytes must copy")

	_, err = FromBytes(src, Shape{3}, Float32)
	assert.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	a, err := FromFloat32([]float32{1, 2, 3, 4}, Shape{2, 2})
	require.NoError(t, err)

	b := a.Clone()
	assert.True(t, a.Equal(b))
	assert.False(t, a.SameStorage(b))

	b.AsFloat32()[0] = 100
	assert.Equal(t, float32(1), a.AsFloat32()[0])
	assert.False(t, a.Equal(b))
	assert.True(t, a.SameStorage(a))
}

func TestEqual_Nil(t *testing.T) {
	var a, b *RawTensor
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Zeros(Shape{1})))
}

func TestMatMul(t *testing.T) {
	a, _ := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	b, _ := FromFloat32([]float32{7, 8, 9, 10, 11, 12}, Shape{3, 2})

	c := MatMul(a, b)
	assert.Equal(t, Shape{2, 2}, c.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, c.AsFloat32())

	assert.Panics(t, func() { MatMul(a, a) })
}

func TestMatMul_LargeMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := Randn(Shape{200, 64}, rng)
	b := Randn(Shape{64, 50}, rng)

	got := MatMul(a, b)

	saved := matmulConfig
	matmulConfig.Workers = 1
	want := MatMul(a, b)
	matmulConfig = saved

	assert.Equal(t, want.AsFloat32(), got.AsFloat32())
}

func TestTranspose(t *testing.T) {
	a, _ := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	at := Transpose(a)
	assert.Equal(t, Shape{3, 2}, at.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, at.AsFloat32())
	assert.True(t, a.Equal(Transpose(at)))
}

func TestAddRow(t *testing.T) {
	a, _ := FromFloat32([]float32{1, 2, 3, 4}, Shape{2, 2})
	row, _ := FromFloat32([]float32{10, 20}, Shape{2})
	AddRow(a, row)
	assert.Equal(t, []float32{11, 22, 13, 24}, a.AsFloat32())

	assert.Panics(t, func() { AddRow(a, Zeros(Shape{3})) })
}

func TestMap(t *testing.T) {
	a, _ := FromFloat32([]float32{-1, 2}, Shape{2})
	b := Map(a, func(v float32) float32 { return v * 2 })
	assert.Equal(t, []float32{-2, 4}, b.AsFloat32())
	assert.Equal(t, []float32{-1, 2}, a.AsFloat32())
}

func TestRelativeError(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := Randn(Shape{4, 4}, rng)
	assert.Zero(t, RelativeError(a, a))

	b, _ := FromFloat32([]float32{3, 4}, Shape{2})
	z := Zeros(Shape{2})
	assert.InDelta(t, 5.0, RelativeError(b, z), 1e-9)
	assert.InDelta(t, 1.0, RelativeError(z, b), 1e-9)
}

func TestUniform_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	u := Uniform(Shape{100}, 0.5, rng)
	for _, v := range u.AsFloat32() {
		assert.LessOrEqual(t, v, float32(0.5))
		assert.GreaterOrEqual(t, v, float32(-0.5))
	}
}

package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Rows returns the first dimension of a 2D shape.
func (s Shape) Rows() int {
	if len(s) != 2 {
		panic(fmt.Sprintf("Shape.Rows: expected 2D shape, got %v", s))
	}
	return s[0]
}

// Cols returns the second dimension of a 2D shape.
func (s Shape) Cols() int {
	if len(s) != 2 {
		panic(fmt.Sprintf("Shape.Cols: expected 2D shape, got %v", s))
	}
	return s[1]
}

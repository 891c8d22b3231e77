package tensor

import (
	"fmt"
	"math"
)

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

// Validate checks if the shape is valid: all dimensions > 0 and an element
// count that fits in an int.
func (s Shape) Validate() error {
	n := 1
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
		if dim > math.MaxInt/n {
			return fmt.Errorf("shape %v: element count overflows int", s)
		}
		n *= dim
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

// FlatTo2D returns the logical 2-D view of the shape used by the optimizer
// kernels: the leading dimension is the row count and the remaining axes are
// flattened into the row length.
//
//	Shape{}        → (1, 1)
//	Shape{5}       → (5, 1)
//	Shape{5, 3, 2} → (5, 6)
func (s Shape) FlatTo2D() (rows, rowLength int) {
	if len(s) == 0 {
		return 1, 1
	}
	return s[0], s[1:].NumElements()
}

// Rows returns the leading dimension of the 2-D view.
func (s Shape) Rows() int {
	rows, _ := s.FlatTo2D()
	return rows
}

// RowLength returns the number of elements in one row of the 2-D view.
func (s Shape) RowLength() int {
	_, n := s.FlatTo2D()
	return n
}

// WithRows returns a copy of the shape whose leading dimension is rows.
// A scalar shape is treated as Shape{1}.
func (s Shape) WithRows(rows int) Shape {
	if len(s) == 0 {
		return Shape{rows}
	}
	out := s.Clone()
	out[0] = rows
	return out
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

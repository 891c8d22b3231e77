package tensor

import "fmt"

// StorageType tags how an Array keeps its elements.
type StorageType int

// Storage types.
const (
	DenseStorage StorageType = iota
	RowSparseStorage
)

// String returns a human-readable storage name.
func (s StorageType) String() string {
	switch s {
	case DenseStorage:
		return "dense"
	case RowSparseStorage:
		return "row_sparse"
	default:
		return "unknown"
	}
}

// Array is a storage-tagged tensor: exactly one of a dense RawTensor or a
// RowSparse. The zero Array holds neither and is invalid as an operand.
type Array struct {
	dense  *RawTensor
	sparse *RowSparse
}

// Dense wraps a dense tensor.
func Dense(r *RawTensor) Array {
	return Array{dense: r}
}

// Sparse wraps a row-sparse tensor.
func Sparse(r *RowSparse) Array {
	return Array{sparse: r}
}

// Storage returns the storage tag.
func (a Array) Storage() StorageType {
	if a.sparse != nil {
		return RowSparseStorage
	}
	return DenseStorage
}

// IsValid reports whether the array holds a tensor.
func (a Array) IsValid() bool {
	return a.dense != nil || a.sparse != nil
}

// Raw returns the dense tensor, or nil for a row-sparse array.
func (a Array) Raw() *RawTensor {
	return a.dense
}

// RowSparse returns the row-sparse tensor, or nil for a dense array.
func (a Array) RowSparse() *RowSparse {
	return a.sparse
}

// Shape returns the (declared) shape.
func (a Array) Shape() Shape {
	if a.sparse != nil {
		return a.sparse.Shape()
	}
	if a.dense != nil {
		return a.dense.Shape()
	}
	return nil
}

// DType returns the element type.
func (a Array) DType() DataType {
	if a.sparse != nil {
		return a.sparse.DType()
	}
	return a.dense.DType()
}

// ToDense returns a dense tensor with the array's contents. A dense array is
// returned as is; a row-sparse array is materialized into a new tensor.
func (a Array) ToDense() (*RawTensor, error) {
	switch {
	case a.sparse != nil:
		return a.sparse.ToDense()
	case a.dense != nil:
		return a.dense, nil
	default:
		return nil, fmt.Errorf("empty array")
	}
}

// AssignDense writes d into the array, keeping its storage type. Row-sparse
// arrays end up with every row present.
func (a Array) AssignDense(d *RawTensor) error {
	switch {
	case a.sparse != nil:
		return a.sparse.AssignDense(d)
	case a.dense != nil:
		if a.dense.SharesBuffer(d) {
			return nil
		}
		return a.dense.CopyFrom(d)
	default:
		return fmt.Errorf("empty array")
	}
}

// SharesBuffer reports whether a and b refer to the same memory: the same
// row-sparse tensor, row-sparse tensors with a shared value buffer, or dense
// tensors with a shared buffer.
func (a Array) SharesBuffer(b Array) bool {
	switch {
	case a.sparse != nil && b.sparse != nil:
		return a.sparse == b.sparse || a.sparse.values.SharesBuffer(b.sparse.values)
	case a.dense != nil && b.dense != nil:
		return a.dense.SharesBuffer(b.dense)
	default:
		return false
	}
}

// String returns a short description of the array.
func (a Array) String() string {
	switch {
	case a.sparse != nil:
		return a.sparse.String()
	case a.dense != nil:
		return a.dense.String()
	default:
		return "Array(<nil>)"
	}
}

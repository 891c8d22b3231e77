package tensor

import "fmt"

// RowSparse is a tensor that materializes only a subset of the rows of its
// declared shape. Value row i holds logical row indices[i]; every other row
// is implicitly zero.
//
// A RowSparse created by NewRowSparse has no index buffer yet
// (StorageInitialized reports false) and reads as an all-zero tensor.
type RowSparse struct {
	shape       Shape
	dtype       DataType
	device      Device
	values      *RawTensor // shape.WithRows(len(indices)); nil when no rows are stored
	indices     []int64
	initialized bool
}

// NewRowSparse creates an uninitialized row-sparse tensor of the given
// declared shape. The shape must have at least one dimension.
func NewRowSparse(shape Shape, dtype DataType, device Device) (*RowSparse, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("row-sparse tensor needs at least one dimension")
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RowSparse{
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
	}, nil
}

// RowSparseFromRows builds an initialized row-sparse tensor from explicit
// row indices and their values. values must have shape
// shape.WithRows(len(indices)) and may be nil only when indices is empty.
// Indices must be unique and lie in [0, shape[0]); they need not be sorted.
func RowSparseFromRows(shape Shape, indices []int64, values *RawTensor) (*RowSparse, error) {
	rs, err := NewRowSparse(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		if values != nil {
			rs.dtype = values.DType()
			rs.device = values.Device()
		}
		rs.initialized = true
		return rs, nil
	}
	if values == nil {
		return nil, fmt.Errorf("row-sparse tensor with %d rows has no values", len(indices))
	}
	want := shape.WithRows(len(indices))
	if !values.Shape().Equal(want) {
		return nil, fmt.Errorf("row-sparse values shape %v, want %v", values.Shape(), want)
	}
	if err := checkRowIndices(indices, shape.Rows()); err != nil {
		return nil, err
	}
	rs.dtype = values.DType()
	rs.device = values.Device()
	rs.values = values
	rs.indices = append([]int64(nil), indices...)
	rs.initialized = true
	return rs, nil
}

// checkRowIndices verifies that indices are unique and within [0, rows).
func checkRowIndices(indices []int64, rows int) error {
	sorted := true
	for i, idx := range indices {
		if idx < 0 || idx >= int64(rows) {
			return fmt.Errorf("row index %d out of range [0, %d)", idx, rows)
		}
		if i > 0 && idx <= indices[i-1] {
			sorted = false
		}
	}
	if sorted {
		return nil
	}
	seen := make(map[int64]struct{}, len(indices))
	for _, idx := range indices {
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("duplicate row index %d", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// AllRows wraps a dense tensor as a row-sparse tensor with every row present.
// The result shares d's buffer.
func AllRows(d *RawTensor) (*RowSparse, error) {
	if len(d.Shape()) == 0 {
		return nil, fmt.Errorf("row-sparse tensor needs at least one dimension")
	}
	rows := d.Shape().Rows()
	return &RowSparse{
		shape:       d.Shape().Clone(),
		dtype:       d.DType(),
		device:      d.Device(),
		values:      d,
		indices:     identityIndices(rows),
		initialized: true,
	}, nil
}

// CompactRows copies the rows of d that contain at least one non-zero
// element into a new row-sparse tensor, in ascending row order.
func CompactRows(d *RawTensor) (*RowSparse, error) {
	if len(d.Shape()) == 0 {
		return nil, fmt.Errorf("row-sparse tensor needs at least one dimension")
	}
	rows, rowLength := d.FlatTo2D()
	rowBytes := rowLength * d.DType().Size()
	src := d.Data()

	var indices []int64
	for r := 0; r < rows; r++ {
		row := src[r*rowBytes : (r+1)*rowBytes]
		for _, b := range row {
			if b != 0 {
				indices = append(indices, int64(r))
				break
			}
		}
	}

	rs, err := NewRowSparse(d.Shape(), d.DType(), d.Device())
	if err != nil {
		return nil, err
	}
	rs.initialized = true
	if len(indices) == 0 {
		return rs, nil
	}
	values, err := NewRaw(d.Shape().WithRows(len(indices)), d.DType(), d.Device())
	if err != nil {
		return nil, err
	}
	dst := values.Data()
	for i, r := range indices {
		copy(dst[i*rowBytes:(i+1)*rowBytes], src[int(r)*rowBytes:(int(r)+1)*rowBytes])
	}
	rs.values = values
	rs.indices = indices
	return rs, nil
}

func identityIndices(rows int) []int64 {
	indices := make([]int64, rows)
	for i := range indices {
		indices[i] = int64(i)
	}
	return indices
}

// Shape returns the declared full shape.
func (r *RowSparse) Shape() Shape {
	return r.shape
}

// DType returns the element type.
func (r *RowSparse) DType() DataType {
	return r.dtype
}

// Device returns the compute device.
func (r *RowSparse) Device() Device {
	return r.device
}

// StorageInitialized reports whether the index buffer has been allocated.
func (r *RowSparse) StorageInitialized() bool {
	return r.initialized
}

// Indices returns the stored row indices. The slice must not be modified.
func (r *RowSparse) Indices() []int64 {
	return r.indices
}

// Values returns the stored rows as a dense tensor of shape
// Shape().WithRows(NumStoredRows()), or nil when no rows are stored.
func (r *RowSparse) Values() *RawTensor {
	return r.values
}

// NumStoredRows returns the number of materialized rows.
func (r *RowSparse) NumStoredRows() int {
	return len(r.indices)
}

// RowLength returns the number of elements per row.
func (r *RowSparse) RowLength() int {
	return r.shape.RowLength()
}

// AllRowsPresent reports whether every row of the declared shape is
// materialized in ascending order, so that the value buffer is an exact
// dense view.
func (r *RowSparse) AllRowsPresent() bool {
	if !r.initialized || r.values == nil || len(r.indices) != r.shape.Rows() {
		return false
	}
	for i, idx := range r.indices {
		if idx != int64(i) {
			return false
		}
	}
	return true
}

// FillZeros materializes every row of the declared shape as zeros,
// discarding any previously stored rows.
func (r *RowSparse) FillZeros() error {
	values, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return err
	}
	r.values = values
	r.indices = identityIndices(r.shape.Rows())
	r.initialized = true
	return nil
}

// ToDense returns a dense copy of the tensor with the declared shape.
// Rows that are not stored are zero.
func (r *RowSparse) ToDense() (*RawTensor, error) {
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		return nil, err
	}
	if r.values == nil {
		return out, nil
	}
	rowBytes := r.RowLength() * r.dtype.Size()
	src := r.values.Data()
	dst := out.Data()
	for i, row := range r.indices {
		copy(dst[int(row)*rowBytes:(int(row)+1)*rowBytes], src[i*rowBytes:(i+1)*rowBytes])
	}
	return out, nil
}

// AssignDense overwrites the tensor with the contents of d, which must match
// the declared shape and dtype. Afterwards every row is present. When all
// rows were already present the existing value buffer is reused.
func (r *RowSparse) AssignDense(d *RawTensor) error {
	if d.DType() != r.dtype {
		return fmt.Errorf("assign: dtype mismatch: %s vs %s", d.DType(), r.dtype)
	}
	if !d.Shape().Equal(r.shape) {
		return fmt.Errorf("assign: shape mismatch: %v vs %v", d.Shape(), r.shape)
	}
	if r.AllRowsPresent() {
		return r.values.CopyFrom(d)
	}
	r.values = d.Copy()
	r.indices = identityIndices(r.shape.Rows())
	r.initialized = true
	return nil
}

// String returns a short description of the tensor.
func (r *RowSparse) String() string {
	return fmt.Sprintf("RowSparse(shape=%v, dtype=%s, rows=%d, initialized=%t)",
		r.shape, r.dtype, len(r.indices), r.initialized)
}

package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optimops/internal/tensor"
)

func checkReq(op string, req OpReq) error {
	if !req.valid() {
		return errors.Wrapf(ErrWriteMode, "%s: req = %d", op, int(req))
	}
	return nil
}

func checkWeight(op string, weight *tensor.RawTensor) error {
	if weight == nil {
		return errors.Wrapf(ErrMissingOperand, "%s: weight", op)
	}
	if weight.NumElements() == 0 {
		return errors.Wrapf(ErrEmptyTensor, "%s: weight", op)
	}
	return nil
}

// checkOperand verifies that a dense operand is present, has the weight's
// shape, and has the expected dtype.
func checkOperand(op, name string, t *tensor.RawTensor, shape tensor.Shape, dtype tensor.DataType) error {
	if t == nil {
		return errors.Wrapf(ErrMissingOperand, "%s: %s", op, name)
	}
	if !t.Shape().Equal(shape) {
		return errors.Wrapf(ErrShapeMismatch, "%s: %s.shape = %v, weight.shape = %v", op, name, t.Shape(), shape)
	}
	if t.DType() != dtype {
		return errors.Wrapf(ErrDTypeMismatch, "%s: %s.dtype = %s, want %s", op, name, t.DType(), dtype)
	}
	return nil
}

type operand struct {
	name string
	t    *tensor.RawTensor
}

// checkOperands runs checkOperand on each operand.
func checkOperands(op string, shape tensor.Shape, dtype tensor.DataType, operands ...operand) error {
	for _, o := range operands {
		if err := checkOperand(op, o.name, o.t, shape, dtype); err != nil {
			return err
		}
	}
	return nil
}

// checkSparseGrad verifies a row-sparse gradient against the weight it
// updates. An uninitialized gradient only needs a matching declared shape.
func checkSparseGrad(op string, grad *tensor.RowSparse, shape tensor.Shape, dtype tensor.DataType) error {
	if grad == nil {
		return errors.Wrapf(ErrMissingOperand, "%s: grad", op)
	}
	if !grad.Shape().Equal(shape) {
		return errors.Wrapf(ErrShapeMismatch, "%s: grad.shape = %v, weight.shape = %v", op, grad.Shape(), shape)
	}
	if !grad.StorageInitialized() || grad.NumStoredRows() == 0 {
		return nil
	}
	if grad.DType() != dtype {
		return errors.Wrapf(ErrDTypeMismatch, "%s: grad.dtype = %s, want %s", op, grad.DType(), dtype)
	}
	rows := int64(shape.Rows())
	for _, idx := range grad.Indices() {
		if idx < 0 || idx >= rows {
			return errors.Wrapf(ErrIndexOutOfRange, "%s: grad row %d, weight has %d rows", op, idx, rows)
		}
	}
	return nil
}

// checkAllRows enforces the all-rows-present contract on a row-sparse weight.
func checkAllRows(op, name string, t *tensor.RowSparse) error {
	if t == nil {
		return errors.Wrapf(ErrMissingOperand, "%s: %s", op, name)
	}
	if !t.AllRowsPresent() {
		return errors.Wrapf(ErrMissingRows, "%s: %s stores %d of %d rows", op, name, t.NumStoredRows(), t.Shape().Rows())
	}
	return nil
}

// checkSparseState verifies a row-sparse state tensor. An uninitialized
// state is accepted (it is zero-filled lazily); an initialized one must
// have every row present.
func checkSparseState(op, name string, state *tensor.RowSparse, shape tensor.Shape, dtype tensor.DataType) error {
	if state == nil {
		return errors.Wrapf(ErrMissingOperand, "%s: %s", op, name)
	}
	if !state.Shape().Equal(shape) {
		return errors.Wrapf(ErrShapeMismatch, "%s: %s.shape = %v, weight.shape = %v", op, name, state.Shape(), shape)
	}
	if state.DType() != dtype {
		return errors.Wrapf(ErrDTypeMismatch, "%s: %s.dtype = %s, want %s", op, name, state.DType(), dtype)
	}
	if state.StorageInitialized() && !state.AllRowsPresent() {
		return errors.Wrapf(ErrMissingRows, "%s: %s stores %d of %d rows", op, name, state.NumStoredRows(), shape.Rows())
	}
	return nil
}

// checkInplace enforces the in-place contract of the sparse paths: the
// write mode is WriteInplace and out is a view of the weight's buffer.
func checkInplace(op string, req OpReq, weight, out *tensor.RawTensor) error {
	if req != WriteInplace {
		return errors.Wrapf(ErrWriteMode, "%s: sparse updates require inplace writes, got %s", op, req)
	}
	if out == nil || !out.SharesBuffer(weight) {
		return errors.Wrapf(ErrNotInplace, "%s", op)
	}
	return nil
}

// bufferOf returns the dense buffer behind an array: the tensor itself, or
// the value tensor of a row-sparse array.
func bufferOf(a tensor.Array) *tensor.RawTensor {
	if rs := a.RowSparse(); rs != nil {
		return rs.Values()
	}
	return a.Raw()
}

// dispatchFloat runs the instantiation for the weight dtype. float16
// weights run the float32 kernels through halfPrecision.
func dispatchFloat(op string, dtype tensor.DataType, f16, f32, f64 func()) error {
	switch dtype {
	case tensor.Float16:
		f16()
	case tensor.Float32:
		f32()
	case tensor.Float64:
		f64()
	default:
		return errors.Wrapf(ErrDTypeMismatch, "%s: unsupported weight dtype %s", op, dtype)
	}
	return nil
}

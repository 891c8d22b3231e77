package optim

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/optimops/internal/tensor"
)

// Precondition violations. They indicate a bug in the caller (or in the graph
// that scheduled the update) and are never retried.
var (
	ErrWriteMode          = errors.New("unsupported write mode")
	ErrNotInplace         = errors.New("output must alias the weight for an in-place sparse update")
	ErrMissingRows        = errors.New("row-sparse tensor must have every row present")
	ErrStorageMismatch    = errors.New("state storage type differs from weight storage type")
	ErrUnsupportedStorage = errors.New("unsupported storage type combination")
	ErrShapeMismatch      = errors.New("operand shape mismatch")
	ErrDTypeMismatch      = errors.New("operand dtype mismatch")
	ErrEmptyTensor        = errors.New("operand has no elements")
	ErrIndexOutOfRange    = errors.New("row index out of range")
	ErrInvalidParam       = errors.New("invalid optimizer parameter")
	ErrMissingOperand     = errors.New("missing operand")
)

// StorageError describes an operand tuple for which an operator has neither a
// specialized path nor a fallback. It unwraps to ErrUnsupportedStorage.
type StorageError struct {
	Op       string               // Operator name (e.g., "adam_update")
	Operands []string             // Operand names, in call order
	Storage  []tensor.StorageType // Storage type per operand
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	parts := make([]string, len(e.Operands))
	for i, name := range e.Operands {
		parts[i] = fmt.Sprintf("%s.stype = %s", name, e.Storage[i])
	}
	return fmt.Sprintf("%s: unexpected storage types: %s", e.Op, strings.Join(parts, ", "))
}

// Unwrap returns ErrUnsupportedStorage.
func (e *StorageError) Unwrap() error {
	return ErrUnsupportedStorage
}

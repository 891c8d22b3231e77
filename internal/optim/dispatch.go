package optim

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/optimops/internal/tensor"
)

// Storage-polymorphic entry points. Each one matches the storage types of
// its operands against the paths the rule implements and otherwise falls
// back to the dense entry point on materialized copies.

type namedArray struct {
	name  string
	array tensor.Array
}

func checkArrays(op string, arrays ...namedArray) error {
	for _, a := range arrays {
		if !a.array.IsValid() {
			return errors.Wrapf(ErrMissingOperand, "%s: %s", op, a.name)
		}
	}
	return nil
}

// checkStateStorage requires every state operand to use the weight's
// storage type.
func checkStateStorage(op string, weight tensor.Array, states ...namedArray) error {
	for _, s := range states {
		if s.array.Storage() != weight.Storage() {
			return errors.Wrapf(ErrStorageMismatch, "%s: %s.stype = %s, weight.stype = %s",
				op, s.name, s.array.Storage(), weight.Storage())
		}
	}
	return nil
}

func allStorage(stype tensor.StorageType, arrays ...tensor.Array) bool {
	for _, a := range arrays {
		if a.Storage() != stype {
			return false
		}
	}
	return true
}

func newStorageError(op string, arrays ...namedArray) *StorageError {
	err := &StorageError{Op: op}
	for _, a := range arrays {
		err.Operands = append(err.Operands, a.name)
		err.Storage = append(err.Storage, a.array.Storage())
	}
	return err
}

func storageTuple(arrays []namedArray) string {
	parts := make([]string, len(arrays))
	for i, a := range arrays {
		parts[i] = fmt.Sprintf("%s=%s", a.name, a.array.Storage())
	}
	return strings.Join(parts, " ")
}

// fallback runs a dense entry point on dense copies of row-sparse operands.
// inputs[0] is the weight and mutable lists the indices of the state
// operands the dense update writes. Mutated state and out are written back
// in their original storage; row-sparse ones end up with every row present.
func (e *Engine) fallback(op string, inputs []namedArray, mutable []int, req OpReq, out tensor.Array,
	run func(in []*tensor.RawTensor, out *tensor.RawTensor) error) error {
	if req == NullOp {
		return nil
	}
	e.logger.Debug("storage fallback", "op", op,
		"storage", storageTuple(append(inputs[:len(inputs):len(inputs)], namedArray{"out", out})))

	isMutable := make(map[int]bool, len(mutable))
	for _, i := range mutable {
		isMutable[i] = true
	}
	dense := make([]*tensor.RawTensor, len(inputs))
	for i, in := range inputs {
		if rs := in.array.RowSparse(); rs != nil {
			switch {
			case i == 0:
				if err := checkAllRows(op, in.name, rs); err != nil {
					return err
				}
			case isMutable[i] && rs.StorageInitialized() && !rs.AllRowsPresent():
				return errors.Wrapf(ErrMissingRows, "%s: %s stores %d of %d rows",
					op, in.name, rs.NumStoredRows(), rs.Shape().Rows())
			}
		}
		d, err := in.array.ToDense()
		if err != nil {
			return errors.Wrapf(err, "%s: %s", op, in.name)
		}
		dense[i] = d
	}

	denseOut := dense[0]
	if !out.SharesBuffer(inputs[0].array) {
		d, err := out.ToDense()
		if err != nil {
			return errors.Wrapf(err, "%s: out", op)
		}
		denseOut = d
	}
	if err := run(dense, denseOut); err != nil {
		return err
	}

	for _, i := range mutable {
		if err := inputs[i].array.AssignDense(dense[i]); err != nil {
			return errors.Wrapf(err, "%s: write back %s", op, inputs[i].name)
		}
	}
	if err := out.AssignDense(denseOut); err != nil {
		return errors.Wrapf(err, "%s: write back out", op)
	}
	return nil
}

// SGDUpdateEx routes sgd_update by storage type:
//
//	weight      grad        path
//	dense       dense       SGDUpdate
//	row_sparse  row_sparse  rows named by grad, on weight's values
//	row_sparse  dense       every row, skipping all-zero gradient rows
//	dense       row_sparse  rows named by grad
//
// Any other combination falls back to SGDUpdate on dense copies.
func (e *Engine) SGDUpdateEx(p SGDParam, weight, grad tensor.Array, req OpReq, out tensor.Array) error {
	const op = "sgd_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	switch ws, gs := weight.Storage(), grad.Storage(); {
	case allStorage(tensor.DenseStorage, weight, grad, out):
		return e.SGDUpdate(p, weight.Raw(), grad.Raw(), req, out.Raw())
	case ws == tensor.RowSparseStorage && gs == tensor.RowSparseStorage:
		return e.sgdRspRsp(p, weight.RowSparse(), grad.RowSparse(), req, out)
	case ws == tensor.RowSparseStorage && gs == tensor.DenseStorage:
		return e.sgdRspDns(p, weight.RowSparse(), grad.Raw(), req, out)
	case ws == tensor.DenseStorage && gs == tensor.RowSparseStorage && out.Storage() == tensor.DenseStorage:
		return e.sgdDnsRsp(p, weight.Raw(), grad.RowSparse(), req, out.Raw())
	}
	return e.fallback(op, inputs, nil, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.SGDUpdate(p, in[0], in[1], req, o)
	})
}

// SGDMomUpdateEx routes sgd_mom_update by storage type. mom must use the
// weight's storage type. Row-sparse weights take a sparse path with either
// gradient storage; a dense weight with a row-sparse gradient falls back.
func (e *Engine) SGDMomUpdateEx(p SGDMomParam, weight, grad, mom tensor.Array, req OpReq, out tensor.Array) error {
	const op = "sgd_mom_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"mom", mom}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	if err := checkStateStorage(op, weight, inputs[2]); err != nil {
		return err
	}
	switch {
	case allStorage(tensor.DenseStorage, weight, grad, mom, out):
		return e.SGDMomUpdate(p, weight.Raw(), grad.Raw(), mom.Raw(), req, out.Raw())
	case allStorage(tensor.RowSparseStorage, weight, grad, mom):
		return e.sgdMomRspRspRsp(p, weight.RowSparse(), grad.RowSparse(), mom.RowSparse(), req, out)
	case allStorage(tensor.RowSparseStorage, weight, mom) && grad.Storage() == tensor.DenseStorage:
		return e.sgdMomRspDns(p, weight.RowSparse(), grad.Raw(), mom.RowSparse(), req, out)
	}
	return e.fallback(op, inputs, []int{2}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.SGDMomUpdate(p, in[0], in[1], in[2], req, o)
	})
}

// MPSGDUpdateEx runs mp_sgd_update on dense operands and falls back to
// dense copies for any row-sparse operand.
func (e *Engine) MPSGDUpdateEx(p SGDParam, weight, grad, weight32 tensor.Array, req OpReq, out tensor.Array) error {
	const op = "mp_sgd_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"weight32", weight32}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	if allStorage(tensor.DenseStorage, weight, grad, weight32, out) {
		return e.MPSGDUpdate(p, weight.Raw(), grad.Raw(), weight32.Raw(), req, out.Raw())
	}
	return e.fallback(op, inputs, []int{2}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.MPSGDUpdate(p, in[0], in[1], in[2], req, o)
	})
}

// MPSGDMomUpdateEx runs mp_sgd_mom_update on dense operands and falls back
// to dense copies for any row-sparse operand.
func (e *Engine) MPSGDMomUpdateEx(p SGDMomParam, weight, grad, mom, weight32 tensor.Array, req OpReq, out tensor.Array) error {
	const op = "mp_sgd_mom_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"mom", mom}, {"weight32", weight32}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	if allStorage(tensor.DenseStorage, weight, grad, mom, weight32, out) {
		return e.MPSGDMomUpdate(p, weight.Raw(), grad.Raw(), mom.Raw(), weight32.Raw(), req, out.Raw())
	}
	return e.fallback(op, inputs, []int{2, 3}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.MPSGDMomUpdate(p, in[0], in[1], in[2], in[3], req, o)
	})
}

// AdamUpdateEx routes adam_update by storage type. mean and var must use
// the weight's storage type. A row-sparse weight requires a row-sparse
// gradient and a row-sparse out; there is no fallback for a row-sparse
// weight, and other combinations return a *StorageError. A dense weight with
// a row-sparse gradient falls back to AdamUpdate on dense copies.
func (e *Engine) AdamUpdateEx(p AdamParam, weight, grad, mean, variance tensor.Array, req OpReq, out tensor.Array) error {
	const op = "adam_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"mean", mean}, {"var", variance}}
	all := append(inputs, namedArray{"out", out})
	if err := checkArrays(op, all...); err != nil {
		return err
	}
	if err := checkStateStorage(op, weight, inputs[2], inputs[3]); err != nil {
		return err
	}
	switch {
	case allStorage(tensor.DenseStorage, weight, grad, mean, variance, out):
		return e.AdamUpdate(p, weight.Raw(), grad.Raw(), mean.Raw(), variance.Raw(), req, out.Raw())
	case allStorage(tensor.RowSparseStorage, weight, grad, mean, variance, out):
		return e.adamRspRspRsp(p, weight.RowSparse(), grad.RowSparse(), mean.RowSparse(), variance.RowSparse(), req, out)
	case weight.Storage() == tensor.RowSparseStorage:
		return newStorageError(op, all...)
	}
	return e.fallback(op, inputs, []int{2, 3}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.AdamUpdate(p, in[0], in[1], in[2], in[3], req, o)
	})
}

// RMSPropAlexUpdateEx runs rmspropalex_update on dense operands and falls
// back to dense copies for any row-sparse operand.
func (e *Engine) RMSPropAlexUpdateEx(p RMSPropAlexParam, weight, grad, n, g, delta tensor.Array, req OpReq, out tensor.Array) error {
	const op = "rmspropalex_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"n", n}, {"g", g}, {"delta", delta}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	if allStorage(tensor.DenseStorage, weight, grad, n, g, delta, out) {
		return e.RMSPropAlexUpdate(p, weight.Raw(), grad.Raw(), n.Raw(), g.Raw(), delta.Raw(), req, out.Raw())
	}
	return e.fallback(op, inputs, []int{2, 3, 4}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.RMSPropAlexUpdate(p, in[0], in[1], in[2], in[3], in[4], req, o)
	})
}

// RMSPropUpdateEx runs rmsprop_update on dense operands and falls back to
// dense copies for any row-sparse operand.
func (e *Engine) RMSPropUpdateEx(p RMSPropParam, weight, grad, n tensor.Array, req OpReq, out tensor.Array) error {
	const op = "rmsprop_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	inputs := []namedArray{{"weight", weight}, {"grad", grad}, {"n", n}}
	if err := checkArrays(op, append(inputs, namedArray{"out", out})...); err != nil {
		return err
	}
	if allStorage(tensor.DenseStorage, weight, grad, n, out) {
		return e.RMSPropUpdate(p, weight.Raw(), grad.Raw(), n.Raw(), req, out.Raw())
	}
	return e.fallback(op, inputs, []int{2}, req, out, func(in []*tensor.RawTensor, o *tensor.RawTensor) error {
		return e.RMSPropUpdate(p, in[0], in[1], in[2], req, o)
	})
}

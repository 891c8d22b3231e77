// Package optim implements optimizer update operators for dense and
// row-sparse parameters.
//
// This package provides:
//   - Engine: the update operators (SGD, SGD with momentum, mixed-precision
//     SGD, Adam, RMSProp and centered RMSProp), each with a dense entry point
//     and a storage-polymorphic Ex entry point
//   - Param structs: immutable hyperparameter blocks with documented defaults
//   - Optimizer implementations (SGD, Adam, RMSProp) that own per-parameter
//     state and drive the Engine once per training step
//
// Example usage:
//
//	opt := optim.NewAdam(params, optim.AdamConfig{LR: 0.001})
//
//	for step := range steps {
//	    grads := computeGradients(params, batch)
//	    if err := opt.Step(grads); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optimops/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers own the state of the parameters they were created with and
// update those parameters in place.
type Optimizer interface {
	// Step applies one update to every parameter that has an entry in grads.
	// Gradients are keyed by parameter name and may be dense or row-sparse.
	// Parameters without a gradient are skipped.
	Step(grads map[string]tensor.Array) error

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate, e.g. from a schedule.
	SetLR(lr float32)
}

// Parameter is a named trainable tensor. Value may be dense or row-sparse;
// a row-sparse value must store every row.
type Parameter struct {
	Name  string
	Value tensor.Array
}

// base holds what every optimizer shares.
type base struct {
	name   string
	params []Parameter
	lr     float32
	engine *Engine
}

func newBase(name string, params []Parameter, lr float32, engine *Engine) base {
	if engine == nil {
		engine = NewEngine(EngineConfig{})
	}
	return base{
		name:   name,
		params: params,
		lr:     lr,
		engine: engine,
	}
}

// GetLR returns the current learning rate.
func (b *base) GetLR() float32 {
	return b.lr
}

// SetLR updates the learning rate.
func (b *base) SetLR(lr float32) {
	b.lr = lr
}

// step calls update for every parameter that has a gradient.
func (b *base) step(grads map[string]tensor.Array, update func(param Parameter, grad tensor.Array) error) error {
	for _, param := range b.params {
		grad, ok := grads[param.Name]
		if !ok || !grad.IsValid() {
			b.engine.logger.Debug("no gradient, skipping", "optimizer", b.name, "param", param.Name)
			continue
		}
		if err := update(param, grad); err != nil {
			return errors.Wrapf(err, "%s: parameter %q", b.name, param.Name)
		}
	}
	return nil
}

// zerosLike allocates a zero state tensor with like's shape and storage
// type. Row-sparse state starts uninitialized and is zero-filled by the
// first sparse update that needs it.
func zerosLike(like tensor.Array, dtype tensor.DataType) (tensor.Array, error) {
	if rs := like.RowSparse(); rs != nil {
		state, err := tensor.NewRowSparse(rs.Shape(), dtype, rs.Device())
		if err != nil {
			return tensor.Array{}, err
		}
		return tensor.Sparse(state), nil
	}
	raw := like.Raw()
	state, err := tensor.NewRaw(raw.Shape(), dtype, raw.Device())
	if err != nil {
		return tensor.Array{}, err
	}
	return tensor.Dense(state), nil
}

// stateFor returns the state buffer of param in states, allocating it with
// zerosLike on first use.
func stateFor(states map[string]tensor.Array, param Parameter, dtype tensor.DataType) (tensor.Array, error) {
	if st, ok := states[param.Name]; ok {
		return st, nil
	}
	st, err := zerosLike(param.Value, dtype)
	if err != nil {
		return tensor.Array{}, err
	}
	states[param.Name] = st
	return st, nil
}

// orDefault returns def when v is zero.
func orDefault(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}

// clipOrOff maps the zero value of a clip bound to "disabled".
func clipOrOff(v float32) float32 {
	if v == 0 {
		return DefaultClipGradient
	}
	return v
}

var (
	_ Optimizer = (*SGD)(nil)
	_ Optimizer = (*Adam)(nil)
	_ Optimizer = (*RMSProp)(nil)
)

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides in-place optimizer update operators for dense and
// row-sparse parameters, and stateful optimizers built on them.
//
// # Overview
//
// This package contains:
//   - Engine: the update operators SGD, SGD with momentum, mixed-precision
//     SGD (with and without momentum), Adam, RMSProp and centered RMSProp
//   - Parameter blocks (SGDParam, AdamParam, ...) with documented defaults
//   - SGD, Adam and RMSProp optimizers that own per-parameter state
//
// # Operators
//
// Each operator has a dense entry point taking *tensor.RawTensor operands
// and an Ex entry point taking tensor.Array operands. The Ex entry point
// picks a row-sparse path when one exists for the storage types given and
// otherwise runs the dense operator on dense copies:
//
//	engine := optim.NewEngine(optim.EngineConfig{})
//	p := optim.NewSGDMomParam(0.1, 0.9)
//
//	// weight and mom are row-sparse with every row present; grad names
//	// the rows touched by this batch. Only those rows are updated.
//	err := engine.SGDMomUpdateEx(p, weight, grad, mom, optim.WriteInplace, weight)
//
// Row-sparse optimizer state may start uninitialized. The first sparse
// update that needs it fills it with zeros.
//
// # Optimizers
//
// SGD (Stochastic Gradient Descent):
//
//	opt := optim.NewSGD(params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
// Adam (Adaptive Moment Estimation):
//
//	opt := optim.NewAdam(params, optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float32{0.9, 0.999},
//	})
//
// # Training Loop Pattern
//
//	for step := range numSteps {
//	    // 1. Compute gradients, dense or row-sparse, keyed by parameter name
//	    grads := computeGradients(batch)
//
//	    // 2. Update parameters
//	    if err := opt.Step(grads); err != nil {
//	        return err
//	    }
//	}
package optim

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/optimops/internal/optim"
	"github.com/born-ml/optimops/internal/parallel"
)

// Engine executes optimizer update operators.
type Engine = optim.Engine

// EngineConfig holds configuration for an Engine.
type EngineConfig = optim.EngineConfig

// NewEngine creates an Engine, filling unset configuration with defaults.
//
// Example:
//
//	engine := optim.NewEngine(optim.EngineConfig{
//	    Launcher: optim.NewPool(optim.ParallelConfig{Enabled: true, NumWorkers: 8}),
//	    Logger:   slog.Default(),
//	})
func NewEngine(cfg EngineConfig) *Engine {
	return optim.NewEngine(cfg)
}

// Parallel execution

// Launcher runs a kernel once for every index of a range.
type Launcher = parallel.Launcher

// ParallelConfig configures a worker pool Launcher.
type ParallelConfig = parallel.Config

// DefaultParallelConfig returns a pool configuration sized to the machine.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// NewPool creates a Launcher that splits index ranges across goroutines.
func NewPool(cfg ParallelConfig) Launcher {
	return parallel.New(cfg)
}

// Sequential is a Launcher that runs every index on the calling goroutine.
type Sequential = parallel.Sequential

// Write modes

// OpReq tells an operator how to write its output.
type OpReq = optim.OpReq

// Write mode constants.
const (
	NullOp       OpReq = optim.NullOp
	WriteTo      OpReq = optim.WriteTo
	WriteInplace OpReq = optim.WriteInplace
	AddTo        OpReq = optim.AddTo
)

// Parameter blocks

// SGDParam holds the hyperparameters of sgd_update and mp_sgd_update.
type SGDParam = optim.SGDParam

// SGDMomParam holds the hyperparameters of sgd_mom_update and
// mp_sgd_mom_update.
type SGDMomParam = optim.SGDMomParam

// AdamParam holds the hyperparameters of adam_update.
type AdamParam = optim.AdamParam

// RMSPropAlexParam holds the hyperparameters of rmspropalex_update.
type RMSPropAlexParam = optim.RMSPropAlexParam

// RMSPropParam holds the hyperparameters of rmsprop_update.
type RMSPropParam = optim.RMSPropParam

// NewSGDParam returns SGD parameters with defaults for everything but lr.
func NewSGDParam(lr float32) SGDParam {
	return optim.NewSGDParam(lr)
}

// NewSGDMomParam returns SGD-momentum parameters with defaults for
// everything but lr and momentum.
func NewSGDMomParam(lr, momentum float32) SGDMomParam {
	return optim.NewSGDMomParam(lr, momentum)
}

// NewAdamParam returns Adam parameters with defaults for everything but lr.
func NewAdamParam(lr float32) AdamParam {
	return optim.NewAdamParam(lr)
}

// NewRMSPropAlexParam returns centered RMSProp parameters with defaults for
// everything but lr.
func NewRMSPropAlexParam(lr float32) RMSPropAlexParam {
	return optim.NewRMSPropAlexParam(lr)
}

// NewRMSPropParam returns RMSProp parameters with defaults for everything
// but lr.
func NewRMSPropParam(lr float32) RMSPropParam {
	return optim.NewRMSPropParam(lr)
}

// Errors

// Sentinel errors returned by the operators. Match them with errors.Is.
var (
	ErrWriteMode          = optim.ErrWriteMode
	ErrNotInplace         = optim.ErrNotInplace
	ErrMissingRows        = optim.ErrMissingRows
	ErrStorageMismatch    = optim.ErrStorageMismatch
	ErrUnsupportedStorage = optim.ErrUnsupportedStorage
	ErrShapeMismatch      = optim.ErrShapeMismatch
	ErrDTypeMismatch      = optim.ErrDTypeMismatch
	ErrEmptyTensor        = optim.ErrEmptyTensor
	ErrIndexOutOfRange    = optim.ErrIndexOutOfRange
	ErrInvalidParam       = optim.ErrInvalidParam
	ErrMissingOperand     = optim.ErrMissingOperand
)

// StorageError reports a storage type combination an operator has no path
// for. It matches ErrUnsupportedStorage.
type StorageError = optim.StorageError

// Optimizers

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Parameter is a named trainable tensor.
type Parameter = optim.Parameter

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(params []Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam(params []Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// RMSProp represents the RMSProp optimizer, optionally centered.
type RMSProp = optim.RMSProp

// RMSPropConfig contains configuration for RMSProp optimizer.
type RMSPropConfig = optim.RMSPropConfig

// NewRMSProp creates a new RMSProp optimizer.
func NewRMSProp(params []Parameter, config RMSPropConfig) *RMSProp {
	return optim.NewRMSProp(params, config)
}

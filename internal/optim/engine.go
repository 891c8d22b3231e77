package optim

import (
	"log/slog"

	"github.com/born-ml/optimops/internal/parallel"
	"github.com/born-ml/optimops/internal/tensor"
)

// EngineConfig holds configuration for an Engine.
type EngineConfig struct {
	// Launcher runs the per-index kernels (default: parallel.New(parallel.DefaultConfig())).
	Launcher parallel.Launcher
	// Logger receives debug records for storage fallbacks and lazy state
	// materialization (default: discard).
	Logger *slog.Logger
	// DisableRowSkip makes the dense-gradient/sparse-weight paths process
	// rows whose gradient is entirely zero instead of skipping them.
	DisableRowSkip bool
}

// Engine executes optimizer update operators. Every operator comes in two
// shapes: a dense entry point taking *tensor.RawTensor operands (SGDUpdate,
// AdamUpdate, ...) and a storage-polymorphic entry point taking tensor.Array
// operands (SGDUpdateEx, AdamUpdateEx, ...) that routes to a dense or
// row-sparse implementation.
//
// An Engine holds no per-parameter state and may be shared by goroutines,
// but two calls must never update overlapping tensors concurrently.
//
// Example:
//
//	engine := optim.NewEngine(optim.EngineConfig{})
//	p := optim.NewSGDMomParam(0.1, 0.9)
//	err := engine.SGDMomUpdateEx(p, weight, grad, mom, optim.WriteInplace, weight)
type Engine struct {
	launcher parallel.Launcher
	logger   *slog.Logger
	rowSkip  bool
}

// NewEngine creates an Engine, filling unset configuration with defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Launcher == nil {
		cfg.Launcher = parallel.New(parallel.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		launcher: cfg.Launcher,
		logger:   cfg.Logger,
		rowSkip:  !cfg.DisableRowSkip,
	}
}

// launch runs kernel over [0, n).
func (e *Engine) launch(n int, kernel func(i int)) {
	if n <= 0 {
		return
	}
	e.launcher.Launch(n, kernel)
}

// fillZeros lazily materializes an uninitialized row-sparse state tensor.
func (e *Engine) fillZeros(op, name string, state *tensor.RowSparse) error {
	if state.StorageInitialized() {
		return nil
	}
	e.logger.Debug("materializing row-sparse state", "op", op, "operand", name, "shape", state.Shape())
	return state.FillZeros()
}

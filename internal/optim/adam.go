package optim

import (
	"math"

	"github.com/born-ml/optimops/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Adam combines ideas from RMSprop and momentum:
//   - Maintains exponential moving averages of gradients (first moment)
//   - Maintains exponential moving averages of squared gradients (second moment)
//   - Applies bias correction to compensate for initialization at zero
//
// Bias correction is folded into the learning rate handed to the operator:
//
//	lr_t  = lr * sqrt(1 - beta2^t) / (1 - beta1^t)
//	g     = rescale_grad*grad + wd*w, clipped
//	m     = beta1*m + (1-beta1)*g
//	v     = beta2*v + (1-beta2)*g²
//	w     = w - lr_t*m/(sqrt(v) + eps)
//
// Row-sparse parameters keep row-sparse moments and are updated lazily: only
// the rows named by the gradient move. A dense gradient for a row-sparse
// parameter is compacted to its non-zero rows first.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	opt := optim.NewAdam(params, optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float32{0.9, 0.999},
//	    Eps:   1e-8,
//	})
type Adam struct {
	base
	config AdamConfig
	t      int                     // Timestep for bias correction
	m      map[string]tensor.Array // First moment estimates
	v      map[string]tensor.Array // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR           float32    // Learning rate (default: 0.001)
	Betas        [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps          float32    // Term for numerical stability (default: 1e-8)
	WD           float32    // Weight decay (default: 0)
	RescaleGrad  float32    // Gradient multiplier (default: 1)
	ClipGradient float32    // Gradient clip bound, 0 or < 0 disables (default: disabled)
	Engine       *Engine    // Operator engine (default: NewEngine(EngineConfig{}))
}

// NewAdam creates a new Adam optimizer over params.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam(params []Parameter, config AdamConfig) *Adam {
	config.LR = orDefault(config.LR, 0.001)
	if config.Betas == [2]float32{} {
		config.Betas = [2]float32{DefaultBeta1, DefaultBeta2}
	}
	config.Eps = orDefault(config.Eps, DefaultEpsilon)
	config.RescaleGrad = orDefault(config.RescaleGrad, DefaultRescaleGrad)
	config.ClipGradient = clipOrOff(config.ClipGradient)
	return &Adam{
		base:   newBase("adam", params, config.LR, config.Engine),
		config: config,
		m:      make(map[string]tensor.Array),
		v:      make(map[string]tensor.Array),
	}
}

// Step performs a single optimization step.
//
// The timestep advances once per successful call, whichever parameters have
// gradients. A failed call leaves the timestep unchanged, but parameters
// updated before the failure keep their update.
func (a *Adam) Step(grads map[string]tensor.Array) error {
	p := a.param(a.t + 1)
	err := a.step(grads, func(param Parameter, grad tensor.Array) error {
		return a.update(p, param, grad)
	})
	if err != nil {
		return err
	}
	a.t++
	return nil
}

func (a *Adam) update(p AdamParam, param Parameter, grad tensor.Array) error {
	w := param.Value
	if w.Storage() == tensor.RowSparseStorage && grad.Storage() == tensor.DenseStorage {
		compact, err := tensor.CompactRows(grad.Raw())
		if err != nil {
			return err
		}
		grad = tensor.Sparse(compact)
	}
	m, err := stateFor(a.m, param, w.DType())
	if err != nil {
		return err
	}
	v, err := stateFor(a.v, param, w.DType())
	if err != nil {
		return err
	}
	return a.engine.AdamUpdateEx(p, w, grad, m, v, WriteInplace, w)
}

// param returns the operator parameters for timestep step.
func (a *Adam) param(step int) AdamParam {
	beta1, beta2 := float64(a.config.Betas[0]), float64(a.config.Betas[1])
	t := float64(step)
	lr := float64(a.lr) * math.Sqrt(1-math.Pow(beta2, t)) / (1 - math.Pow(beta1, t))
	return AdamParam{
		LR:           float32(lr),
		Beta1:        a.config.Betas[0],
		Beta2:        a.config.Betas[1],
		Epsilon:      a.config.Eps,
		WD:           a.config.WD,
		RescaleGrad:  a.config.RescaleGrad,
		ClipGradient: a.config.ClipGradient,
	}
}

// Timestep returns the number of steps taken so far.
func (a *Adam) Timestep() int {
	return a.t
}

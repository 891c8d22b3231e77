package optim

import "github.com/born-ml/optimops/internal/tensor"

// RMSProp implements RMSProp (Tieleman & Hinton, 2012) and, with Centered
// set, the centered variant of Graves (2013) that also tracks the mean
// gradient and a momentum term.
//
// Update rule:
//
//	n = (1-gamma1)*g² + gamma1*n
//	w = w - lr*g/sqrt(n + eps)
//
// Centered update rule:
//
//	n     = (1-gamma1)*g² + gamma1*n
//	gAvg  = (1-gamma1)*g + gamma1*gAvg
//	delta = gamma2*delta - lr*g/sqrt(n - gAvg² + eps)
//	w     = w + delta
//
// g is rescale_grad*grad + wd*w, clipped when ClipGradient is set. The
// updated weight is clipped when ClipWeights is set. Row-sparse operands
// are supported through the dense fallback.
type RMSProp struct {
	base
	config RMSPropConfig
	n      map[string]tensor.Array
	g      map[string]tensor.Array
	delta  map[string]tensor.Array
}

// RMSPropConfig holds configuration for RMSProp optimizer.
type RMSPropConfig struct {
	LR           float32 // Learning rate (default: 0.001)
	Gamma1       float32 // Decay of the squared gradient (default: 0.95)
	Gamma2       float32 // Momentum of delta, centered only (default: 0.9)
	Eps          float32 // Term for numerical stability (default: 1e-8)
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, 0 or < 0 disables (default: disabled)
	ClipWeights  float32 // Weight clip bound, 0 or < 0 disables (default: disabled)
	Centered     bool    // Use the centered update
	Engine       *Engine // Operator engine (default: NewEngine(EngineConfig{}))
}

// NewRMSProp creates a new RMSProp optimizer over params.
func NewRMSProp(params []Parameter, config RMSPropConfig) *RMSProp {
	config.LR = orDefault(config.LR, 0.001)
	config.Gamma1 = orDefault(config.Gamma1, DefaultGamma1)
	config.Gamma2 = orDefault(config.Gamma2, DefaultGamma2)
	config.Eps = orDefault(config.Eps, DefaultEpsilon)
	config.RescaleGrad = orDefault(config.RescaleGrad, DefaultRescaleGrad)
	config.ClipGradient = clipOrOff(config.ClipGradient)
	config.ClipWeights = clipOrOff(config.ClipWeights)
	return &RMSProp{
		base:   newBase("rmsprop", params, config.LR, config.Engine),
		config: config,
		n:      make(map[string]tensor.Array),
		g:      make(map[string]tensor.Array),
		delta:  make(map[string]tensor.Array),
	}
}

// Step performs a single optimization step.
func (r *RMSProp) Step(grads map[string]tensor.Array) error {
	return r.step(grads, r.update)
}

func (r *RMSProp) update(param Parameter, grad tensor.Array) error {
	w := param.Value
	n, err := stateFor(r.n, param, w.DType())
	if err != nil {
		return err
	}
	if !r.config.Centered {
		p := RMSPropParam{
			LR:           r.lr,
			Gamma1:       r.config.Gamma1,
			Epsilon:      r.config.Eps,
			WD:           r.config.WD,
			RescaleGrad:  r.config.RescaleGrad,
			ClipGradient: r.config.ClipGradient,
			ClipWeights:  r.config.ClipWeights,
		}
		return r.engine.RMSPropUpdateEx(p, w, grad, n, WriteInplace, w)
	}
	g, err := stateFor(r.g, param, w.DType())
	if err != nil {
		return err
	}
	delta, err := stateFor(r.delta, param, w.DType())
	if err != nil {
		return err
	}
	p := RMSPropAlexParam{
		LR:           r.lr,
		Gamma1:       r.config.Gamma1,
		Gamma2:       r.config.Gamma2,
		Epsilon:      r.config.Eps,
		WD:           r.config.WD,
		RescaleGrad:  r.config.RescaleGrad,
		ClipGradient: r.config.ClipGradient,
		ClipWeights:  r.config.ClipWeights,
	}
	return r.engine.RMSPropAlexUpdateEx(p, w, grad, n, g, delta, WriteInplace, w)
}

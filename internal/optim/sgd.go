package optim

import "github.com/born-ml/optimops/internal/tensor"

// SGD implements Stochastic Gradient Descent with optional momentum and
// weight decay.
//
// Update rule without momentum:
//
//	w = (1 - lr*wd)*w - lr*clip(rescale_grad*grad)
//
// Update rule with momentum:
//
//	mom = momentum*mom - lr*wd*w - lr*clip(rescale_grad*grad)
//	w   = w + mom
//
// Row-sparse gradients update only the rows they name. With MultiPrecision
// set, float16 parameters are updated through a float32 master copy that
// accumulates small steps the half-precision weight would round away.
// Without it, float16 parameters are updated in float32 and rounded on store.
//
// Example:
//
//	opt := optim.NewSGD(params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
//	for step := range steps {
//	    if err := opt.Step(grads); err != nil {
//	        return err
//	    }
//	}
type SGD struct {
	base
	config SGDConfig
	mom    map[string]tensor.Array
	master map[string]tensor.Array
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR             float32 // Learning rate (default: 0.01)
	Momentum       float32 // Momentum factor (default: 0.0, range: [0, 1))
	WD             float32 // Weight decay (default: 0)
	RescaleGrad    float32 // Gradient multiplier (default: 1)
	ClipGradient   float32 // Gradient clip bound, 0 or < 0 disables (default: disabled)
	MultiPrecision bool    // Keep a float32 master copy of float16 parameters
	Engine         *Engine // Operator engine (default: NewEngine(EngineConfig{}))
}

// NewSGD creates a new SGD optimizer over params.
//
// Example:
//
//	sgd := optim.NewSGD(params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(params []Parameter, config SGDConfig) *SGD {
	config.LR = orDefault(config.LR, 0.01)
	config.RescaleGrad = orDefault(config.RescaleGrad, DefaultRescaleGrad)
	config.ClipGradient = clipOrOff(config.ClipGradient)
	return &SGD{
		base:   newBase("sgd", params, config.LR, config.Engine),
		config: config,
		mom:    make(map[string]tensor.Array),
		master: make(map[string]tensor.Array),
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient are skipped. Momentum and master buffers are
// allocated on a parameter's first step.
func (s *SGD) Step(grads map[string]tensor.Array) error {
	return s.step(grads, s.update)
}

func (s *SGD) update(param Parameter, grad tensor.Array) error {
	w := param.Value
	if s.config.MultiPrecision && w.DType() == tensor.Float16 {
		return s.updateMultiPrecision(param, grad)
	}
	if s.config.Momentum == 0 {
		return s.engine.SGDUpdateEx(s.sgdParam(), w, grad, WriteInplace, w)
	}
	mom, err := stateFor(s.mom, param, w.DType())
	if err != nil {
		return err
	}
	return s.engine.SGDMomUpdateEx(s.sgdMomParam(), w, grad, mom, WriteInplace, w)
}

func (s *SGD) updateMultiPrecision(param Parameter, grad tensor.Array) error {
	w := param.Value
	w32, ok := s.master[param.Name]
	if !ok {
		master, err := masterCopy(w)
		if err != nil {
			return err
		}
		w32 = tensor.Dense(master)
		s.master[param.Name] = w32
	}
	if s.config.Momentum == 0 {
		return s.engine.MPSGDUpdateEx(s.sgdParam(), w, grad, w32, WriteInplace, w)
	}
	mom, ok := s.mom[param.Name]
	if !ok {
		// The float32 momentum of a mixed-precision update is always dense,
		// matching the master copy.
		raw, err := tensor.Zeros(w.Shape(), tensor.Float32)
		if err != nil {
			return err
		}
		mom = tensor.Dense(raw)
		s.mom[param.Name] = mom
	}
	return s.engine.MPSGDMomUpdateEx(s.sgdMomParam(), w, grad, mom, w32, WriteInplace, w)
}

func (s *SGD) sgdParam() SGDParam {
	return SGDParam{
		LR:           s.lr,
		WD:           s.config.WD,
		RescaleGrad:  s.config.RescaleGrad,
		ClipGradient: s.config.ClipGradient,
	}
}

func (s *SGD) sgdMomParam() SGDMomParam {
	return SGDMomParam{
		LR:           s.lr,
		Momentum:     s.config.Momentum,
		WD:           s.config.WD,
		RescaleGrad:  s.config.RescaleGrad,
		ClipGradient: s.config.ClipGradient,
	}
}

// masterCopy widens a float16 parameter into a dense float32 tensor.
func masterCopy(w tensor.Array) (*tensor.RawTensor, error) {
	src, err := w.ToDense()
	if err != nil {
		return nil, err
	}
	master, err := tensor.Zeros(src.Shape(), tensor.Float32)
	if err != nil {
		return nil, err
	}
	dst := master.AsFloat32()
	for i, v := range src.AsFloat16() {
		dst[i] = v.Float32()
	}
	return master, nil
}

package optim

import (
	"math"

	"github.com/pkg/errors"
)

// Default hyperparameter values shared by the parameter constructors.
const (
	DefaultWD           float32 = 0     // No weight decay
	DefaultRescaleGrad  float32 = 1     // Gradient used as is
	DefaultClipGradient float32 = -1    // Gradient clipping off
	DefaultClipWeights  float32 = -1    // Weight clipping off
	DefaultMomentum     float32 = 0     // Plain SGD
	DefaultBeta1        float32 = 0.9   // Adam first moment decay
	DefaultBeta2        float32 = 0.999 // Adam second moment decay
	DefaultEpsilon      float32 = 1e-8  // Numerical stability term
	DefaultGamma1       float32 = 0.95  // RMSProp squared-gradient decay
	DefaultGamma2       float32 = 0.9   // RMSProp-Alex delta momentum
)

// SGDParam holds the hyperparameters of sgd_update and mp_sgd_update.
//
// ClipGradient enables clipping when >= 0: the rescaled gradient is clamped
// to [-ClipGradient, ClipGradient].
type SGDParam struct {
	LR           float32 // Learning rate
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, < 0 disables (default: -1)
}

// NewSGDParam returns SGDParam with the given learning rate and defaults.
func NewSGDParam(lr float32) SGDParam {
	return SGDParam{
		LR:           lr,
		WD:           DefaultWD,
		RescaleGrad:  DefaultRescaleGrad,
		ClipGradient: DefaultClipGradient,
	}
}

// Validate rejects non-finite hyperparameters.
func (p SGDParam) Validate() error {
	return checkFinite("sgd", "lr", p.LR, "wd", p.WD, "rescale_grad", p.RescaleGrad,
		"clip_gradient", p.ClipGradient)
}

// SGDMomParam holds the hyperparameters of sgd_mom_update and
// mp_sgd_mom_update.
type SGDMomParam struct {
	LR           float32 // Learning rate
	Momentum     float32 // Momentum decay rate (default: 0)
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, < 0 disables (default: -1)
}

// NewSGDMomParam returns SGDMomParam with the given learning rate and
// momentum and defaults for everything else.
func NewSGDMomParam(lr, momentum float32) SGDMomParam {
	return SGDMomParam{
		LR:           lr,
		Momentum:     momentum,
		WD:           DefaultWD,
		RescaleGrad:  DefaultRescaleGrad,
		ClipGradient: DefaultClipGradient,
	}
}

// Validate rejects non-finite hyperparameters.
func (p SGDMomParam) Validate() error {
	return checkFinite("sgd_mom", "lr", p.LR, "momentum", p.Momentum, "wd", p.WD,
		"rescale_grad", p.RescaleGrad, "clip_gradient", p.ClipGradient)
}

// AdamParam holds the hyperparameters of adam_update.
//
// Weight decay is folded into the gradient before clipping. Bias correction
// is not applied by the operator; callers that want it scale LR per step.
type AdamParam struct {
	LR           float32 // Learning rate
	Beta1        float32 // First moment decay (default: 0.9)
	Beta2        float32 // Second moment decay (default: 0.999)
	Epsilon      float32 // Numerical stability term (default: 1e-8)
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, < 0 disables (default: -1)
}

// NewAdamParam returns AdamParam with the given learning rate and defaults.
func NewAdamParam(lr float32) AdamParam {
	return AdamParam{
		LR:           lr,
		Beta1:        DefaultBeta1,
		Beta2:        DefaultBeta2,
		Epsilon:      DefaultEpsilon,
		WD:           DefaultWD,
		RescaleGrad:  DefaultRescaleGrad,
		ClipGradient: DefaultClipGradient,
	}
}

// Validate rejects non-finite hyperparameters and decay rates outside [0, 1].
func (p AdamParam) Validate() error {
	if err := checkFinite("adam", "lr", p.LR, "beta1", p.Beta1, "beta2", p.Beta2,
		"epsilon", p.Epsilon, "wd", p.WD, "rescale_grad", p.RescaleGrad,
		"clip_gradient", p.ClipGradient); err != nil {
		return err
	}
	return checkUnit("adam", "beta1", p.Beta1, "beta2", p.Beta2)
}

// RMSPropAlexParam holds the hyperparameters of rmspropalex_update, the
// centered RMSProp of Graves (2013), Eq. 38–45.
type RMSPropAlexParam struct {
	LR           float32 // Learning rate
	Gamma1       float32 // Decay of the squared and mean gradient (default: 0.95)
	Gamma2       float32 // Momentum of delta (default: 0.9)
	Epsilon      float32 // Numerical stability term (default: 1e-8)
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, < 0 disables (default: -1)
	ClipWeights  float32 // Weight clip bound, < 0 disables (default: -1)
}

// NewRMSPropAlexParam returns RMSPropAlexParam with the given learning rate
// and defaults.
func NewRMSPropAlexParam(lr float32) RMSPropAlexParam {
	return RMSPropAlexParam{
		LR:           lr,
		Gamma1:       DefaultGamma1,
		Gamma2:       DefaultGamma2,
		Epsilon:      DefaultEpsilon,
		WD:           DefaultWD,
		RescaleGrad:  DefaultRescaleGrad,
		ClipGradient: DefaultClipGradient,
		ClipWeights:  DefaultClipWeights,
	}
}

// Validate rejects non-finite hyperparameters and decay rates outside [0, 1].
func (p RMSPropAlexParam) Validate() error {
	if err := checkFinite("rmspropalex", "lr", p.LR, "gamma1", p.Gamma1, "gamma2", p.Gamma2,
		"epsilon", p.Epsilon, "wd", p.WD, "rescale_grad", p.RescaleGrad,
		"clip_gradient", p.ClipGradient, "clip_weights", p.ClipWeights); err != nil {
		return err
	}
	return checkUnit("rmspropalex", "gamma1", p.Gamma1, "gamma2", p.Gamma2)
}

// RMSPropParam holds the hyperparameters of rmsprop_update (Tieleman &
// Hinton, 2012).
type RMSPropParam struct {
	LR           float32 // Learning rate
	Gamma1       float32 // Decay of the squared gradient (default: 0.95)
	Epsilon      float32 // Numerical stability term (default: 1e-8)
	WD           float32 // Weight decay (default: 0)
	RescaleGrad  float32 // Gradient multiplier (default: 1)
	ClipGradient float32 // Gradient clip bound, < 0 disables (default: -1)
	ClipWeights  float32 // Weight clip bound, < 0 disables (default: -1)
}

// NewRMSPropParam returns RMSPropParam with the given learning rate and
// defaults.
func NewRMSPropParam(lr float32) RMSPropParam {
	return RMSPropParam{
		LR:           lr,
		Gamma1:       DefaultGamma1,
		Epsilon:      DefaultEpsilon,
		WD:           DefaultWD,
		RescaleGrad:  DefaultRescaleGrad,
		ClipGradient: DefaultClipGradient,
		ClipWeights:  DefaultClipWeights,
	}
}

// Validate rejects non-finite hyperparameters and decay rates outside [0, 1].
func (p RMSPropParam) Validate() error {
	if err := checkFinite("rmsprop", "lr", p.LR, "gamma1", p.Gamma1, "epsilon", p.Epsilon,
		"wd", p.WD, "rescale_grad", p.RescaleGrad, "clip_gradient", p.ClipGradient,
		"clip_weights", p.ClipWeights); err != nil {
		return err
	}
	return checkUnit("rmsprop", "gamma1", p.Gamma1)
}

// checkFinite takes alternating name/value pairs.
func checkFinite(rule string, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		v := float64(pairs[i+1].(float32))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidParam, "%s: %s = %v", rule, pairs[i], v)
		}
	}
	return nil
}

// checkUnit takes alternating name/value pairs and requires values in [0, 1].
func checkUnit(rule string, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		v := pairs[i+1].(float32)
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalidParam, "%s: %s = %v, want [0, 1]", rule, pairs[i], v)
		}
	}
	return nil
}

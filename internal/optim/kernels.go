package optim

import (
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/optimops/internal/tensor"
)

// Per-element update rules. Each kernel holds the hyperparameters converted
// to the element type once per call; step computes the new value of one
// element. Dense and sparse paths share these step functions, so a sparse
// update of a row is bit-identical to the dense update of the same row.

// clip clamps x to [-bound, bound].
func clip[T tensor.Real](x, bound T) T {
	if x > bound {
		return bound
	}
	if x < -bound {
		return -bound
	}
	return x
}

func sqrt[T tensor.Real](x T) T {
	return T(math.Sqrt(float64(x)))
}

// sgdKernel: w' = (1 - lr*wd)*w - lr*g.
type sgdKernel[T tensor.Real] struct {
	lr, wd, rescaleGrad, clipGradient T
}

func newSGDKernel[T tensor.Real](p SGDParam) sgdKernel[T] {
	return sgdKernel[T]{
		lr:           T(p.LR),
		wd:           T(p.WD),
		rescaleGrad:  T(p.RescaleGrad),
		clipGradient: T(p.ClipGradient),
	}
}

func (k sgdKernel[T]) step(w, grad T) T {
	if k.clipGradient >= 0 {
		return (1-k.lr*k.wd)*w - k.lr*clip(k.rescaleGrad*grad, k.clipGradient)
	}
	return (1-k.lr*k.wd)*w - (k.lr*k.rescaleGrad)*grad
}

// sgdMomKernel: m' = momentum*m - lr*wd*w - lr*g; w' = w + m'.
type sgdMomKernel[T tensor.Real] struct {
	momentum, lr, wd, rescaleGrad, clipGradient T
}

func newSGDMomKernel[T tensor.Real](p SGDMomParam) sgdMomKernel[T] {
	return sgdMomKernel[T]{
		momentum:     T(p.Momentum),
		lr:           T(p.LR),
		wd:           T(p.WD),
		rescaleGrad:  T(p.RescaleGrad),
		clipGradient: T(p.ClipGradient),
	}
}

func (k sgdMomKernel[T]) step(w, grad, mom T) (newMom, newW T) {
	if k.clipGradient >= 0 {
		mom = k.momentum*mom - k.lr*k.wd*w - k.lr*clip(k.rescaleGrad*grad, k.clipGradient)
	} else {
		mom = k.momentum*mom - k.lr*k.wd*w - k.lr*k.rescaleGrad*grad
	}
	return mom, w + mom
}

// adamKernel: weight decay is folded into the gradient before clipping.
type adamKernel[T tensor.Real] struct {
	beta1, beta2                 T
	oneMinusBeta1, oneMinusBeta2 T
	lr, wd, epsilon              T
	rescaleGrad, clipGradient    T
}

func newAdamKernel[T tensor.Real](p AdamParam) adamKernel[T] {
	return adamKernel[T]{
		beta1:         T(p.Beta1),
		beta2:         T(p.Beta2),
		oneMinusBeta1: T(1 - p.Beta1),
		oneMinusBeta2: T(1 - p.Beta2),
		lr:            T(p.LR),
		wd:            T(p.WD),
		epsilon:       T(p.Epsilon),
		rescaleGrad:   T(p.RescaleGrad),
		clipGradient:  T(p.ClipGradient),
	}
}

func (k adamKernel[T]) step(w, grad, mean, variance T) (newMean, newVar, newW T) {
	g := grad*k.rescaleGrad + w*k.wd
	if k.clipGradient >= 0 {
		g = clip(g, k.clipGradient)
	}
	mean = k.beta1*mean + k.oneMinusBeta1*g
	variance = k.beta2*variance + k.oneMinusBeta2*g*g
	return mean, variance, w - k.lr*mean/(sqrt(variance)+k.epsilon)
}

// rmspropAlexKernel follows Graves (2013), Eq. 38–45.
type rmspropAlexKernel[T tensor.Real] struct {
	gamma1, oneMinusGamma1, gamma2 T
	lr, wd, epsilon                T
	rescaleGrad, clipGradient      T
	clipWeights                    T
}

func newRMSPropAlexKernel[T tensor.Real](p RMSPropAlexParam) rmspropAlexKernel[T] {
	return rmspropAlexKernel[T]{
		gamma1:         T(p.Gamma1),
		oneMinusGamma1: T(1 - p.Gamma1),
		gamma2:         T(p.Gamma2),
		lr:             T(p.LR),
		wd:             T(p.WD),
		epsilon:        T(p.Epsilon),
		rescaleGrad:    T(p.RescaleGrad),
		clipGradient:   T(p.ClipGradient),
		clipWeights:    T(p.ClipWeights),
	}
}

func (k rmspropAlexKernel[T]) step(w, grad, n, gAvg, delta T) (newN, newGAvg, newDelta, newW T) {
	g := grad*k.rescaleGrad + w*k.wd
	if k.clipGradient >= 0 {
		g = clip(g, k.clipGradient)
	}
	n = k.oneMinusGamma1*g*g + k.gamma1*n
	gAvg = k.oneMinusGamma1*g + k.gamma1*gAvg
	delta = k.gamma2*delta - k.lr*(g/sqrt(n-gAvg*gAvg+k.epsilon))
	w += delta
	if k.clipWeights >= 0 {
		w = clip(w, k.clipWeights)
	}
	return n, gAvg, delta, w
}

// rmspropKernel follows Tieleman & Hinton (2012).
type rmspropKernel[T tensor.Real] struct {
	gamma1, oneMinusGamma1    T
	lr, wd, epsilon           T
	rescaleGrad, clipGradient T
	clipWeights               T
}

func newRMSPropKernel[T tensor.Real](p RMSPropParam) rmspropKernel[T] {
	return rmspropKernel[T]{
		gamma1:         T(p.Gamma1),
		oneMinusGamma1: T(1 - p.Gamma1),
		lr:             T(p.LR),
		wd:             T(p.WD),
		epsilon:        T(p.Epsilon),
		rescaleGrad:    T(p.RescaleGrad),
		clipGradient:   T(p.ClipGradient),
		clipWeights:    T(p.ClipWeights),
	}
}

func (k rmspropKernel[T]) step(w, grad, n T) (newN, newW T) {
	g := grad*k.rescaleGrad + w*k.wd
	if k.clipGradient >= 0 {
		g = clip(g, k.clipGradient)
	}
	n = k.oneMinusGamma1*g*g + k.gamma1*n
	w -= k.lr * (g / sqrt(n+k.epsilon))
	if k.clipWeights >= 0 {
		w = clip(w, k.clipWeights)
	}
	return n, w
}

// element is the set of weight types the update kernels store.
type element interface {
	float16.Float16 | float32 | float64
}

// precision converts between a stored element type S and the type C a
// kernel computes in. float16 weights compute in float32.
type precision[S element, C tensor.Real] struct {
	widen  func(S) C
	narrow func(C) S
}

func exact[T tensor.Real]() precision[T, T] {
	id := func(x T) T { return x }
	return precision[T, T]{widen: id, narrow: id}
}

var (
	halfPrecision   = precision[float16.Float16, float32]{widen: float16.Float16.Float32, narrow: float16.Fromfloat32}
	singlePrecision = exact[float32]()
	doublePrecision = exact[float64]()
	// doubleAsSingle serves float64 weights in the mixed-precision rules,
	// which always compute in float32.
	doubleAsSingle = precision[float64, float32]{
		widen:  func(x float64) float32 { return float32(x) },
		narrow: func(x float32) float64 { return float64(x) },
	}
)

// assign stores the result v into out[i] according to req.
func (pr precision[S, C]) assign(out []S, i int, req OpReq, v C) {
	switch req {
	case WriteTo, WriteInplace:
		out[i] = pr.narrow(v)
	case AddTo:
		out[i] = pr.narrow(pr.widen(out[i]) + v)
	}
}

// isZero reports whether every element of row is exactly zero.
func (pr precision[S, C]) isZero(row []S) bool {
	for _, v := range row {
		if pr.widen(v) != 0 {
			return false
		}
	}
	return true
}

package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optimops/internal/tensor"
)

// Dense entry points. Every operand is a dense tensor with the weight's
// shape; the kernel runs once per flattened element. State tensors are
// updated in place and out is written according to req.

// SGDUpdate performs w' = (1 - lr*wd)*w - lr*clip(rescale_grad*grad).
func (e *Engine) SGDUpdate(p SGDParam, weight, grad *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "sgd_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperands(op, shape, dtype, operand{"grad", grad}, operand{"out", out}); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	return dispatchFloat(op, dtype,
		func() { sgdDense(e, newSGDKernel[float32](p), halfPrecision, weight, grad, req, out) },
		func() { sgdDense(e, newSGDKernel[float32](p), singlePrecision, weight, grad, req, out) },
		func() { sgdDense(e, newSGDKernel[float64](p), doublePrecision, weight, grad, req, out) })
}

func sgdDense[S element, C tensor.Real](e *Engine, k sgdKernel[C], pr precision[S, C], weight, grad *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	w, g, o := tensor.Values[S](weight), tensor.Values[S](grad), tensor.Values[S](out)
	e.launch(len(w), func(i int) {
		pr.assign(o, i, req, k.step(pr.widen(w[i]), pr.widen(g[i])))
	})
}

// SGDMomUpdate performs the momentum update
//
//	mom = momentum*mom - lr*wd*w - lr*clip(rescale_grad*grad)
//	w'  = w + mom
func (e *Engine) SGDMomUpdate(p SGDMomParam, weight, grad, mom *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "sgd_mom_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperands(op, shape, dtype, operand{"grad", grad}, operand{"mom", mom}, operand{"out", out}); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	return dispatchFloat(op, dtype,
		func() { sgdMomDense(e, newSGDMomKernel[float32](p), halfPrecision, weight, grad, mom, req, out) },
		func() { sgdMomDense(e, newSGDMomKernel[float32](p), singlePrecision, weight, grad, mom, req, out) },
		func() { sgdMomDense(e, newSGDMomKernel[float64](p), doublePrecision, weight, grad, mom, req, out) })
}

func sgdMomDense[S element, C tensor.Real](e *Engine, k sgdMomKernel[C], pr precision[S, C], weight, grad, mom *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	w, g, m, o := tensor.Values[S](weight), tensor.Values[S](grad), tensor.Values[S](mom), tensor.Values[S](out)
	e.launch(len(w), func(i int) {
		nextMom, next := k.step(pr.widen(w[i]), pr.widen(g[i]), pr.widen(m[i]))
		m[i] = pr.narrow(nextMom)
		pr.assign(o, i, req, next)
	})
}

// MPSGDUpdate is SGDUpdate for low-precision weights with a float32 master
// copy. weight32 is updated in float32 and out receives its cast; weight
// itself only fixes the shape and element type.
func (e *Engine) MPSGDUpdate(p SGDParam, weight, grad, weight32 *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "mp_sgd_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperand(op, "grad", grad, shape, dtype); err != nil {
		return err
	}
	if err := checkOperand(op, "weight32", weight32, shape, tensor.Float32); err != nil {
		return err
	}
	if err := checkOperand(op, "out", out, shape, dtype); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	k := newSGDKernel[float32](p)
	switch dtype {
	case tensor.Float16:
		mpSGDDense(e, k, halfPrecision, grad, weight32, req, out)
	case tensor.Float32:
		mpSGDDense(e, k, singlePrecision, grad, weight32, req, out)
	case tensor.Float64:
		mpSGDDense(e, k, doubleAsSingle, grad, weight32, req, out)
	default:
		return errors.Wrapf(ErrDTypeMismatch, "%s: unsupported weight dtype %s", op, dtype)
	}
	return nil
}

func mpSGDDense[S element](e *Engine, k sgdKernel[float32], pr precision[S, float32], grad, weight32 *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	g, w32, o := tensor.Values[S](grad), weight32.AsFloat32(), tensor.Values[S](out)
	e.launch(len(w32), func(i int) {
		w := k.step(w32[i], pr.widen(g[i]))
		w32[i] = w
		pr.assign(o, i, req, w)
	})
}

// MPSGDMomUpdate is SGDMomUpdate for low-precision weights with float32
// momentum and a float32 master copy of the weight.
func (e *Engine) MPSGDMomUpdate(p SGDMomParam, weight, grad, mom, weight32 *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "mp_sgd_mom_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperand(op, "grad", grad, shape, dtype); err != nil {
		return err
	}
	if err := checkOperand(op, "mom", mom, shape, tensor.Float32); err != nil {
		return err
	}
	if err := checkOperand(op, "weight32", weight32, shape, tensor.Float32); err != nil {
		return err
	}
	if err := checkOperand(op, "out", out, shape, dtype); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	k := newSGDMomKernel[float32](p)
	switch dtype {
	case tensor.Float16:
		mpSGDMomDense(e, k, halfPrecision, grad, mom, weight32, req, out)
	case tensor.Float32:
		mpSGDMomDense(e, k, singlePrecision, grad, mom, weight32, req, out)
	case tensor.Float64:
		mpSGDMomDense(e, k, doubleAsSingle, grad, mom, weight32, req, out)
	default:
		return errors.Wrapf(ErrDTypeMismatch, "%s: unsupported weight dtype %s", op, dtype)
	}
	return nil
}

func mpSGDMomDense[S element](e *Engine, k sgdMomKernel[float32], pr precision[S, float32], grad, mom, weight32 *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	g, m, w32, o := tensor.Values[S](grad), mom.AsFloat32(), weight32.AsFloat32(), tensor.Values[S](out)
	e.launch(len(w32), func(i int) {
		var w float32
		m[i], w = k.step(w32[i], pr.widen(g[i]), m[i])
		w32[i] = w
		pr.assign(o, i, req, w)
	})
}

// AdamUpdate performs the Adam update without bias correction:
//
//	g    = rescale_grad*grad + wd*w, clipped
//	mean = beta1*mean + (1-beta1)*g
//	var  = beta2*var + (1-beta2)*g²
//	w'   = w - lr*mean/(sqrt(var) + epsilon)
func (e *Engine) AdamUpdate(p AdamParam, weight, grad, mean, variance *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "adam_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperands(op, shape, dtype, operand{"grad", grad}, operand{"mean", mean}, operand{"var", variance}, operand{"out", out}); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	return dispatchFloat(op, dtype,
		func() { adamDense(e, newAdamKernel[float32](p), halfPrecision, weight, grad, mean, variance, req, out) },
		func() { adamDense(e, newAdamKernel[float32](p), singlePrecision, weight, grad, mean, variance, req, out) },
		func() { adamDense(e, newAdamKernel[float64](p), doublePrecision, weight, grad, mean, variance, req, out) })
}

func adamDense[S element, C tensor.Real](e *Engine, k adamKernel[C], pr precision[S, C], weight, grad, mean, variance *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	w, g := tensor.Values[S](weight), tensor.Values[S](grad)
	m, v, o := tensor.Values[S](mean), tensor.Values[S](variance), tensor.Values[S](out)
	e.launch(len(w), func(i int) {
		nextMean, nextVar, next := k.step(pr.widen(w[i]), pr.widen(g[i]), pr.widen(m[i]), pr.widen(v[i]))
		m[i], v[i] = pr.narrow(nextMean), pr.narrow(nextVar)
		pr.assign(o, i, req, next)
	})
}

// RMSPropAlexUpdate performs the centered RMSProp update with state n
// (squared gradient average), g (gradient average) and delta.
func (e *Engine) RMSPropAlexUpdate(p RMSPropAlexParam, weight, grad, n, g, delta *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "rmspropalex_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperands(op, shape, dtype, operand{"grad", grad}, operand{"n", n}, operand{"g", g}, operand{"delta", delta}, operand{"out", out}); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	return dispatchFloat(op, dtype,
		func() { rmspropAlexDense(e, newRMSPropAlexKernel[float32](p), halfPrecision, weight, grad, n, g, delta, req, out) },
		func() { rmspropAlexDense(e, newRMSPropAlexKernel[float32](p), singlePrecision, weight, grad, n, g, delta, req, out) },
		func() { rmspropAlexDense(e, newRMSPropAlexKernel[float64](p), doublePrecision, weight, grad, n, g, delta, req, out) })
}

func rmspropAlexDense[S element, C tensor.Real](e *Engine, k rmspropAlexKernel[C], pr precision[S, C], weight, grad, n, g, delta *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	w, gr := tensor.Values[S](weight), tensor.Values[S](grad)
	nv, gv, dv, o := tensor.Values[S](n), tensor.Values[S](g), tensor.Values[S](delta), tensor.Values[S](out)
	e.launch(len(w), func(i int) {
		nextN, nextG, nextDelta, next := k.step(pr.widen(w[i]), pr.widen(gr[i]), pr.widen(nv[i]), pr.widen(gv[i]), pr.widen(dv[i]))
		nv[i], gv[i], dv[i] = pr.narrow(nextN), pr.narrow(nextG), pr.narrow(nextDelta)
		pr.assign(o, i, req, next)
	})
}

// RMSPropUpdate performs the RMSProp update with state n (squared gradient
// average).
func (e *Engine) RMSPropUpdate(p RMSPropParam, weight, grad, n *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "rmsprop_update"
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkReq(op, req); err != nil {
		return err
	}
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkOperands(op, shape, dtype, operand{"grad", grad}, operand{"n", n}, operand{"out", out}); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	return dispatchFloat(op, dtype,
		func() { rmspropDense(e, newRMSPropKernel[float32](p), halfPrecision, weight, grad, n, req, out) },
		func() { rmspropDense(e, newRMSPropKernel[float32](p), singlePrecision, weight, grad, n, req, out) },
		func() { rmspropDense(e, newRMSPropKernel[float64](p), doublePrecision, weight, grad, n, req, out) })
}

func rmspropDense[S element, C tensor.Real](e *Engine, k rmspropKernel[C], pr precision[S, C], weight, grad, n *tensor.RawTensor, req OpReq, out *tensor.RawTensor) {
	w, g, nv, o := tensor.Values[S](weight), tensor.Values[S](grad), tensor.Values[S](n), tensor.Values[S](out)
	e.launch(len(w), func(i int) {
		nextN, next := k.step(pr.widen(w[i]), pr.widen(g[i]), pr.widen(nv[i]))
		nv[i] = pr.narrow(nextN)
		pr.assign(o, i, req, next)
	})
}

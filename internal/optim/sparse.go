package optim

import "github.com/born-ml/optimops/internal/tensor"

// Sparse execution paths. All of them update the weight in place: req must
// be WriteInplace and out must share the weight's buffer. Row-sparse weights
// and state must store every row, so their value buffers are exact dense
// views and rows can be addressed by number.

// skipSparse reports whether a row-sparse gradient update has nothing to do.
func skipSparse(grad *tensor.RowSparse, req OpReq) bool {
	return req == NullOp || !grad.StorageInitialized() || grad.NumStoredRows() == 0
}

// sgdDnsRsp updates the rows of a dense weight named by a row-sparse
// gradient. Rows absent from the gradient are left untouched, weight decay
// included.
func (e *Engine) sgdDnsRsp(p SGDParam, weight *tensor.RawTensor, grad *tensor.RowSparse, req OpReq, out *tensor.RawTensor) error {
	const op = "sgd_update"
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkSparseGrad(op, grad, shape, dtype); err != nil {
		return err
	}
	if err := checkOperand(op, "out", out, shape, dtype); err != nil {
		return err
	}
	if skipSparse(grad, req) {
		return nil
	}
	if err := checkInplace(op, req, weight, out); err != nil {
		return err
	}
	return dispatchFloat(op, dtype,
		func() { sgdDnsRspRows(e, newSGDKernel[float32](p), halfPrecision, weight, grad, out) },
		func() { sgdDnsRspRows(e, newSGDKernel[float32](p), singlePrecision, weight, grad, out) },
		func() { sgdDnsRspRows(e, newSGDKernel[float64](p), doublePrecision, weight, grad, out) })
}

func sgdDnsRspRows[S element, C tensor.Real](e *Engine, k sgdKernel[C], pr precision[S, C], weight *tensor.RawTensor, grad *tensor.RowSparse, out *tensor.RawTensor) {
	w, o := tensor.Values[S](weight), tensor.Values[S](out)
	gv, idx := tensor.Values[S](grad.Values()), grad.Indices()
	rowLength := grad.RowLength()
	e.launch(len(idx), func(i int) {
		dst, src := int(idx[i])*rowLength, i*rowLength
		for j := 0; j < rowLength; j++ {
			o[dst+j] = pr.narrow(k.step(pr.widen(w[dst+j]), pr.widen(gv[src+j])))
		}
	})
}

// sgdRspRsp runs sgdDnsRsp over the value buffer of a row-sparse weight.
func (e *Engine) sgdRspRsp(p SGDParam, weight, grad *tensor.RowSparse, req OpReq, out tensor.Array) error {
	if err := checkAllRows("sgd_update", "weight", weight); err != nil {
		return err
	}
	return e.sgdDnsRsp(p, weight.Values(), grad, req, bufferOf(out))
}

// sgdRspDns updates a row-sparse weight from a dense gradient, skipping rows
// whose gradient is entirely zero.
func (e *Engine) sgdRspDns(p SGDParam, weight *tensor.RowSparse, grad *tensor.RawTensor, req OpReq, out tensor.Array) error {
	const op = "sgd_update"
	if err := checkAllRows(op, "weight", weight); err != nil {
		return err
	}
	values := weight.Values()
	if err := checkOperand(op, "grad", grad, values.Shape(), values.DType()); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	o := bufferOf(out)
	if err := checkInplace(op, req, values, o); err != nil {
		return err
	}
	return dispatchFloat(op, values.DType(),
		func() { sgdRspDnsRows(e, newSGDKernel[float32](p), halfPrecision, values, grad, o) },
		func() { sgdRspDnsRows(e, newSGDKernel[float32](p), singlePrecision, values, grad, o) },
		func() { sgdRspDnsRows(e, newSGDKernel[float64](p), doublePrecision, values, grad, o) })
}

func sgdRspDnsRows[S element, C tensor.Real](e *Engine, k sgdKernel[C], pr precision[S, C], weight, grad, out *tensor.RawTensor) {
	w, g, o := tensor.Values[S](weight), tensor.Values[S](grad), tensor.Values[S](out)
	rows, rowLength := weight.FlatTo2D()
	e.launch(rows, func(r int) {
		off := r * rowLength
		if e.rowSkip && pr.isZero(g[off:off+rowLength]) {
			return
		}
		for j := off; j < off+rowLength; j++ {
			o[j] = pr.narrow(k.step(pr.widen(w[j]), pr.widen(g[j])))
		}
	})
}

// sgdMomDnsRspDns updates the rows of a dense weight and its dense momentum
// named by a row-sparse gradient.
func (e *Engine) sgdMomDnsRspDns(p SGDMomParam, weight *tensor.RawTensor, grad *tensor.RowSparse, mom *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "sgd_mom_update"
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkSparseGrad(op, grad, shape, dtype); err != nil {
		return err
	}
	if err := checkOperands(op, shape, dtype, operand{"mom", mom}, operand{"out", out}); err != nil {
		return err
	}
	if skipSparse(grad, req) {
		return nil
	}
	if err := checkInplace(op, req, weight, out); err != nil {
		return err
	}
	return dispatchFloat(op, dtype,
		func() { sgdMomDnsRspRows(e, newSGDMomKernel[float32](p), halfPrecision, weight, grad, mom, out) },
		func() { sgdMomDnsRspRows(e, newSGDMomKernel[float32](p), singlePrecision, weight, grad, mom, out) },
		func() { sgdMomDnsRspRows(e, newSGDMomKernel[float64](p), doublePrecision, weight, grad, mom, out) })
}

func sgdMomDnsRspRows[S element, C tensor.Real](e *Engine, k sgdMomKernel[C], pr precision[S, C], weight *tensor.RawTensor, grad *tensor.RowSparse, mom, out *tensor.RawTensor) {
	w, m, o := tensor.Values[S](weight), tensor.Values[S](mom), tensor.Values[S](out)
	gv, idx := tensor.Values[S](grad.Values()), grad.Indices()
	rowLength := grad.RowLength()
	e.launch(len(idx), func(i int) {
		dst, src := int(idx[i])*rowLength, i*rowLength
		for j := 0; j < rowLength; j++ {
			nextMom, next := k.step(pr.widen(w[dst+j]), pr.widen(gv[src+j]), pr.widen(m[dst+j]))
			m[dst+j], o[dst+j] = pr.narrow(nextMom), pr.narrow(next)
		}
	})
}

// sgdMomRspRspRsp zero-fills an uninitialized momentum and reuses
// sgdMomDnsRspDns on the value buffers.
func (e *Engine) sgdMomRspRspRsp(p SGDMomParam, weight, grad, mom *tensor.RowSparse, req OpReq, out tensor.Array) error {
	const op = "sgd_mom_update"
	if err := checkAllRows(op, "weight", weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkSparseGrad(op, grad, shape, dtype); err != nil {
		return err
	}
	if err := checkSparseState(op, "mom", mom, shape, dtype); err != nil {
		return err
	}
	if skipSparse(grad, req) {
		return nil
	}
	if err := checkInplace(op, req, weight.Values(), bufferOf(out)); err != nil {
		return err
	}
	if err := e.fillZeros(op, "mom", mom); err != nil {
		return err
	}
	return e.sgdMomDnsRspDns(p, weight.Values(), grad, mom.Values(), req, bufferOf(out))
}

// sgdMomRspDns updates a row-sparse weight and momentum from a dense
// gradient, skipping rows whose gradient is entirely zero.
func (e *Engine) sgdMomRspDns(p SGDMomParam, weight *tensor.RowSparse, grad *tensor.RawTensor, mom *tensor.RowSparse, req OpReq, out tensor.Array) error {
	const op = "sgd_mom_update"
	if err := checkAllRows(op, "weight", weight); err != nil {
		return err
	}
	values := weight.Values()
	shape, dtype := values.Shape(), values.DType()
	if err := checkOperand(op, "grad", grad, shape, dtype); err != nil {
		return err
	}
	if err := checkSparseState(op, "mom", mom, shape, dtype); err != nil {
		return err
	}
	if req == NullOp {
		return nil
	}
	o := bufferOf(out)
	if err := checkInplace(op, req, values, o); err != nil {
		return err
	}
	if err := e.fillZeros(op, "mom", mom); err != nil {
		return err
	}
	m := mom.Values()
	return dispatchFloat(op, dtype,
		func() { sgdMomRspDnsRows(e, newSGDMomKernel[float32](p), halfPrecision, values, grad, m, o) },
		func() { sgdMomRspDnsRows(e, newSGDMomKernel[float32](p), singlePrecision, values, grad, m, o) },
		func() { sgdMomRspDnsRows(e, newSGDMomKernel[float64](p), doublePrecision, values, grad, m, o) })
}

func sgdMomRspDnsRows[S element, C tensor.Real](e *Engine, k sgdMomKernel[C], pr precision[S, C], weight, grad, mom, out *tensor.RawTensor) {
	w, g := tensor.Values[S](weight), tensor.Values[S](grad)
	m, o := tensor.Values[S](mom), tensor.Values[S](out)
	rows, rowLength := weight.FlatTo2D()
	e.launch(rows, func(r int) {
		off := r * rowLength
		if e.rowSkip && pr.isZero(g[off:off+rowLength]) {
			return
		}
		for j := off; j < off+rowLength; j++ {
			nextMom, next := k.step(pr.widen(w[j]), pr.widen(g[j]), pr.widen(m[j]))
			m[j], o[j] = pr.narrow(nextMom), pr.narrow(next)
		}
	})
}

// adamDnsRspDns updates the rows of a dense weight, mean and variance named
// by a row-sparse gradient.
func (e *Engine) adamDnsRspDns(p AdamParam, weight *tensor.RawTensor, grad *tensor.RowSparse, mean, variance *tensor.RawTensor, req OpReq, out *tensor.RawTensor) error {
	const op = "adam_update"
	if err := checkWeight(op, weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkSparseGrad(op, grad, shape, dtype); err != nil {
		return err
	}
	if err := checkOperands(op, shape, dtype, operand{"mean", mean}, operand{"var", variance}, operand{"out", out}); err != nil {
		return err
	}
	if skipSparse(grad, req) {
		return nil
	}
	if err := checkInplace(op, req, weight, out); err != nil {
		return err
	}
	return dispatchFloat(op, dtype,
		func() { adamDnsRspRows(e, newAdamKernel[float32](p), halfPrecision, weight, grad, mean, variance, out) },
		func() { adamDnsRspRows(e, newAdamKernel[float32](p), singlePrecision, weight, grad, mean, variance, out) },
		func() { adamDnsRspRows(e, newAdamKernel[float64](p), doublePrecision, weight, grad, mean, variance, out) })
}

func adamDnsRspRows[S element, C tensor.Real](e *Engine, k adamKernel[C], pr precision[S, C], weight *tensor.RawTensor, grad *tensor.RowSparse, mean, variance, out *tensor.RawTensor) {
	w, o := tensor.Values[S](weight), tensor.Values[S](out)
	m, v := tensor.Values[S](mean), tensor.Values[S](variance)
	gv, idx := tensor.Values[S](grad.Values()), grad.Indices()
	rowLength := grad.RowLength()
	e.launch(len(idx), func(i int) {
		dst, src := int(idx[i])*rowLength, i*rowLength
		for j := 0; j < rowLength; j++ {
			nextMean, nextVar, next := k.step(pr.widen(w[dst+j]), pr.widen(gv[src+j]), pr.widen(m[dst+j]), pr.widen(v[dst+j]))
			m[dst+j], v[dst+j], o[dst+j] = pr.narrow(nextMean), pr.narrow(nextVar), pr.narrow(next)
		}
	})
}

// adamRspRspRsp zero-fills uninitialized mean and variance and reuses
// adamDnsRspDns on the value buffers.
func (e *Engine) adamRspRspRsp(p AdamParam, weight, grad, mean, variance *tensor.RowSparse, req OpReq, out tensor.Array) error {
	const op = "adam_update"
	if err := checkAllRows(op, "weight", weight); err != nil {
		return err
	}
	shape, dtype := weight.Shape(), weight.DType()
	if err := checkSparseGrad(op, grad, shape, dtype); err != nil {
		return err
	}
	if err := checkSparseState(op, "mean", mean, shape, dtype); err != nil {
		return err
	}
	if err := checkSparseState(op, "var", variance, shape, dtype); err != nil {
		return err
	}
	if skipSparse(grad, req) {
		return nil
	}
	if err := checkInplace(op, req, weight.Values(), bufferOf(out)); err != nil {
		return err
	}
	if err := e.fillZeros(op, "mean", mean); err != nil {
		return err
	}
	if err := e.fillZeros(op, "var", variance); err != nil {
		return err
	}
	return e.adamDnsRspDns(p, weight.Values(), grad, mean.Values(), variance.Values(), req, bufferOf(out))
}

package optim_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optimops/internal/optim"
	"github.com/born-ml/optimops/internal/parallel"
	"github.com/born-ml/optimops/internal/tensor"
)

func debugEngine(buf *bytes.Buffer) *optim.Engine {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return optim.NewEngine(optim.EngineConfig{Launcher: parallel.Sequential{}, Logger: logger})
}

func TestDispatch_DenseOperands(t *testing.T) {
	var buf bytes.Buffer
	e := debugEngine(&buf)
	w := tensor.Dense(dense(t, tensor.Shape{2}, 1, 2))
	g := tensor.Dense(dense(t, tensor.Shape{2}, 0.1, 0.2))

	require.NoError(t, e.SGDUpdateEx(optim.NewSGDParam(0.1), w, g, optim.WriteInplace, w))
	assertApprox(t, []float32{0.99, 1.98}, w.Raw().AsFloat32(), 1e-6)
	assert.Empty(t, buf.String(), "dense operands must not fall back")
}

func TestDispatch_FallbackMatchesDense(t *testing.T) {
	n := sparseShape.NumElements()
	w0 := random(1, n)
	grad := sparseGrad(t)
	gradDense := densify(t, grad)

	t.Run("sgd_mom dense weight", func(t *testing.T) {
		var buf bytes.Buffer
		e := debugEngine(&buf)
		p := optim.SGDMomParam{LR: 0.1, Momentum: 0.9, WD: 0.05, RescaleGrad: 1, ClipGradient: -1}

		ref, refMom := dense(t, sparseShape, w0...), zeros(t, sparseShape)
		require.NoError(t, e.SGDMomUpdate(p, ref, gradDense, refMom, optim.WriteInplace, ref))

		w := tensor.Dense(dense(t, sparseShape, w0...))
		mom := tensor.Dense(zeros(t, sparseShape))
		require.NoError(t, e.SGDMomUpdateEx(p, w, tensor.Sparse(grad), mom, optim.WriteInplace, w))

		assert.Equal(t, ref.AsFloat32(), w.Raw().AsFloat32())
		assert.Equal(t, refMom.AsFloat32(), mom.Raw().AsFloat32())
		assert.Contains(t, buf.String(), "storage fallback")
		assert.Contains(t, buf.String(), "grad=row_sparse")
	})

	t.Run("adam dense weight", func(t *testing.T) {
		e := sequentialEngine()
		p := optim.NewAdamParam(0.01)

		ref := dense(t, sparseShape, w0...)
		refMean, refVar := zeros(t, sparseShape), zeros(t, sparseShape)
		require.NoError(t, e.AdamUpdate(p, ref, gradDense, refMean, refVar, optim.WriteInplace, ref))

		w := tensor.Dense(dense(t, sparseShape, w0...))
		mean, variance := tensor.Dense(zeros(t, sparseShape)), tensor.Dense(zeros(t, sparseShape))
		require.NoError(t, e.AdamUpdateEx(p, w, tensor.Sparse(grad), mean, variance, optim.WriteInplace, w))

		assert.Equal(t, ref.AsFloat32(), w.Raw().AsFloat32())
		assert.Equal(t, refVar.AsFloat32(), variance.Raw().AsFloat32())
	})

	t.Run("rmsprop row-sparse weight", func(t *testing.T) {
		var buf bytes.Buffer
		e := debugEngine(&buf)
		p := optim.NewRMSPropParam(0.01)

		ref, refN := dense(t, sparseShape, w0...), zeros(t, sparseShape)
		require.NoError(t, e.RMSPropUpdate(p, ref, gradDense, refN, optim.WriteInplace, ref))

		w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		nState := uninitialized(t, sparseShape)
		require.NoError(t, e.RMSPropUpdateEx(p, w, tensor.Sparse(grad), tensor.Sparse(nState), optim.WriteInplace, w))

		assert.Equal(t, ref.AsFloat32(), w.RowSparse().Values().AsFloat32())
		require.True(t, nState.AllRowsPresent())
		assert.Equal(t, refN.AsFloat32(), nState.Values().AsFloat32())
		assert.Contains(t, buf.String(), "weight=row_sparse")
	})

	t.Run("rmspropalex write to dense out", func(t *testing.T) {
		e := sequentialEngine()
		p := optim.NewRMSPropAlexParam(0.01)

		ref := dense(t, sparseShape, w0...)
		refOut := zeros(t, sparseShape)
		refN, refG, refD := zeros(t, sparseShape), zeros(t, sparseShape), zeros(t, sparseShape)
		require.NoError(t, e.RMSPropAlexUpdate(p, ref, gradDense, refN, refG, refD, optim.WriteTo, refOut))

		w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		out := tensor.Dense(zeros(t, sparseShape))
		nState := tensor.Sparse(uninitialized(t, sparseShape))
		gState := tensor.Sparse(uninitialized(t, sparseShape))
		dState := tensor.Sparse(uninitialized(t, sparseShape))
		require.NoError(t, e.RMSPropAlexUpdateEx(p, w, tensor.Sparse(grad), nState, gState, dState, optim.WriteTo, out))

		assert.Equal(t, refOut.AsFloat32(), out.Raw().AsFloat32())
		assert.Equal(t, w0, w.RowSparse().Values().AsFloat32(), "WriteTo must leave the weight alone")
		assert.Equal(t, refD.AsFloat32(), dState.RowSparse().Values().AsFloat32())
	})
}

func TestDispatch_FallbackNullOp(t *testing.T) {
	var buf bytes.Buffer
	e := debugEngine(&buf)
	w := tensor.Sparse(allRows(t, dense(t, tensor.Shape{2, 1}, 1, 2)))
	nState := uninitialized(t, tensor.Shape{2, 1})

	err := e.RMSPropUpdateEx(optim.NewRMSPropParam(0.1), w, tensor.Sparse(uninitialized(t, tensor.Shape{2, 1})),
		tensor.Sparse(nState), optim.NullOp, w)
	require.NoError(t, err)
	assert.False(t, nState.StorageInitialized())
	assert.Empty(t, buf.String())
}

func TestDispatch_LazyFillLogged(t *testing.T) {
	var buf bytes.Buffer
	e := debugEngine(&buf)
	w := tensor.Sparse(allRows(t, dense(t, sparseShape, random(1, sparseShape.NumElements())...)))

	err := e.SGDMomUpdateEx(optim.NewSGDMomParam(0.1, 0.9), w, tensor.Sparse(sparseGrad(t)),
		tensor.Sparse(uninitialized(t, sparseShape)), optim.WriteInplace, w)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "materializing row-sparse state")
	assert.Contains(t, buf.String(), "operand=mom")
}

func TestDispatch_MixedPrecisionDense(t *testing.T) {
	w16 := half(t, tensor.Shape{2}, 1, 2)
	g16 := half(t, tensor.Shape{2}, 0.5, 0.5)
	w32 := dense(t, tensor.Shape{2}, 1, 2)

	require.NoError(t, sequentialEngine().MPSGDUpdateEx(optim.NewSGDParam(0.1),
		tensor.Dense(w16), tensor.Dense(g16), tensor.Dense(w32), optim.WriteInplace, tensor.Dense(w16)))
	assertApprox(t, []float32{0.95, 1.95}, w32.AsFloat32(), 1e-6)
	assert.InDelta(t, 0.95, w16.AsFloat16()[0].Float32(), 1e-3)
}

package optim_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optimops/internal/optim"
	"github.com/born-ml/optimops/internal/tensor"
)

var (
	sparseShape = tensor.Shape{6, 3}
	touched     = []int64{4, 1}
)

func isTouched(r int) bool {
	for _, idx := range touched {
		if int(idx) == r {
			return true
		}
	}
	return false
}

func sparseGrad(t *testing.T) *tensor.RowSparse {
	return rowSparse(t, sparseShape, touched, random(7, len(touched)*sparseShape.RowLength())...)
}

// assertRows checks that got matches want on touched rows and orig elsewhere.
func assertRows(t *testing.T, orig []float32, want, got *tensor.RawTensor) {
	t.Helper()
	origT := dense(t, sparseShape, orig...)
	for r := 0; r < sparseShape.Rows(); r++ {
		if isTouched(r) {
			assert.Equal(t, row(want, r), row(got, r), "row %d", r)
		} else {
			assert.Equal(t, row(origT, r), row(got, r), "untouched row %d", r)
		}
	}
}

func TestSGDUpdateEx_SparseMatchesDense(t *testing.T) {
	e := sequentialEngine()
	p := optim.SGDParam{LR: 0.1, WD: 0.01, RescaleGrad: 1, ClipGradient: 0.3}
	w0 := random(1, sparseShape.NumElements())
	grad := sparseGrad(t)

	ref := dense(t, sparseShape, w0...)
	require.NoError(t, e.SGDUpdate(p, ref, densify(t, grad), optim.WriteInplace, ref))

	t.Run("dense weight", func(t *testing.T) {
		w := tensor.Dense(dense(t, sparseShape, w0...))
		require.NoError(t, e.SGDUpdateEx(p, w, tensor.Sparse(grad), optim.WriteInplace, w))
		assertRows(t, w0, ref, w.Raw())
	})

	t.Run("row-sparse weight", func(t *testing.T) {
		w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		require.NoError(t, e.SGDUpdateEx(p, w, tensor.Sparse(grad), optim.WriteInplace, w))
		assertRows(t, w0, ref, w.RowSparse().Values())
	})
}

func TestSGDMomUpdateEx_SparseMatchesDense(t *testing.T) {
	e := sequentialEngine()
	p := optim.SGDMomParam{LR: 0.1, Momentum: 0.9, WD: 0.01, RescaleGrad: 1, ClipGradient: -1}
	n := sparseShape.NumElements()
	w0, m0 := random(1, n), random(3, n)
	grad := sparseGrad(t)

	ref, refMom := dense(t, sparseShape, w0...), dense(t, sparseShape, m0...)
	require.NoError(t, e.SGDMomUpdate(p, ref, densify(t, grad), refMom, optim.WriteInplace, ref))

	w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
	mom := allRows(t, dense(t, sparseShape, m0...))
	require.NoError(t, e.SGDMomUpdateEx(p, w, tensor.Sparse(grad), tensor.Sparse(mom), optim.WriteInplace, w))

	assertRows(t, w0, ref, w.RowSparse().Values())
	assertRows(t, m0, refMom, mom.Values())
}

func TestAdamUpdateEx_SparseMatchesDense(t *testing.T) {
	e := sequentialEngine()
	p := optim.NewAdamParam(0.01)
	p.WD = 0.001
	n := sparseShape.NumElements()
	w0, m0, v0 := random(1, n), random(3, n), random(4, n)
	for i := range v0 {
		v0[i] = float32(math.Abs(float64(v0[i])))
	}
	grad := sparseGrad(t)

	ref := dense(t, sparseShape, w0...)
	refMean, refVar := dense(t, sparseShape, m0...), dense(t, sparseShape, v0...)
	require.NoError(t, e.AdamUpdate(p, ref, densify(t, grad), refMean, refVar, optim.WriteInplace, ref))

	w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
	mean := allRows(t, dense(t, sparseShape, m0...))
	variance := allRows(t, dense(t, sparseShape, v0...))
	err := e.AdamUpdateEx(p, w, tensor.Sparse(grad), tensor.Sparse(mean), tensor.Sparse(variance), optim.WriteInplace, w)
	require.NoError(t, err)

	assertRows(t, w0, ref, w.RowSparse().Values())
	assertRows(t, m0, refMean, mean.Values())
	assertRows(t, v0, refVar, variance.Values())
}

func TestSparseUpdate_LazyZeroFill(t *testing.T) {
	e := sequentialEngine()
	n := sparseShape.NumElements()
	w0 := random(1, n)
	grad := sparseGrad(t)

	t.Run("sgd_mom", func(t *testing.T) {
		p := optim.NewSGDMomParam(0.1, 0.9)

		lazyW := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		lazyMom := uninitialized(t, sparseShape)
		require.NoError(t, e.SGDMomUpdateEx(p, lazyW, tensor.Sparse(grad), tensor.Sparse(lazyMom), optim.WriteInplace, lazyW))

		filledW := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		filledMom := uninitialized(t, sparseShape)
		require.NoError(t, filledMom.FillZeros())
		require.NoError(t, e.SGDMomUpdateEx(p, filledW, tensor.Sparse(grad), tensor.Sparse(filledMom), optim.WriteInplace, filledW))

		assert.True(t, lazyMom.StorageInitialized())
		assert.True(t, lazyMom.AllRowsPresent())
		assert.Equal(t, filledW.RowSparse().Values().AsFloat32(), lazyW.RowSparse().Values().AsFloat32())
		assert.Equal(t, filledMom.Values().AsFloat32(), lazyMom.Values().AsFloat32())
	})

	t.Run("adam", func(t *testing.T) {
		p := optim.NewAdamParam(0.01)

		lazyW := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		lazyMean, lazyVar := uninitialized(t, sparseShape), uninitialized(t, sparseShape)
		err := e.AdamUpdateEx(p, lazyW, tensor.Sparse(grad), tensor.Sparse(lazyMean), tensor.Sparse(lazyVar), optim.WriteInplace, lazyW)
		require.NoError(t, err)

		filledW := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
		filledMean := allRows(t, zeros(t, sparseShape))
		filledVar := allRows(t, zeros(t, sparseShape))
		err = e.AdamUpdateEx(p, filledW, tensor.Sparse(grad), tensor.Sparse(filledMean), tensor.Sparse(filledVar), optim.WriteInplace, filledW)
		require.NoError(t, err)

		assert.Equal(t, filledW.RowSparse().Values().AsFloat32(), lazyW.RowSparse().Values().AsFloat32())
		assert.Equal(t, filledMean.Values().AsFloat32(), lazyMean.Values().AsFloat32())
		assert.Equal(t, filledVar.Values().AsFloat32(), lazyVar.Values().AsFloat32())
	})
}

func TestSGDMomUpdateEx_RowTwoOfFive(t *testing.T) {
	shape := tensor.Shape{5, 2}
	w0 := []float32{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}
	w := tensor.Sparse(allRows(t, dense(t, shape, w0...)))
	mom := uninitialized(t, shape)
	grad := rowSparse(t, shape, []int64{2}, 0.5, -1)
	p := optim.NewSGDMomParam(0.1, 0.9)

	require.NoError(t, sequentialEngine().SGDMomUpdateEx(p, w, tensor.Sparse(grad), tensor.Sparse(mom), optim.WriteInplace, w))

	got, gotMom := w.RowSparse().Values(), mom.Values()
	for _, r := range []int{0, 1, 3, 4} {
		assert.Equal(t, w0[2*r:2*r+2], row(got, r), "weight row %d", r)
		assert.Equal(t, []float32{0, 0}, row(gotMom, r), "mom row %d", r)
	}
	// mom = 0.9*0 - 0.1*0*w - 0.1*g; w = w + mom
	assertApprox(t, []float32{-0.05, 0.1}, row(gotMom, 2), 1e-7)
	assertApprox(t, []float32{2.95, 3.1}, row(got, 2), 1e-6)
}

func TestSparseUpdate_RowSkipTransparent(t *testing.T) {
	n := sparseShape.NumElements()
	w0 := random(1, n)
	g0 := random(2, n)
	rowLength := sparseShape.RowLength()
	for _, r := range []int{0, 3} {
		for j := 0; j < rowLength; j++ {
			g0[r*rowLength+j] = 0
		}
	}
	g0[3*rowLength] = float32(math.Copysign(0, -1))

	skip := sequentialEngine()
	noSkip := optim.NewEngine(optim.EngineConfig{Launcher: pooled(), DisableRowSkip: true})

	t.Run("sgd", func(t *testing.T) {
		p := optim.NewSGDParam(0.1)
		run := func(e *optim.Engine) []float32 {
			w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
			require.NoError(t, e.SGDUpdateEx(p, w, tensor.Dense(dense(t, sparseShape, g0...)), optim.WriteInplace, w))
			return w.RowSparse().Values().AsFloat32()
		}
		got := run(skip)
		assert.Equal(t, run(noSkip), got)
		assert.Equal(t, w0[:rowLength], got[:rowLength])
	})

	t.Run("sgd_mom", func(t *testing.T) {
		p := optim.NewSGDMomParam(0.1, 0.9)
		run := func(e *optim.Engine) ([]float32, []float32) {
			w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
			mom := uninitialized(t, sparseShape)
			err := e.SGDMomUpdateEx(p, w, tensor.Dense(dense(t, sparseShape, g0...)), tensor.Sparse(mom), optim.WriteInplace, w)
			require.NoError(t, err)
			return w.RowSparse().Values().AsFloat32(), mom.Values().AsFloat32()
		}
		w1, m1 := run(skip)
		w2, m2 := run(noSkip)
		assert.Equal(t, w2, w1)
		assert.Equal(t, m2, m1)
	})
}

func TestSparseUpdate_NoOps(t *testing.T) {
	e := sequentialEngine()
	w0 := random(1, sparseShape.NumElements())
	p := optim.NewSGDMomParam(0.1, 0.9)

	empty, err := tensor.RowSparseFromRows(sparseShape, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		grad *tensor.RowSparse
		req  optim.OpReq
	}{
		{"uninitialized grad", uninitialized(t, sparseShape), optim.WriteInplace},
		{"empty grad", empty, optim.WriteInplace},
		{"null op", sparseGrad(t), optim.NullOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tensor.Sparse(allRows(t, dense(t, sparseShape, w0...)))
			mom := uninitialized(t, sparseShape)
			require.NoError(t, e.SGDMomUpdateEx(p, w, tensor.Sparse(tt.grad), tensor.Sparse(mom), tt.req, w))
			assert.Equal(t, w0, w.RowSparse().Values().AsFloat32())
			assert.False(t, mom.StorageInitialized())

			dw := dense(t, sparseShape, w0...)
			require.NoError(t, e.SGDUpdateEx(optim.NewSGDParam(0.1), tensor.Dense(dw), tensor.Sparse(tt.grad), tt.req, tensor.Dense(dw)))
			assert.Equal(t, w0, dw.AsFloat32())
		})
	}
}

func TestSparseUpdate_Preconditions(t *testing.T) {
	e := sequentialEngine()
	n := sparseShape.NumElements()
	weight := func() tensor.Array { return tensor.Sparse(allRows(t, dense(t, sparseShape, random(1, n)...))) }
	grad := tensor.Sparse(sparseGrad(t))
	sgd := optim.NewSGDParam(0.1)
	mom := optim.NewSGDMomParam(0.1, 0.9)
	adam := optim.NewAdamParam(0.01)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"write mode", func() error {
			w := weight()
			return e.SGDUpdateEx(sgd, w, grad, optim.WriteTo, w)
		}, optim.ErrWriteMode},
		{"add mode dense grad", func() error {
			w := weight()
			return e.SGDUpdateEx(sgd, w, tensor.Dense(zeros(t, sparseShape)), optim.AddTo, w)
		}, optim.ErrWriteMode},
		{"out not aliasing weight", func() error {
			return e.SGDUpdateEx(sgd, weight(), grad, optim.WriteInplace, weight())
		}, optim.ErrNotInplace},
		{"weight missing rows", func() error {
			w := tensor.Sparse(rowSparse(t, sparseShape, []int64{0, 2}, random(1, 6)...))
			return e.SGDUpdateEx(sgd, w, grad, optim.WriteInplace, w)
		}, optim.ErrMissingRows},
		{"state missing rows", func() error {
			w := weight()
			m := tensor.Sparse(rowSparse(t, sparseShape, []int64{1}, 0, 0, 0))
			return e.SGDMomUpdateEx(mom, w, grad, m, optim.WriteInplace, w)
		}, optim.ErrMissingRows},
		{"state storage", func() error {
			w := weight()
			return e.SGDMomUpdateEx(mom, w, grad, tensor.Dense(zeros(t, sparseShape)), optim.WriteInplace, w)
		}, optim.ErrStorageMismatch},
		{"grad shape", func() error {
			w := weight()
			g := tensor.Sparse(rowSparse(t, tensor.Shape{4, 3}, []int64{1}, 1, 1, 1))
			return e.SGDUpdateEx(sgd, w, g, optim.WriteInplace, w)
		}, optim.ErrShapeMismatch},
		{"grad dtype", func() error {
			w := weight()
			values, err := tensor.FromSlice([]float64{1, 1, 1}, tensor.Shape{1, 3})
			require.NoError(t, err)
			g, err := tensor.RowSparseFromRows(sparseShape, []int64{5}, values)
			require.NoError(t, err)
			return e.SGDUpdateEx(sgd, w, tensor.Sparse(g), optim.WriteInplace, w)
		}, optim.ErrDTypeMismatch},
		{"adam dense grad", func() error {
			w := weight()
			return e.AdamUpdateEx(adam, w, tensor.Dense(zeros(t, sparseShape)),
				tensor.Sparse(uninitialized(t, sparseShape)), tensor.Sparse(uninitialized(t, sparseShape)), optim.WriteInplace, w)
		}, optim.ErrUnsupportedStorage},
		{"adam dense out", func() error {
			w := weight()
			return e.AdamUpdateEx(adam, w, grad,
				tensor.Sparse(uninitialized(t, sparseShape)), tensor.Sparse(uninitialized(t, sparseShape)), optim.WriteInplace,
				tensor.Dense(w.RowSparse().Values()))
		}, optim.ErrUnsupportedStorage},
		{"missing operand", func() error {
			w := weight()
			return e.SGDUpdateEx(sgd, w, tensor.Array{}, optim.WriteInplace, w)
		}, optim.ErrMissingOperand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}
}

func TestAdamUpdateEx_StorageError(t *testing.T) {
	w := tensor.Sparse(allRows(t, zeros(t, sparseShape)))
	err := sequentialEngine().AdamUpdateEx(optim.NewAdamParam(0.01), w, tensor.Dense(zeros(t, sparseShape)),
		tensor.Sparse(uninitialized(t, sparseShape)), tensor.Sparse(uninitialized(t, sparseShape)), optim.WriteInplace, w)

	var storageErr *optim.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "adam_update", storageErr.Op)
	assert.Equal(t, []string{"weight", "grad", "mean", "var", "out"}, storageErr.Operands)
	assert.Contains(t, err.Error(), "grad.stype = dense")
}

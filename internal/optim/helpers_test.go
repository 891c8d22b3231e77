package optim_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/optimops/internal/optim"
	"github.com/born-ml/optimops/internal/parallel"
	"github.com/born-ml/optimops/internal/tensor"
)

func sequentialEngine() *optim.Engine {
	return optim.NewEngine(optim.EngineConfig{Launcher: parallel.Sequential{}})
}

// pooled returns a launcher that splits even tiny index ranges across
// goroutines.
func pooled() parallel.Launcher {
	return parallel.New(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})
}

func dense(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return r
}

// half builds a float16 tensor from float32 values.
func half(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	h := make([]float16.Float16, len(data))
	for i, v := range data {
		h[i] = float16.Fromfloat32(v)
	}
	r, err := tensor.FromSlice(h, shape)
	require.NoError(t, err)
	return r
}

func zeros(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.Zeros(shape, tensor.Float32)
	require.NoError(t, err)
	return r
}

// random returns n values in [-1, 1) from a fixed seed.
func random(seed uint64, n int) []float32 {
	rng := rand.New(rand.NewPCG(seed, 42))
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func rowSparse(t *testing.T, shape tensor.Shape, rows []int64, data ...float32) *tensor.RowSparse {
	t.Helper()
	values := dense(t, shape.WithRows(len(rows)), data...)
	rs, err := tensor.RowSparseFromRows(shape, rows, values)
	require.NoError(t, err)
	return rs
}

func allRows(t *testing.T, d *tensor.RawTensor) *tensor.RowSparse {
	t.Helper()
	rs, err := tensor.AllRows(d)
	require.NoError(t, err)
	return rs
}

func uninitialized(t *testing.T, shape tensor.Shape) *tensor.RowSparse {
	t.Helper()
	rs, err := tensor.NewRowSparse(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return rs
}

// densify returns the dense equivalent of a row-sparse tensor.
func densify(t *testing.T, rs *tensor.RowSparse) *tensor.RawTensor {
	t.Helper()
	d, err := rs.ToDense()
	require.NoError(t, err)
	return d
}

func widen(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func assertApprox(t *testing.T, want, got []float32, tol float64) {
	t.Helper()
	assert.Truef(t, floats.EqualApprox(widen(want), widen(got), tol), "want %v, got %v", want, got)
}

// row returns row r of a 2-D float32 tensor.
func row(d *tensor.RawTensor, r int) []float32 {
	_, n := d.FlatTo2D()
	return d.AsFloat32()[r*n : (r+1)*n]
}

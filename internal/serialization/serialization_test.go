package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/optimops/internal/tensor"
)

func mustRaw[T tensor.Element](t *testing.T, shape tensor.Shape, data ...T) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return r
}

func roundTrip(t *testing.T, arrays map[string]tensor.Array, meta map[string]string) (map[string]tensor.Array, map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, arrays, meta))
	got, gotMeta, err := Read(&buf)
	require.NoError(t, err)
	return got, gotMeta
}

func TestRoundTrip_Dense(t *testing.T) {
	weight := mustRaw[float32](t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	half := mustRaw(t, tensor.Shape{2}, float16.Fromfloat32(0.5), float16.Fromfloat32(-2))
	wide := mustRaw[float64](t, tensor.Shape{1}, 3.25)

	got, meta := roundTrip(t, map[string]tensor.Array{
		"layer.0.weight": tensor.Dense(weight),
		"layer.0.half":   tensor.Dense(half),
		"scale":          tensor.Dense(wide),
	}, map[string]string{"step": "100"})

	require.Len(t, got, 3)
	assert.Equal(t, weight.AsFloat32(), got["layer.0.weight"].Raw().AsFloat32())
	assert.True(t, got["layer.0.weight"].Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, half.AsFloat16(), got["layer.0.half"].Raw().AsFloat16())
	assert.Equal(t, []float64{3.25}, got["scale"].Raw().AsFloat64())
	assert.Equal(t, map[string]string{"step": "100"}, meta)
}

func TestRoundTrip_RowSparse(t *testing.T) {
	shape := tensor.Shape{5, 2}
	values := mustRaw[float32](t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	stored, err := tensor.RowSparseFromRows(shape, []int64{3, 1}, values)
	require.NoError(t, err)
	uninit, err := tensor.NewRowSparse(shape, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	empty, err := tensor.CompactRows(mustRaw[float64](t, tensor.Shape{2, 1}, 0, 0))
	require.NoError(t, err)

	got, _ := roundTrip(t, map[string]tensor.Array{
		"emb.mean":  tensor.Sparse(stored),
		"emb.var":   tensor.Sparse(uninit),
		"emb.delta": tensor.Sparse(empty),
	}, nil)

	rs := got["emb.mean"].RowSparse()
	require.NotNil(t, rs)
	assert.Equal(t, []int64{3, 1}, rs.Indices())
	assert.Equal(t, values.AsFloat32(), rs.Values().AsFloat32())
	assert.True(t, rs.Shape().Equal(shape))

	u := got["emb.var"].RowSparse()
	require.NotNil(t, u)
	assert.False(t, u.StorageInitialized())
	assert.Equal(t, tensor.Float64, u.DType())

	e := got["emb.delta"].RowSparse()
	require.NotNil(t, e)
	assert.True(t, e.StorageInitialized())
	assert.Zero(t, e.NumStoredRows())
	assert.Equal(t, tensor.Float64, e.DType())
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.safetensors")
	w := mustRaw[float32](t, tensor.Shape{2}, 1, 2)
	require.NoError(t, WriteFile(path, map[string]tensor.Array{"w": tensor.Dense(w)}, nil))

	got, _, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got["w"].Raw().AsFloat32())
}

func TestWrite_Errors(t *testing.T) {
	w := tensor.Dense(mustRaw[float32](t, tensor.Shape{1}, 1))
	tests := []struct {
		name   string
		arrays map[string]tensor.Array
		meta   map[string]string
		want   error
	}{
		{"reserved metadata", map[string]tensor.Array{"w": w}, map[string]string{"optimops.sha256": "x"}, ErrReservedMetadata},
		{"colon in name", map[string]tensor.Array{"w:indices": w}, nil, ErrInvalidTensorName},
		{"empty name", map[string]tensor.Array{"": w}, nil, ErrInvalidTensorName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Write(&bytes.Buffer{}, tt.arrays, tt.meta)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := mustRaw[float32](t, tensor.Shape{2}, 1, 2)
	require.NoError(t, Write(&buf, map[string]tensor.Array{"w": tensor.Dense(w)}, nil))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff
	_, _, err := Read(bytes.NewReader(corrupted))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

// encode builds a file from a hand-written header and data section.
func encode(header string, data []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestRead_Validation(t *testing.T) {
	tests := []struct {
		name   string
		header string
		data   []byte
		want   error
	}{
		{
			"out of bounds",
			`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			make([]byte, 4),
			ErrOutOfBounds,
		},
		{
			"overlap",
			`{"a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]},"b":{"dtype":"F32","shape":[1],"data_offsets":[2,6]}}`,
			make([]byte, 8),
			ErrOffsetOverlap,
		},
		{
			"size mismatch",
			`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,4]}}`,
			make([]byte, 4),
			ErrOutOfBounds,
		},
		{
			"element count overflow",
			`{"a":{"dtype":"F32","shape":[4611686018427387905,4],"data_offsets":[0,16]}}`,
			make([]byte, 16),
			ErrOutOfBounds,
		},
		{
			"byte size overflow",
			`{"a":{"dtype":"F64","shape":[2305843009213693952,2],"data_offsets":[0,16]}}`,
			make([]byte, 16),
			ErrOutOfBounds,
		},
		{
			"bad name",
			`{"a\u0000b":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`,
			make([]byte, 4),
			ErrInvalidTensorName,
		},
		{
			"orphan indices",
			`{"a:indices":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`,
			make([]byte, 8),
			ErrMissingIndices,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(bytes.NewReader(encode(tt.header, tt.data)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRead_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1))
	_, _, err := Read(&buf)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Err: ErrOffsetOverlap, Tensor: "a", Tensor2: "b", Details: "regions overlap"}
	assert.True(t, errors.Is(err, ErrOffsetOverlap))
	assert.Contains(t, err.Error(), `"a" and "b"`)
}

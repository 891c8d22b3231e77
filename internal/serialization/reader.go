package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/born-ml/optimops/internal/tensor"
)

// ReadFile reads arrays and metadata written by WriteFile.
func ReadFile(path string) (map[string]tensor.Array, map[string]string, error) {
	//nolint:gosec // G304: File path comes from the caller, which is expected for loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // Read-only, close error carries no information
	}()
	return Read(bufio.NewReader(file))
}

// Read decodes arrays and metadata written by Write. Tensors are allocated
// on the CPU. The returned metadata excludes reserved keys.
func Read(r io.Reader) (map[string]tensor.Array, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	meta, tensors, err := parseHeader(headerBytes)
	if err != nil {
		return nil, nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := validateOffsets(tensors, int64(len(data))); err != nil {
		return nil, nil, err
	}
	if sum, ok := meta[checksumKey]; ok && sum != checksum(data) {
		return nil, nil, ErrChecksumMismatch
	}

	raws := make(map[string]*tensor.RawTensor, len(tensors))
	for name, info := range tensors {
		raw, err := decodeTensor(name, info, data)
		if err != nil {
			return nil, nil, err
		}
		raws[name] = raw
	}
	return assemble(raws, meta)
}

// parseHeader splits the JSON header into metadata and tensor entries.
func parseHeader(headerBytes []byte) (map[string]string, map[string]TensorInfo, error) {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	meta := make(map[string]string)
	if m, ok := rawMap[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	tensors := make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == metadataKey {
			continue
		}
		if err := ValidateTensorName(strings.TrimSuffix(key, indicesSuffix)); err != nil {
			return nil, nil, err
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		tensors[key] = info
	}
	return meta, tensors, nil
}

func decodeTensor(name string, info TensorInfo, data []byte) (*tensor.RawTensor, error) {
	dtype, err := dtypeFromSafeTensors(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	shape := make(tensor.Shape, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, &ValidationError{Err: ErrOutOfBounds, Tensor: name, Details: err.Error()}
	}
	// Size is checked before allocating so a forged shape cannot force a
	// large allocation.
	src := data[info.DataOffsets[0]:info.DataOffsets[1]]
	if n := shape.NumElements(); n > math.MaxInt/dtype.Size() || len(src) != n*dtype.Size() {
		return nil, &ValidationError{
			Err:     ErrOutOfBounds,
			Tensor:  name,
			Details: fmt.Sprintf("%d bytes for shape %v of %s", len(src), shape, dtype),
		}
	}
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	copy(raw.Data(), src)
	return raw, nil
}

// assemble rebuilds row-sparse tensors from their value and index entries
// and strips reserved metadata.
func assemble(raws map[string]*tensor.RawTensor, meta map[string]string) (map[string]tensor.Array, map[string]string, error) {
	arrays := make(map[string]tensor.Array, len(raws))
	user := make(map[string]string, len(meta))
	for key, value := range meta {
		name, ok := strings.CutPrefix(key, sparsePrefix)
		if !ok {
			if !strings.HasPrefix(key, reservedPrefix) {
				user[key] = value
			}
			continue
		}
		rs, err := decodeRowSparse(name, value, raws)
		if err != nil {
			return nil, nil, err
		}
		arrays[name] = tensor.Sparse(rs)
	}
	for name, raw := range raws {
		if strings.HasSuffix(name, indicesSuffix) {
			if _, ok := arrays[strings.TrimSuffix(name, indicesSuffix)]; !ok {
				return nil, nil, fmt.Errorf("%w: orphan index tensor %s", ErrMissingIndices, name)
			}
			continue
		}
		if _, ok := arrays[name]; !ok {
			arrays[name] = tensor.Dense(raw)
		}
	}
	return arrays, user, nil
}

func decodeRowSparse(name, value string, raws map[string]*tensor.RawTensor) (*tensor.RowSparse, error) {
	var info sparseInfo
	if err := json.Unmarshal([]byte(value), &info); err != nil {
		return nil, fmt.Errorf("tensor %s: bad row-sparse metadata: %w", name, err)
	}
	dtype, err := dtypeFromSafeTensors(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	shape := tensor.Shape(info.Shape)
	values, hasValues := raws[name]
	indices, hasIndices := raws[name+indicesSuffix]

	switch {
	case !info.Initialized:
		return tensor.NewRowSparse(shape, dtype, tensor.CPU)
	case !hasValues && !hasIndices:
		// No rows stored. The placeholder only carries the dtype.
		placeholder, err := tensor.NewRaw(shape.WithRows(1), dtype, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		return tensor.RowSparseFromRows(shape, nil, placeholder)
	case !hasIndices:
		return nil, fmt.Errorf("%w: %s", ErrMissingIndices, name)
	case !hasValues:
		return nil, fmt.Errorf("tensor %s: row-sparse values missing", name)
	case indices.DType() != tensor.Int64:
		return nil, fmt.Errorf("tensor %s: indices must be I64, got %s", name, indices.DType())
	case values.DType() != dtype:
		return nil, fmt.Errorf("tensor %s: values are %s, metadata says %s", name, values.DType(), dtype)
	}
	rs, err := tensor.RowSparseFromRows(shape, indices.AsInt64(), values)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return rs, nil
}

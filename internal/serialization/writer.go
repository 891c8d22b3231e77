package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/born-ml/optimops/internal/tensor"
)

// entry is one tensor of the data section.
type entry struct {
	name string
	raw  *tensor.RawTensor
}

// WriteFile writes arrays and metadata to path.
func WriteFile(path string, arrays map[string]tensor.Array, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from the caller, which is expected for saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	buf := bufio.NewWriter(file)
	if err := Write(buf, arrays, metadata); err != nil {
		_ = file.Close() // Best effort close on error
		return err
	}
	if err := buf.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to flush: %w", err)
	}
	return file.Close()
}

// Write encodes arrays and metadata to w.
//
// Tensors are written in alphabetical order by name. Metadata keys starting
// with "optimops." are reserved.
func Write(w io.Writer, arrays map[string]tensor.Array, metadata map[string]string) error {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		if strings.HasPrefix(k, reservedPrefix) {
			return fmt.Errorf("%w: %q", ErrReservedMetadata, k)
		}
		meta[k] = v
	}

	entries, err := collect(arrays, meta)
	if err != nil {
		return err
	}
	if len(entries) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(entries), MaxTensorCount),
		}
	}

	// Build header with tensor metadata
	header := make(map[string]any, len(entries)+1)
	var data bytes.Buffer
	for _, e := range entries {
		dtype, err := dtypeToSafeTensors(e.raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.name, err)
		}
		shape := make([]int64, len(e.raw.Shape()))
		for i, dim := range e.raw.Shape() {
			shape[i] = int64(dim)
		}
		start := int64(data.Len())
		data.Write(e.raw.Data())
		header[e.name] = TensorInfo{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}
	meta[checksumKey] = checksum(data.Bytes())
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Write header size (8 bytes, little-endian uint64)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// collect flattens arrays into data-section entries sorted by name and
// records row-sparse layout in meta.
func collect(arrays map[string]tensor.Array, meta map[string]string) ([]entry, error) {
	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []entry
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		a := arrays[name]
		if !a.IsValid() {
			return nil, fmt.Errorf("tensor %s: empty array", name)
		}
		rs := a.RowSparse()
		if rs == nil {
			entries = append(entries, entry{name, a.Raw()})
			continue
		}

		dtype, err := dtypeToSafeTensors(rs.DType())
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		info, err := json.Marshal(sparseInfo{Shape: rs.Shape(), DType: dtype, Initialized: rs.StorageInitialized()})
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		meta[sparsePrefix+name] = string(info)
		if rs.NumStoredRows() == 0 {
			continue
		}
		indices, err := tensor.FromSlice(rs.Indices(), tensor.Shape{rs.NumStoredRows()})
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		entries = append(entries, entry{name, rs.Values()}, entry{name + indicesSuffix, indices})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

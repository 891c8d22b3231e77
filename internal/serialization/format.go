package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/born-ml/optimops/internal/tensor"
)

// Header keys.
const (
	metadataKey     = "__metadata__"
	reservedPrefix  = "optimops."
	checksumKey     = reservedPrefix + "sha256"
	sparsePrefix    = reservedPrefix + "row_sparse."
	indicesSuffix   = ":indices"
	headerSizeBytes = 8
)

// TensorInfo describes a tensor in the header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) within the data section
}

// sparseInfo is the metadata entry of a row-sparse tensor, stored as JSON
// under sparsePrefix + name.
type sparseInfo struct {
	Shape       []int  `json:"shape"`
	DType       string `json:"dtype"`
	Initialized bool   `json:"initialized"`
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float16:
		return "F16", nil
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	default:
		return "", fmt.Errorf("unsupported dtype %s", dt)
	}
}

// dtypeFromSafeTensors converts a SafeTensors dtype string to tensor.DataType.
func dtypeFromSafeTensors(s string) (tensor.DataType, error) {
	switch s {
	case "F16":
		return tensor.Float16, nil
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	default:
		return 0, fmt.Errorf("unsupported SafeTensors dtype %q", s)
	}
}

// checksum returns the hex SHA-256 of data.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

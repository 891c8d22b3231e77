package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

type span struct {
	name  string
	start int64
	end   int64
}

// validateOffsets checks for overlapping tensor offsets and out-of-bounds
// access. Malformed files must not read past the data section or alias one
// tensor's bytes as another's.
func validateOffsets(tensors map[string]TensorInfo, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	spans := make([]span, 0, len(tensors))
	for name, info := range tensors {
		spans = append(spans, span{name, info.DataOffsets[0], info.DataOffsets[1]})
	}
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})

	for i, s := range spans {
		if s.start < 0 || s.end < s.start || s.end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("offsets [%d, %d) outside data section of %d bytes", s.start, s.end, dataSize),
			}
		}
		if i < len(spans)-1 && s.end > spans[i+1].start {
			next := spans[i+1]
			return &ValidationError{
				Err:     ErrOffsetOverlap,
				Tensor:  s.name,
				Tensor2: next.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.start, s.end, next.start, next.end),
			}
		}
	}
	return nil
}

// ValidateTensorName rejects names that are empty, too long, contain a null
// byte, or use the ':' reserved for row-sparse index tensors.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.Contains(name, "\x00"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	case strings.Contains(name, ":"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains ':'"}
	case name == metadataKey:
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "reserved name"}
	}
	return nil
}

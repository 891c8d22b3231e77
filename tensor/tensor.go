// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/optimops/internal/tensor"
)

// Type aliases for public API

// Element is a constraint for every Go type a RawTensor can be viewed as.
type Element = tensor.Element

// Real is the constraint for element types the update kernels compute in.
type Real = tensor.Real

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Vulkan Device = tensor.Vulkan
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} is viewed as 2 rows of 12 elements.
type Shape = tensor.Shape

// RawTensor is the dense tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Zero-copy typed access via AsFloat32(), AsFloat16(), etc.
//   - Buffer identity via SharesBuffer(), used to detect in-place updates
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()
type RawTensor = tensor.RawTensor

// RowSparse is a tensor that stores a subset of rows of its declared shape.
type RowSparse = tensor.RowSparse

// StorageType tags how an Array keeps its elements.
type StorageType = tensor.StorageType

// Storage type constants.
const (
	DenseStorage     StorageType = tensor.DenseStorage
	RowSparseStorage StorageType = tensor.RowSparseStorage
)

// Array is a storage-tagged operand: a dense RawTensor or a RowSparse.
type Array = tensor.Array

// NewRaw creates a zero-initialized RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a CPU RawTensor holding a copy of data.
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// Zeros creates a zero-filled RawTensor on the CPU.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.Zeros(shape, dtype)
}

// Values interprets the tensor's data as []T without copying.
// Panics if T does not match the tensor's dtype.
func Values[T Element](r *RawTensor) []T {
	return tensor.Values[T](r)
}

// NewRowSparse creates a row-sparse tensor with no stored rows and no index
// buffer. It reads as all zeros.
func NewRowSparse(shape Shape, dtype DataType, device Device) (*RowSparse, error) {
	return tensor.NewRowSparse(shape, dtype, device)
}

// RowSparseFromRows builds a row-sparse tensor from row indices and the
// matching rows of values.
//
// Example:
//
//	values, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	g, _ := tensor.RowSparseFromRows(tensor.Shape{10, 2}, []int64{3, 7}, values)
func RowSparseFromRows(shape Shape, indices []int64, values *RawTensor) (*RowSparse, error) {
	return tensor.RowSparseFromRows(shape, indices, values)
}

// AllRows wraps a dense tensor as a row-sparse tensor storing every row.
// The result shares d's buffer.
func AllRows(d *RawTensor) (*RowSparse, error) {
	return tensor.AllRows(d)
}

// CompactRows copies the non-zero rows of d into a new row-sparse tensor.
func CompactRows(d *RawTensor) (*RowSparse, error) {
	return tensor.CompactRows(d)
}

// Dense wraps a dense tensor as an Array.
func Dense(r *RawTensor) Array {
	return tensor.Dense(r)
}

// Sparse wraps a row-sparse tensor as an Array.
func Sparse(r *RowSparse) Array {
	return tensor.Sparse(r)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense and row-sparse tensor storage consumed by
// the optimizer operators in package optim.
//
// # Overview
//
// This package provides:
//   - RawTensor: a dense row-major buffer with a runtime element type
//   - RowSparse: a tensor that stores a subset of the rows of its declared
//     shape, each tagged with its row index; missing rows read as zero
//   - Array: a storage-tagged operand holding exactly one of the two
//
// Every tensor is viewed as 2-D by the optimizer: the leading dimension is
// the row count and the remaining axes are flattened into the row length.
//
// # Basic Usage
//
//	// Dense weight and gradient.
//	w, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	g, _ := tensor.FromSlice([]float32{0.1, 0.1, 0.2, 0.2}, tensor.Shape{2, 2})
//
//	// Row-sparse gradient touching only row 1 of a 1000-row table.
//	values, _ := tensor.FromSlice([]float32{0.5, 0.5}, tensor.Shape{1, 2})
//	sg, _ := tensor.RowSparseFromRows(tensor.Shape{1000, 2}, []int64{1}, values)
//
//	// Optimizer state that is materialized on first use.
//	mom, _ := tensor.NewRowSparse(tensor.Shape{1000, 2}, tensor.Float32, tensor.CPU)
//
// # Supported Data Types
//
// Optimizer kernels compute in float32 and float64. Float16 tensors are
// widened to float32 per element and rounded back on store; the
// mixed-precision operators instead keep a float32 master copy. Int32 and
// Int64 exist for index buffers.
package tensor

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor re-exports the matrix types the sampler consumes and
// produces.
//
// Components:
//   - Matrix: dense row-major float32 matrix (logits, probabilities)
//   - IntMatrix: dense row-major int32 matrix (token-id tables)
//   - Device: compute-device tag for explicit host materialization
//
// Example usage:
//
//	import "github.com/born-ml/sampler/tensor"
//
//	logits := tensor.NewMatrix(rows, vocabSize, tensor.CPU)
//	copy(logits.Row(0), scores)
package tensor

import "github.com/born-ml/sampler/internal/tensor"

// Device represents the compute device a matrix lives on.
type Device = tensor.Device

// Supported compute devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// Matrix is a dense row-major float32 matrix.
type Matrix = tensor.Matrix

// IntMatrix is a dense row-major int32 matrix.
type IntMatrix = tensor.IntMatrix

// NewMatrix creates a zero-initialized matrix with the given shape.
func NewMatrix(rows, cols int, device Device) *Matrix {
	return tensor.NewMatrix(rows, cols, device)
}

// FromSlice creates a matrix from a flat row-major slice.
// The slice is copied into the matrix's memory.
func FromSlice(data []float32, rows, cols int, device Device) (*Matrix, error) {
	return tensor.FromSlice(data, rows, cols, device)
}

// NewIntMatrix creates a zero-initialized int32 matrix with the given shape.
func NewIntMatrix(rows, cols int, device Device) *IntMatrix {
	return tensor.NewIntMatrix(rows, cols, device)
}

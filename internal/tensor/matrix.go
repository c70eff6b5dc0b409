// Package tensor provides the dense matrix types and row-wise numeric
// kernels used by the sampling pipeline.
//
// The sampler works on a single [rows, cols] logits matrix per step, so the
// package is deliberately 2-D: a float32 Matrix for logits/probabilities and
// an int32 IntMatrix for padded token-id tables. Both carry a Device tag so
// that host materialization stays an explicit, batched operation.
package tensor

import "fmt"

// Device represents the compute device a matrix lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Matrix is a dense row-major float32 matrix.
//
// Example:
//
//	logits := tensor.NewMatrix(batchRows, vocabSize, tensor.CPU)
//	copy(logits.Row(0), scores)
type Matrix struct {
	rows, cols int
	data       []float32
	device     Device
}

// NewMatrix creates a zero-initialized matrix with the given shape.
func NewMatrix(rows, cols int, device Device) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("invalid matrix shape [%d, %d]", rows, cols))
	}
	return &Matrix{
		rows:   rows,
		cols:   cols,
		data:   make([]float32, rows*cols),
		device: device,
	}
}

// FromSlice creates a matrix from a flat row-major slice.
// The slice is copied into the matrix's memory.
func FromSlice(data []float32, rows, cols int, device Device) (*Matrix, error) {
	if rows*cols != len(data) {
		return nil, fmt.Errorf("shape [%d, %d] requires %d elements, but got %d", rows, cols, rows*cols, len(data))
	}
	m := NewMatrix(rows, cols, device)
	copy(m.data, data)
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Device returns the matrix's compute device.
func (m *Matrix) Device() Device { return m.device }

// Data returns the flat row-major backing slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the matrix.
func (m *Matrix) Data() []float32 { return m.data }

// Row returns row i as a slice view (zero-copy).
func (m *Matrix) Row(i int) []float32 {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("row %d out of bounds for matrix with %d rows", i, m.rows))
	}
	return m.data[i*m.cols : (i+1)*m.cols]
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float32 {
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("column %d out of bounds for matrix with %d columns", j, m.cols))
	}
	return m.Row(i)[j]
}

// Set sets the element at (i, j).
func (m *Matrix) Set(value float32, i, j int) {
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("column %d out of bounds for matrix with %d columns", j, m.cols))
	}
	m.Row(i)[j] = value
}

// Clone creates a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.rows, m.cols, m.device)
	copy(out.data, m.data)
	return out
}

// ToHost returns a host-resident copy of the matrix in a single transfer.
// A matrix already on the CPU is returned as-is (zero-copy).
func (m *Matrix) ToHost() *Matrix {
	if m.device == CPU {
		return m
	}
	out := m.Clone()
	out.device = CPU
	return out
}

// String returns a human-readable representation of the matrix.
func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix[float32][%d, %d] on %s", m.rows, m.cols, m.device)
}

// IntMatrix is a dense row-major int32 matrix, used for padded token-id
// tables and sampled token ids.
type IntMatrix struct {
	rows, cols int
	data       []int32
	device     Device
}

// NewIntMatrix creates a zero-initialized int32 matrix with the given shape.
func NewIntMatrix(rows, cols int, device Device) *IntMatrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("invalid matrix shape [%d, %d]", rows, cols))
	}
	return &IntMatrix{
		rows:   rows,
		cols:   cols,
		data:   make([]int32, rows*cols),
		device: device,
	}
}

// Rows returns the number of rows.
func (m *IntMatrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *IntMatrix) Cols() int { return m.cols }

// Device returns the matrix's compute device.
func (m *IntMatrix) Device() Device { return m.device }

// Data returns the flat row-major backing slice (zero-copy).
func (m *IntMatrix) Data() []int32 { return m.data }

// Row returns row i as a slice view (zero-copy).
func (m *IntMatrix) Row(i int) []int32 {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("row %d out of bounds for matrix with %d rows", i, m.rows))
	}
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Fill sets every element to the given value.
func (m *IntMatrix) Fill(value int32) {
	for i := range m.data {
		m.data[i] = value
	}
}

// ToHost returns a host-resident copy of the matrix in a single transfer.
// A matrix already on the CPU is returned as-is (zero-copy).
func (m *IntMatrix) ToHost() *IntMatrix {
	if m.device == CPU {
		return m
	}
	out := NewIntMatrix(m.rows, m.cols, CPU)
	copy(out.data, m.data)
	return out
}

// String returns a human-readable representation of the matrix.
func (m *IntMatrix) String() string {
	return fmt.Sprintf("Matrix[int32][%d, %d] on %s", m.rows, m.cols, m.device)
}

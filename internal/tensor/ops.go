package tensor

import (
	"math"
	"sort"

	"github.com/born-ml/sampler/internal/parallel"
)

// rowCfg governs batch-dimension parallelism of the kernels below.
var rowCfg = parallel.DefaultConfig()

// Row-wise numeric kernels for the sampling pipeline. Every kernel is
// vectorized across the batch dimension: one call covers the whole matrix,
// and masked entries (-Inf) are propagated the way the pipeline expects.

// SoftmaxRows computes the row-wise softmax of m into a new matrix.
// -Inf entries map to probability 0.
func SoftmaxRows(m *Matrix) *Matrix {
	out := NewMatrix(m.rows, m.cols, m.device)
	parallel.ForRows(m.rows, func(i int) {
		softmaxRow(m.Row(i), out.Row(i))
	}, rowCfg)
	return out
}

// LogSoftmaxRows computes the row-wise log-softmax of m into a new matrix.
// -Inf entries stay -Inf.
func LogSoftmaxRows(m *Matrix) *Matrix {
	out := NewMatrix(m.rows, m.cols, m.device)
	negInf := float32(math.Inf(-1))
	parallel.ForRows(m.rows, func(i int) {
		row := m.Row(i)
		dst := out.Row(i)

		maxVal := MaxRow(row)
		sum := float64(0)
		for _, v := range row {
			if !math.IsInf(float64(v), -1) {
				sum += math.Exp(float64(v - maxVal))
			}
		}
		logSum := float32(math.Log(sum))
		for j, v := range row {
			if math.IsInf(float64(v), -1) {
				dst[j] = negInf
			} else {
				dst[j] = v - maxVal - logSum
			}
		}
	}, rowCfg)
	return out
}

// softmaxRow writes the softmax of src into dst (may alias src).
func softmaxRow(src, dst []float32) {
	maxVal := MaxRow(src)

	sum := float32(0)
	for j, v := range src {
		if math.IsInf(float64(v), -1) {
			dst[j] = 0
		} else {
			dst[j] = float32(math.Exp(float64(v - maxVal)))
			sum += dst[j]
		}
	}
	if sum > 0 {
		for j := range dst {
			dst[j] /= sum
		}
	}
}

// SoftmaxRow returns the softmax of a single row as a new slice.
func SoftmaxRow(row []float32) []float32 {
	out := make([]float32, len(row))
	softmaxRow(row, out)
	return out
}

// MaxRow returns the maximum value of a row.
func MaxRow(row []float32) float32 {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// ArgmaxRow returns the index of the maximum value of a row.
func ArgmaxRow(row []float32) int {
	maxIdx := 0
	maxVal := row[0]
	for j, v := range row[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = j + 1
		}
	}
	return maxIdx
}

// ArgmaxRows returns the per-row argmax of the matrix.
func ArgmaxRows(m *Matrix) []int {
	out := make([]int, m.rows)
	for i := 0; i < m.rows; i++ {
		out[i] = ArgmaxRow(m.Row(i))
	}
	return out
}

// SortRow returns the values of row sorted in the given direction along with
// the permutation mapping sorted position -> original index. The input row
// is not modified.
func SortRow(row []float32, descending bool) (vals []float32, idx []int) {
	idx = make([]int, len(row))
	for j := range idx {
		idx[j] = j
	}
	if descending {
		sort.Slice(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })
	} else {
		sort.Slice(idx, func(a, b int) bool { return row[idx[a]] < row[idx[b]] })
	}
	vals = make([]float32, len(row))
	for pos, j := range idx {
		vals[pos] = row[j]
	}
	return vals, idx
}

// CumsumInPlace replaces each element with the running sum from index 0.
func CumsumInPlace(vals []float32) {
	sum := float32(0)
	for j, v := range vals {
		sum += v
		vals[j] = sum
	}
}

// TopK returns the indices of the k largest values of row, ordered by
// decreasing value. It uses a min-heap over the first k candidates so only
// O(n log k) work is done for the typical k << vocab case.
func TopK(row []float32, k int) []int {
	if k >= len(row) {
		_, idx := SortRow(row, true)
		return idx
	}
	if k <= 0 {
		return nil
	}

	heap := make([]int, k)
	for j := range heap {
		heap[j] = j
	}
	for j := k/2 - 1; j >= 0; j-- {
		siftDown(row, heap, j, k)
	}
	for j := k; j < len(row); j++ {
		if row[j] > row[heap[0]] {
			heap[0] = j
			siftDown(row, heap, 0, k)
		}
	}

	// Heap holds the k largest; order them by decreasing value.
	sort.Slice(heap, func(a, b int) bool { return row[heap[a]] > row[heap[b]] })
	return heap
}

// siftDown maintains the min-heap property over indices into row.
func siftDown(row []float32, heap []int, start, end int) {
	root := start
	for {
		child := 2*root + 1
		if child >= end {
			break
		}
		if child+1 < end && row[heap[child+1]] < row[heap[child]] {
			child++
		}
		if row[heap[root]] <= row[heap[child]] {
			break
		}
		heap[root], heap[child] = heap[child], heap[root]
		root = child
	}
}

// BinCountRows counts token occurrences per row of a padded id table.
// ids must contain values in [0, vocabSize]; the pad value vocabSize is
// counted into an extra bin and dropped, mirroring the vocab_size+1 trick
// used for penalty bin-counting.
func BinCountRows(ids *IntMatrix, vocabSize int) *IntMatrix {
	counts := NewIntMatrix(ids.rows, vocabSize, ids.device)
	for i := 0; i < ids.rows; i++ {
		row := ids.Row(i)
		dst := counts.Row(i)
		for _, id := range row {
			if int(id) < vocabSize {
				dst[id]++
			}
		}
	}
	return counts
}

package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxRows(t *testing.T) {
	m, err := FromSlice([]float32{1, 2, 3, 0, 0, 0}, 2, 3, CPU)
	require.NoError(t, err)

	probs := SoftmaxRows(m)

	// Each row sums to 1 and preserves ordering.
	for i := 0; i < 2; i++ {
		sum := float32(0)
		for _, p := range probs.Row(i) {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
	assert.Greater(t, probs.At(0, 2), probs.At(0, 1))
	assert.InDelta(t, 1.0/3.0, probs.At(1, 0), 1e-5)
}

func TestSoftmaxRows_NegInfIsZero(t *testing.T) {
	negInf := float32(math.Inf(-1))
	m, err := FromSlice([]float32{1, negInf, 1}, 1, 3, CPU)
	require.NoError(t, err)

	probs := SoftmaxRows(m)
	assert.Equal(t, float32(0), probs.At(0, 1))
	assert.InDelta(t, 0.5, probs.At(0, 0), 1e-5)
	assert.InDelta(t, 0.5, probs.At(0, 2), 1e-5)
}

func TestLogSoftmaxRows(t *testing.T) {
	negInf := float32(math.Inf(-1))
	m, err := FromSlice([]float32{0, 0, negInf, 0}, 1, 4, CPU)
	require.NoError(t, err)

	lp := LogSoftmaxRows(m)

	// Three finite entries share the mass; masked entry stays -Inf.
	want := float32(math.Log(1.0 / 3.0))
	assert.InDelta(t, want, lp.At(0, 0), 1e-5)
	assert.True(t, math.IsInf(float64(lp.At(0, 2)), -1))

	// Consistent with the softmax of the same row.
	probs := SoftmaxRows(m)
	assert.InDelta(t, math.Log(float64(probs.At(0, 3))), float64(lp.At(0, 3)), 1e-5)
}

func TestMaxRowArgmaxRow(t *testing.T) {
	row := []float32{1, 5, 2, 0, -1}
	assert.Equal(t, float32(5), MaxRow(row))
	assert.Equal(t, 1, ArgmaxRow(row))

	// Ties resolve to the first occurrence.
	assert.Equal(t, 0, ArgmaxRow([]float32{7, 7, 3}))
}

func TestArgmaxRows(t *testing.T) {
	m, err := FromSlice([]float32{1, 5, 2, 9, 0, 3}, 2, 3, CPU)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, ArgmaxRows(m))
}

func TestSortRow(t *testing.T) {
	row := []float32{3, 1, 2}

	vals, idx := SortRow(row, false)
	assert.Equal(t, []float32{1, 2, 3}, vals)
	assert.Equal(t, []int{1, 2, 0}, idx)

	vals, idx = SortRow(row, true)
	assert.Equal(t, []float32{3, 2, 1}, vals)
	assert.Equal(t, []int{0, 2, 1}, idx)

	// Input untouched.
	assert.Equal(t, []float32{3, 1, 2}, row)
}

func TestCumsumInPlace(t *testing.T) {
	vals := []float32{1, 2, 3}
	CumsumInPlace(vals)
	assert.Equal(t, []float32{1, 3, 6}, vals)
}

func TestTopK(t *testing.T) {
	row := []float32{0.1, 0.9, 0.5, 0.7, 0.2}

	assert.Equal(t, []int{1}, TopK(row, 1))
	assert.Equal(t, []int{1, 3}, TopK(row, 2))
	assert.Equal(t, []int{1, 3, 2}, TopK(row, 3))

	// k >= len falls back to a full descending sort.
	assert.Equal(t, []int{1, 3, 2, 4, 0}, TopK(row, 5))
	assert.Equal(t, []int{1, 3, 2, 4, 0}, TopK(row, 10))

	assert.Nil(t, TopK(row, 0))
}

func TestTopK_LargeRow(t *testing.T) {
	row := make([]float32, 10000)
	for i := range row {
		row[i] = float32(i % 97)
	}
	row[1234] = 1000
	row[5678] = 999

	assert.Equal(t, []int{1234, 5678}, TopK(row, 2))
}

func TestBinCountRows(t *testing.T) {
	// Pad value == vocabSize is dropped.
	ids := NewIntMatrix(2, 4, CPU)
	copy(ids.Row(0), []int32{0, 0, 2, 5})
	copy(ids.Row(1), []int32{5, 5, 5, 5})

	counts := BinCountRows(ids, 5)
	assert.Equal(t, []int32{2, 0, 1, 0, 0}, counts.Row(0))
	assert.Equal(t, []int32{0, 0, 0, 0, 0}, counts.Row(1))
}

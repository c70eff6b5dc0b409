package sampling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// logitsFrom builds a logits matrix from flat row-major values.
func logitsFrom(t *testing.T, rows, cols int, vals ...float32) *tensor.Matrix {
	t.Helper()
	m, err := tensor.FromSlice(vals, rows, cols, tensor.CPU)
	require.NoError(t, err)
	return m
}

// decodeGroup builds a single-sequence decode-phase group over one row.
func decodeGroup(seqID int64, sampleRow int, params *batch.SamplingParams) *batch.SequenceGroup {
	g := batch.NewSequenceGroup(
		[]int64{seqID},
		map[int64]*batch.SequenceData{seqID: {PromptTokenIDs: []int{0}}},
		params,
	)
	g.SampleIndices = []int{sampleRow}
	return g
}

// singleRowBatch wraps one decode group into a batch descriptor.
func singleRowBatch(params *batch.SamplingParams) *batch.Batch {
	return &batch.Batch{Groups: []*batch.SequenceGroup{decodeGroup(0, 0, params)}}
}

// paramsWith returns neutral parameters after applying the mutation.
func paramsWith(mutate func(*batch.SamplingParams)) *batch.SamplingParams {
	p := batch.DefaultSamplingParams()
	if mutate != nil {
		mutate(&p)
	}
	return &p
}

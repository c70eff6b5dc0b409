package sampling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

func TestSample_GreedyPicksArgmax(t *testing.T) {
	s := New()
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
	}))
	logits := logitsFrom(t, 1, 5, 1, 5, 2, 0, -1)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)
	require.Len(t, out.Groups, 1)
	require.Len(t, out.Groups[0].Samples, 1)

	sample := out.Groups[0].Samples[0]
	assert.Equal(t, 1, sample.OutputToken)
	assert.Equal(t, int64(0), sample.ParentSeqID)
}

func TestSample_RejectsMisalignedBatch(t *testing.T) {
	s := New()
	b := singleRowBatch(paramsWith(nil))
	logits := logitsFrom(t, 2, 3, 1, 2, 3, 1, 2, 3)

	_, err := s.Sample(logits, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, batch.ErrRowCountMismatch)
}

func TestSample_MixedDoSampleGroups(t *testing.T) {
	// A chunked-prefill group that is not sampled this step alongside a
	// greedy decode group: the former yields no samples, the latter one.
	skipped := batch.NewSequenceGroup(
		[]int64{0},
		map[int64]*batch.SequenceData{0: {PromptTokenIDs: []int{1, 2, 3, 4}}},
		paramsWith(nil),
	)
	skipped.IsPrompt = true
	skipped.QueryLen = 2
	skipped.DoSample = false

	sampled := decodeGroup(1, 0, paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
	}))

	b := &batch.Batch{Groups: []*batch.SequenceGroup{skipped, sampled}, NumPrompts: 1}
	logits := logitsFrom(t, 1, 4, 0, 0, 9, 0)

	out, err := New().Sample(logits, b)
	require.NoError(t, err)
	require.Len(t, out.Groups, 2)
	assert.Empty(t, out.Groups[0].Samples)
	require.Len(t, out.Groups[1].Samples, 1)
	assert.Equal(t, 2, out.Groups[1].Samples[0].OutputToken)
}

func TestSample_SkipHostOutput(t *testing.T) {
	s := New(WithProbsTensor())
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
	}))
	b.SkipHostOutput = true
	logits := logitsFrom(t, 1, 3, 1, 5, 2)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)

	assert.Empty(t, out.Groups, "host assembly skipped on request")
	require.NotNil(t, out.SampledTokenIDs)
	assert.Equal(t, int32(1), out.SampledTokenIDs.Row(0)[0])
}

func TestSample_ProbsTensorMode(t *testing.T) {
	s := New(WithProbsTensor())
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
	}))
	logits := logitsFrom(t, 1, 3, 1, 5, 2)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)

	require.NotNil(t, out.SampledTokenProbs)
	require.NotNil(t, out.LogprobsTensor)
	require.NotNil(t, out.SampledTokenIDs)

	// Greedy rows are pinned to one-hot in the probability tensor.
	assert.Equal(t, []float32{0, 1, 0}, out.SampledTokenProbs.Row(0))
	// Log-probabilities stay faithful to the distribution.
	assert.Less(t, out.LogprobsTensor.At(0, 1), float32(0))
}

func TestSample_NoTensorsWithoutOptIn(t *testing.T) {
	out, err := New().Sample(logitsFrom(t, 1, 3, 1, 5, 2),
		singleRowBatch(paramsWith(func(p *batch.SamplingParams) { p.Temperature = 0 })))
	require.NoError(t, err)
	assert.Nil(t, out.SampledTokenProbs)
	assert.Nil(t, out.LogprobsTensor)
	assert.Nil(t, out.SampledTokenIDs)
}

func TestSample_LogprobDiagnostics(t *testing.T) {
	s := New()
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
		p.Logprobs = intPtr(2)
	}))
	logits := logitsFrom(t, 1, 4, 1, 5, 2, 0)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)

	entry := out.Groups[0].Samples[0].Logprobs
	chosen := entry[1]
	assert.Equal(t, 1, chosen.Rank)

	// log softmax of the argmax against the full row.
	wantSum := 0.0
	for _, v := range []float64{1, 5, 2, 0} {
		wantSum += math.Exp(v - 5)
	}
	assert.InDelta(t, -math.Log(wantSum), float64(chosen.Logprob), 1e-5)

	// Top-2 neighbors: tokens 1 and 2.
	assert.Contains(t, entry, 2)
	assert.Equal(t, 2, entry[2].Rank)
}

func TestSample_SeededDeterminismAcrossSamplers(t *testing.T) {
	run := func() int {
		b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
			p.Seed = int64Ptr(99)
		}))
		logits := logitsFrom(t, 1, 6, 1, 2, 3, 1, 2, 3)
		out, err := New().Sample(logits, b)
		require.NoError(t, err)
		return out.Groups[0].Samples[0].OutputToken
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(), "per-request seed pins the draw across samplers")
	}
}

func TestSample_BeamPromptOverselects(t *testing.T) {
	g := batch.NewSequenceGroup(
		[]int64{0},
		map[int64]*batch.SequenceData{0: {PromptTokenIDs: []int{1}}},
		paramsWith(func(p *batch.SamplingParams) {
			p.UseBeamSearch = true
			p.BestOf = 3
		}),
	)
	g.IsPrompt = true
	g.QueryLen = 1
	g.SampleIndices = []int{0}
	b := &batch.Batch{Groups: []*batch.SequenceGroup{g}, NumPrompts: 1}

	logits := logitsFrom(t, 1, 10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	out, err := New().Sample(logits, b)
	require.NoError(t, err)

	require.Len(t, out.Groups[0].Samples, 6, "beam search draws 2x beam_width candidates")
	assert.Equal(t, 9, out.Groups[0].Samples[0].OutputToken)
	for _, sample := range out.Groups[0].Samples {
		assert.Equal(t, int64(0), sample.ParentSeqID)
		assert.False(t, math.IsInf(float64(sample.Logprobs[sample.OutputToken].Logprob), 1))
	}
}

func TestSample_GreedySurvivesActiveFilters(t *testing.T) {
	// Truncation filters can only remove non-argmax tokens, so a greedy
	// row keeps its argmax no matter how aggressive the stack is.
	s := New()
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
		p.TopK = 2
		p.TopP = 0.1
		p.MinP = 0.9
		p.TFS = 0.3
		p.TypicalP = 0.5
		p.EpsilonCutoff = 0.5
		p.SmoothingFactor = 0.4
	}))
	logits := logitsFrom(t, 1, 5, 1, 5, 2, 0, -1)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Groups[0].Samples[0].OutputToken)
}

func TestSample_PipelineMasksPropagate(t *testing.T) {
	// min_tokens forces the stop token out even though it is the argmax.
	s := New()
	b := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
		p.MinTokens = 5
		p.StopTokenIDs = []int{1}
	}))
	logits := logitsFrom(t, 1, 4, 1, 5, 2, 0)

	out, err := s.Sample(logits, b)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Groups[0].Samples[0].OutputToken,
		"the stop token must be unreachable before min_tokens")
}

func TestSample_ReuseSamplingTensors(t *testing.T) {
	s := New()
	mkBatch := func(minP float32) *batch.Batch {
		return singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
			p.Temperature = 0
			p.MinP = minP
			p.Logprobs = intPtr(2)
		}))
	}
	logits := func() *tensor.Matrix {
		// probs roughly [0.73, 0.27]: min_p 0.5 masks token 1.
		return logitsFrom(t, 1, 2, 1, 0)
	}

	// Step 1 builds tensors with an aggressive min_p; token 1 is masked.
	out, err := s.Sample(logits(), mkBatch(0.5))
	require.NoError(t, err)
	entry := out.Groups[0].Samples[0].Logprobs
	assert.True(t, math.IsInf(float64(entry[1].Logprob), -1))

	// Step 2 changes min_p to neutral but asserts reuse: the cached
	// aggressive tensors still apply.
	b := mkBatch(0)
	b.ReuseSamplingTensors = true
	out, err = s.Sample(logits(), b)
	require.NoError(t, err)
	entry = out.Groups[0].Samples[0].Logprobs
	assert.True(t, math.IsInf(float64(entry[1].Logprob), -1), "cached tensors reused on request")

	// Step 3 without the reuse flag rebuilds and token 1 survives.
	out, err = s.Sample(logits(), mkBatch(0))
	require.NoError(t, err)
	entry = out.Groups[0].Samples[0].Logprobs
	assert.False(t, math.IsInf(float64(entry[1].Logprob), -1))
}

func TestSample_PenaltiesForceTensorRebuild(t *testing.T) {
	s := New()
	params := paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
		p.RepetitionPenalty = 2.0
	})
	g := decodeGroup(0, 0, params)
	g.SeqData[0].PromptTokenIDs = []int{2}
	b := &batch.Batch{Groups: []*batch.SequenceGroup{g}}

	// Step 1: token 2 is penalized (prompt history), token 1 wins.
	out, err := s.Sample(logitsFrom(t, 1, 3, 2.2, 3, 4), b)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Groups[0].Samples[0].OutputToken)

	// The chosen token joins the history; even with the reuse flag set,
	// active penalties force a rebuild so it is penalized next step.
	g.SeqData[0].AppendOutputToken(1, -0.1)
	b.ReuseSamplingTensors = true

	out, err = s.Sample(logitsFrom(t, 1, 3, 2.2, 3, 4), b)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Groups[0].Samples[0].OutputToken,
		"fresh output history must reach the penalty tables")
}

func TestSample_TwoGroupScenario(t *testing.T) {
	// One group is present for bookkeeping only, the other samples: the
	// first yields no token/parent pairs, the second exactly one.
	bookkeeping := decodeGroup(0, 0, paramsWith(nil))
	bookkeeping.DoSample = false
	bookkeeping.SampleIndices = nil

	active := decodeGroup(1, 0, paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 0
	}))

	b := &batch.Batch{Groups: []*batch.SequenceGroup{bookkeeping, active}}
	out, err := New().Sample(logitsFrom(t, 1, 3, 1, 5, 2), b)
	require.NoError(t, err)

	require.Len(t, out.Groups, 2)
	assert.Empty(t, out.Groups[0].Samples)
	require.Len(t, out.Groups[1].Samples, 1)
	assert.Equal(t, 1, out.Groups[1].Samples[0].OutputToken)
	assert.Equal(t, int64(1), out.Groups[1].Samples[0].ParentSeqID)
}

package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sampler/internal/batch"
)

func TestNewSamplingTensors_RowAlignment(t *testing.T) {
	// A prefill group with prompt logprobs contributes one entry per
	// prompt-logprob row plus one per sample row, all with the group's
	// parameter values.
	prompt := batch.NewSequenceGroup(
		[]int64{0},
		map[int64]*batch.SequenceData{0: {PromptTokenIDs: []int{1, 2, 3}}},
		paramsWith(func(p *batch.SamplingParams) {
			p.Temperature = 0.5
			p.PromptLogprobs = intPtr(0)
		}),
	)
	prompt.IsPrompt = true
	prompt.QueryLen = 3
	prompt.PromptLogprobIndices = []int{0, 1}
	prompt.SampleIndices = []int{2}

	decode := decodeGroup(1, 3, paramsWith(func(p *batch.SamplingParams) {
		p.Temperature = 2.0
	}))

	b := &batch.Batch{Groups: []*batch.SequenceGroup{prompt, decode}, NumPrompts: 1}
	st, _ := NewSamplingTensors(b, 10)

	require.Len(t, st.Temperatures, 4)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 2.0}, st.Temperatures)
	assert.Len(t, st.TopKs, 4)
}

func TestNewSamplingTensors_SkipsNonSampledGroups(t *testing.T) {
	g := decodeGroup(0, 0, paramsWith(nil))
	g.DoSample = false
	g.SampleIndices = nil

	st, _ := NewSamplingTensors(&batch.Batch{Groups: []*batch.SequenceGroup{g}}, 10)
	assert.Empty(t, st.Temperatures)
}

func TestNewSamplingTensors_PenaltyTablesOnlyWhenActive(t *testing.T) {
	neutral := singleRowBatch(paramsWith(nil))
	st, active := NewSamplingTensors(neutral, 10)
	assert.False(t, active.penalties)
	assert.Nil(t, st.PromptTokens)
	assert.Nil(t, st.OutputTokens)

	penalized := singleRowBatch(paramsWith(func(p *batch.SamplingParams) {
		p.RepetitionPenalty = 1.2
	}))
	st, active = NewSamplingTensors(penalized, 10)
	assert.True(t, active.penalties)
	require.NotNil(t, st.PromptTokens)
	require.NotNil(t, st.OutputTokens)
}

func TestNewSamplingTensors_TokenTablePadding(t *testing.T) {
	vocabSize := 10
	g1 := decodeGroup(0, 0, paramsWith(func(p *batch.SamplingParams) {
		p.PresencePenalty = 0.5
	}))
	g1.SeqData[0].PromptTokenIDs = []int{1, 2, 3}
	g1.SeqData[0].OutputTokenIDs = []int{4}

	g2 := decodeGroup(1, 1, paramsWith(nil))
	g2.SeqData[1].PromptTokenIDs = []int{7}

	b := &batch.Batch{Groups: []*batch.SequenceGroup{g1, g2}}
	st, _ := NewSamplingTensors(b, vocabSize)

	require.Equal(t, 2, st.PromptTokens.Rows())
	assert.Equal(t, []int32{1, 2, 3}, st.PromptTokens.Row(0))
	// Shorter rows pad with the vocab-size ignore bin.
	assert.Equal(t, []int32{7, 10, 10}, st.PromptTokens.Row(1))
	assert.Equal(t, []int32{4}, st.OutputTokens.Row(0))
	assert.Equal(t, []int32{10}, st.OutputTokens.Row(1))
}

func TestNewSamplingTensors_PromptLogprobRowsGetEmptyHistory(t *testing.T) {
	prompt := batch.NewSequenceGroup(
		[]int64{0},
		map[int64]*batch.SequenceData{0: {PromptTokenIDs: []int{1, 2, 3}}},
		paramsWith(func(p *batch.SamplingParams) {
			p.RepetitionPenalty = 2.0
			p.PromptLogprobs = intPtr(0)
		}),
	)
	prompt.IsPrompt = true
	prompt.QueryLen = 3
	prompt.PromptLogprobIndices = []int{0, 1}
	prompt.SampleIndices = []int{2}

	b := &batch.Batch{Groups: []*batch.SequenceGroup{prompt}, NumPrompts: 1}
	st, _ := NewSamplingTensors(b, 10)

	require.Equal(t, 3, st.PromptTokens.Rows())
	// Prompt-logprob rows carry no history so penalties never touch them.
	assert.Equal(t, []int32{10, 10, 10}, st.PromptTokens.Row(0))
	assert.Equal(t, []int32{10, 10, 10}, st.PromptTokens.Row(1))
	assert.Equal(t, []int32{1, 2, 3}, st.PromptTokens.Row(2))
}

func TestMarkActive(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*batch.SamplingParams)
		check  func(activeFilters) bool
	}{
		{"presence penalty", func(p *batch.SamplingParams) { p.PresencePenalty = 0.1 }, func(a activeFilters) bool { return a.penalties }},
		{"frequency penalty", func(p *batch.SamplingParams) { p.FrequencyPenalty = -0.1 }, func(a activeFilters) bool { return a.penalties }},
		{"repetition penalty", func(p *batch.SamplingParams) { p.RepetitionPenalty = 1.1 }, func(a activeFilters) bool { return a.penalties }},
		{"top_p", func(p *batch.SamplingParams) { p.TopP = 0.9 }, func(a activeFilters) bool { return a.topKTopP }},
		{"top_k", func(p *batch.SamplingParams) { p.TopK = 5 }, func(a activeFilters) bool { return a.topKTopP }},
		{"top_a", func(p *batch.SamplingParams) { p.TopA = 0.2 }, func(a activeFilters) bool { return a.topA }},
		{"min_p", func(p *batch.SamplingParams) { p.MinP = 0.1 }, func(a activeFilters) bool { return a.minP }},
		{"tfs", func(p *batch.SamplingParams) { p.TFS = 0.95 }, func(a activeFilters) bool { return a.tfs }},
		{"eta_cutoff", func(p *batch.SamplingParams) { p.EtaCutoff = 0.01 }, func(a activeFilters) bool { return a.etaCutoff }},
		{"epsilon_cutoff", func(p *batch.SamplingParams) { p.EpsilonCutoff = 0.01 }, func(a activeFilters) bool { return a.epsilonCutoff }},
		{"typical_p", func(p *batch.SamplingParams) { p.TypicalP = 0.8 }, func(a activeFilters) bool { return a.typicalP }},
		{"smoothing factor", func(p *batch.SamplingParams) { p.SmoothingFactor = 0.3 }, func(a activeFilters) bool { return a.quadratic }},
	}
	vocabSize := 100

	var neutral activeFilters
	markActive(paramsWith(nil), vocabSize, &neutral)
	assert.Equal(t, activeFilters{}, neutral, "neutral parameters activate nothing")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var active activeFilters
			markActive(paramsWith(tt.mutate), vocabSize, &active)
			assert.True(t, tt.check(active))
		})
	}
}

func TestTopKTopPActive_VocabClamp(t *testing.T) {
	// top_k at or above the vocab size does not restrict anything.
	p := paramsWith(func(p *batch.SamplingParams) { p.TopK = 200 })
	assert.False(t, topKTopPActive(p, 100))

	p = paramsWith(func(p *batch.SamplingParams) { p.TopK = 100 })
	assert.False(t, topKTopPActive(p, 100))

	p = paramsWith(func(p *batch.SamplingParams) { p.TopK = 99 })
	assert.True(t, topKTopPActive(p, 100))
}

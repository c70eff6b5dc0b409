package batch

import "math/rand"

// SequenceData is the mutable per-sequence state the sampler reads:
// token history for penalty bin-counting and prompt-logprob lookup, and the
// running cumulative log-probability used by beam search.
type SequenceData struct {
	PromptTokenIDs []int
	OutputTokenIDs []int

	// CumulativeLogprob is the sum of chosen-token log-probabilities over
	// the sequence so far (beam search scoring).
	CumulativeLogprob float32

	// NumComputedTokens is how many prompt tokens have already been fed
	// through the model; with chunked prefill a prompt spans several steps.
	NumComputedTokens int
}

// AppendOutputToken extends the output history. Growing the history
// invalidates any cached penalty tensors; see Batch.ReuseSamplingTensors.
func (d *SequenceData) AppendOutputToken(tokenID int, logprob float32) {
	d.OutputTokenIDs = append(d.OutputTokenIDs, tokenID)
	d.CumulativeLogprob += logprob
}

// SequenceGroup is the unit of batching: one request, possibly expanded into
// several parallel sequences for best_of or beam search.
type SequenceGroup struct {
	// SeqIDs lists the live sequences of the group, in row order.
	SeqIDs []int64

	// SeqData maps each sequence id to its state.
	SeqData map[int64]*SequenceData

	// Params is the group's sampling policy.
	Params *SamplingParams

	// IsPrompt is true while the group is in its prefill phase.
	IsPrompt bool

	// DoSample gates sampling work: a false value means the group
	// contributes no to-be-sampled rows this step, only bookkeeping.
	DoSample bool

	// QueryLen is the number of prompt tokens processed this step
	// (prefill only; chunked prefill makes this smaller than the prompt).
	QueryLen int

	// SampleIndices are the group's to-be-sampled rows in the logits
	// matrix; contiguous, one per live sequence (empty when !DoSample).
	SampleIndices []int

	// PromptLogprobIndices are the group's prompt-logprob rows; contiguous
	// and immediately preceding SampleIndices (empty unless prompt
	// logprobs were requested during prefill).
	PromptLogprobIndices []int

	// Generator is the per-request deterministic noise stream for seeded
	// sampling. nil for unseeded groups.
	Generator *rand.Rand
}

// NewSequenceGroup builds a group over the given sequences, wiring up the
// deterministic generator when the policy carries a seed.
func NewSequenceGroup(seqIDs []int64, seqData map[int64]*SequenceData, params *SamplingParams) *SequenceGroup {
	g := &SequenceGroup{
		SeqIDs:   seqIDs,
		SeqData:  seqData,
		Params:   params,
		DoSample: true,
	}
	if params.Seed != nil {
		g.Generator = rand.New(rand.NewSource(*params.Seed)) //nolint:gosec // deterministic per-request stream by design
	}
	return g
}

// NumRows returns how many logits rows the group owns this step.
func (g *SequenceGroup) NumRows() int {
	return len(g.PromptLogprobIndices) + len(g.SampleIndices)
}

// NextPromptTokens returns, for each prompt-logprob row of this step, the
// prompt token whose log-probability that row scores. Valid only during
// prefill: row i scores prompt token computed+i+1.
func (g *SequenceGroup) NextPromptTokens() []int {
	if !g.IsPrompt || len(g.SeqIDs) != 1 {
		return nil
	}
	data := g.SeqData[g.SeqIDs[0]]
	start := data.NumComputedTokens + 1
	end := data.NumComputedTokens + g.QueryLen + 1
	if end > len(data.PromptTokenIDs) {
		end = len(data.PromptTokenIDs)
	}
	if start >= end {
		return nil
	}
	return data.PromptTokenIDs[start:end]
}

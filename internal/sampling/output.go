package sampling

import (
	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

// SequenceOutput is one sampled token: the parent sequence it extends, the
// chosen token id, and the token's logprob map.
type SequenceOutput struct {
	ParentSeqID int64
	OutputToken int
	Logprobs    TokenLogprobs
}

// CompletionGroupOutput is the per-sequence-group result: one SequenceOutput
// per drawn sample (beam search yields 2*beam_width of them) plus the
// prompt-logprob list when it was requested this step.
type CompletionGroupOutput struct {
	Samples        []SequenceOutput
	PromptLogprobs PromptLogprobs
}

// Output is the result of one sampling step.
//
// Groups is ordered like the batch descriptor and is empty when the batch
// requested SkipHostOutput. The tensor fields are populated only in
// probs-tensor mode and stay on their originating device so a downstream
// consumer (e.g. a speculative-decoding verifier) can chain without a copy.
type Output struct {
	Groups []CompletionGroupOutput

	SampledTokenProbs *tensor.Matrix
	LogprobsTensor    *tensor.Matrix
	SampledTokenIDs   *tensor.IntMatrix
}

// buildOutput reassembles per-request results from the strategy partitions,
// mapping parent positions back to actual sequence ids.
func buildOutput(
	b *batch.Batch,
	results []sampleResult,
	promptLogprobs []PromptLogprobs,
	sampleLogprobs []SampleLogprobs,
) []CompletionGroupOutput {
	groups := make([]CompletionGroupOutput, 0, len(b.Groups))
	for gi, g := range b.Groups {
		res := results[gi]
		out := CompletionGroupOutput{
			Samples:        make([]SequenceOutput, 0, len(res.tokenIDs)),
			PromptLogprobs: promptLogprobs[gi],
		}
		for k, tok := range res.tokenIDs {
			out.Samples = append(out.Samples, SequenceOutput{
				ParentSeqID: g.SeqIDs[res.parentIDs[k]],
				OutputToken: tok,
				Logprobs:    sampleLogprobs[gi][k],
			})
		}
		groups = append(groups, out)
	}
	return groups
}

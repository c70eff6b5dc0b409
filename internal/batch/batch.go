package batch

import (
	"errors"
	"fmt"
)

// Descriptor errors. A failed validation is a fatal upstream-batching
// defect: continuing could silently cross-assign tokens between requests.
var (
	// ErrRowCountMismatch reports that the descriptor's row ranges do not
	// tile the logits matrix exactly.
	ErrRowCountMismatch = errors.New("batch row ranges do not match logits row count")

	// ErrRowOrder reports rows that are out of the required order
	// (prefill groups first, prompt-logprob rows before sample rows,
	// all ranges contiguous).
	ErrRowOrder = errors.New("batch row ranges out of order")
)

// Batch is the immutable per-step description of the logits matrix: the
// sequence groups in row order plus the step-level flags the caller owns.
type Batch struct {
	// Groups in batch order: the first NumPrompts groups are in prefill.
	Groups []*SequenceGroup

	// NumPrompts is the count of prefill groups at the head of Groups.
	NumPrompts int

	// ReuseSamplingTensors asserts that no value feeding the parameter
	// tensors changed since the previous step, so the sampler may reuse
	// its cached bundle. The sampler still forces a rebuild whenever the
	// penalty family is active, because output-token history grows every
	// step. Only the caller may set this; staleness is never inferred.
	ReuseSamplingTensors bool

	// SkipHostOutput suppresses per-request host result assembly; only
	// the raw tensors are produced, for a downstream on-device consumer.
	SkipHostOutput bool
}

// Validate checks the positional coupling between the descriptor and a
// logits matrix with numRows rows. It enforces the batching invariant:
// every row belongs to exactly one group, a group's prompt-logprob rows
// immediately precede its sample rows, both ranges are contiguous, and
// prefill groups come before decode groups.
func (b *Batch) Validate(numRows int) error {
	next := 0
	for i, g := range b.Groups {
		if g.Params == nil {
			return fmt.Errorf("group %d: nil sampling params", i)
		}
		if (i < b.NumPrompts) != g.IsPrompt {
			return fmt.Errorf("%w: group %d prefill ordering (num_prompts=%d, is_prompt=%v)",
				ErrRowOrder, i, b.NumPrompts, g.IsPrompt)
		}
		// Every prompt-logprob row must score exactly one prompt token of
		// this step; a count drift here would shift every later (row,
		// token) pairing onto the wrong request.
		if g.IsPrompt && g.Params.PromptLogprobs != nil {
			if want := len(g.NextPromptTokens()); len(g.PromptLogprobIndices) != want {
				return fmt.Errorf("%w: group %d has %d prompt-logprob rows for %d scored prompt tokens",
					ErrRowOrder, i, len(g.PromptLogprobIndices), want)
			}
		} else if len(g.PromptLogprobIndices) != 0 {
			return fmt.Errorf("%w: group %d has prompt-logprob rows without a prompt-logprob request",
				ErrRowOrder, i)
		}
		if g.DoSample && g.Params.SamplingType() == RandomSeed && g.Generator == nil {
			return fmt.Errorf("group %d: seeded group without a generator", i)
		}
		for _, idx := range g.PromptLogprobIndices {
			if idx != next {
				return fmt.Errorf("%w: group %d prompt-logprob row %d, want %d", ErrRowOrder, i, idx, next)
			}
			next++
		}
		if !g.DoSample {
			if len(g.SampleIndices) != 0 {
				return fmt.Errorf("%w: group %d has sample rows but do_sample=false", ErrRowOrder, i)
			}
			continue
		}
		if len(g.SampleIndices) != len(g.SeqIDs) {
			return fmt.Errorf("%w: group %d has %d sample rows for %d sequences",
				ErrRowOrder, i, len(g.SampleIndices), len(g.SeqIDs))
		}
		for _, idx := range g.SampleIndices {
			if idx != next {
				return fmt.Errorf("%w: group %d sample row %d, want %d", ErrRowOrder, i, idx, next)
			}
			next++
		}
	}
	if next != numRows {
		return fmt.Errorf("%w: descriptor covers %d rows, logits has %d", ErrRowCountMismatch, next, numRows)
	}
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sampler provides batched next-token selection for LLM inference
// serving: per-request filter pipelines over a shared logits matrix, greedy/
// random/beam draw strategies, and log-probability diagnostics.
//
// Components:
//   - Sampler: one synchronous sampling step per call
//   - Output: per-request results plus optional raw tensors for zero-copy
//     hand-off to a speculative-decoding verifier
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/sampler/batch"
//	    "github.com/born-ml/sampler/sampler"
//	    "github.com/born-ml/sampler/tensor"
//	)
//
//	s := sampler.New()
//	out, err := s.Sample(logits, b)
//	if err != nil {
//	    log.Fatal(err) // corrupted batch bookkeeping, not recoverable
//	}
//	token := out.Groups[0].Samples[0].OutputToken
package sampler

import (
	"go.uber.org/zap"

	"github.com/born-ml/sampler/internal/sampling"
)

// Sampler selects the next token for each request in a batch.
type Sampler = sampling.Sampler

// Option configures a Sampler.
type Option = sampling.Option

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	return sampling.New(opts...)
}

// WithProbsTensor makes the Sampler return the raw post-transform tensors
// and pins greedy probability rows to one-hot for speculative decoding.
func WithProbsTensor() Option {
	return sampling.WithProbsTensor()
}

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return sampling.WithLogger(logger)
}

// WithSeed seeds the shared unseeded-random stream, for reproducible runs.
func WithSeed(seed int64) Option {
	return sampling.WithSeed(seed)
}

// Output is the result of one sampling step.
type Output = sampling.Output

// CompletionGroupOutput is the per-sequence-group result.
type CompletionGroupOutput = sampling.CompletionGroupOutput

// SequenceOutput is one sampled token with its diagnostics.
type SequenceOutput = sampling.SequenceOutput

// Logprob is one token's log-probability and rank.
type Logprob = sampling.Logprob

// TokenLogprobs maps token ids to their diagnostics for one position.
type TokenLogprobs = sampling.TokenLogprobs

// PromptLogprobs holds one entry per prompt-logprob row of a group.
type PromptLogprobs = sampling.PromptLogprobs

// SampleLogprobs holds one entry per sampled token of a group.
type SampleLogprobs = sampling.SampleLogprobs

// Fatal configuration errors returned by Sample.
var (
	ErrRowCountMismatch    = sampling.ErrRowCountMismatch
	ErrUnknownSamplingType = sampling.ErrUnknownSamplingType
)

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package batch provides the per-step batch descriptor consumed by the
// sampler: sampling policies, sequence groups, and their logits row ranges.
//
// Example usage:
//
//	import "github.com/born-ml/sampler/batch"
//
//	params := batch.DefaultSamplingParams()
//	params.Temperature = 0.7
//	params.TopP = 0.9
//
//	group := batch.NewSequenceGroup([]int64{seqID},
//	    map[int64]*batch.SequenceData{seqID: data}, &params)
//	group.SampleIndices = []int{0}
//
//	b := &batch.Batch{Groups: []*batch.SequenceGroup{group}}
package batch

import "github.com/born-ml/sampler/internal/batch"

// SamplingType identifies the draw strategy of a sequence group.
type SamplingType = batch.SamplingType

// Draw strategies, dispatched exhaustively by the sampler.
const (
	Greedy     = batch.Greedy
	Random     = batch.Random
	RandomSeed = batch.RandomSeed
	Beam       = batch.Beam
)

// AllSamplingTypes lists every strategy in dispatch order.
var AllSamplingTypes = batch.AllSamplingTypes

// SamplingParams is the per-request sampling policy.
type SamplingParams = batch.SamplingParams

// DefaultSamplingParams returns the neutral policy: every filter disabled.
func DefaultSamplingParams() SamplingParams {
	return batch.DefaultSamplingParams()
}

// SequenceData is the mutable per-sequence state the sampler reads.
type SequenceData = batch.SequenceData

// SequenceGroup is the unit of batching: one request, possibly expanded
// into several parallel sequences for best_of or beam search.
type SequenceGroup = batch.SequenceGroup

// NewSequenceGroup builds a group over the given sequences, wiring up the
// deterministic generator when the policy carries a seed.
func NewSequenceGroup(seqIDs []int64, seqData map[int64]*SequenceData, params *SamplingParams) *SequenceGroup {
	return batch.NewSequenceGroup(seqIDs, seqData, params)
}

// Batch is the immutable per-step description of the logits matrix.
type Batch = batch.Batch

// Descriptor validation errors (fatal upstream-batching defects).
var (
	ErrRowCountMismatch = batch.ErrRowCountMismatch
	ErrRowOrder         = batch.ErrRowOrder
)

// Package sampling implements the token-sampling stage of a batched
// inference step: given a [rows, vocab] logits matrix and a batch
// descriptor, it runs the per-request filter pipeline, draws next tokens per
// declared strategy, and extracts requested log-probability diagnostics.
package sampling

import (
	"math"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

// samplingEps is the tolerance used when deciding whether a parameter sits
// at its neutral default (and so whether its filter family runs at all).
const samplingEps = 1e-5

// SamplingTensors holds the batch-aligned parameter tensors: one entry per
// logits row (prompt-logprob rows of a group carry the group's values so
// whole-matrix transforms stay aligned).
type SamplingTensors struct {
	Temperatures        []float32
	TopPs               []float32
	TopKs               []int
	TopAs               []float32
	MinPs               []float32
	TFSs                []float32
	EtaCutoffs          []float32
	EpsilonCutoffs      []float32
	TypicalPs           []float32
	SmoothingFactors    []float32
	SmoothingCurves     []float32
	PresencePenalties   []float32
	FrequencyPenalties  []float32
	RepetitionPenalties []float32

	// PromptTokens and OutputTokens are per-row token-id tables padded
	// with vocabSize, consumed by penalty bin-counting. Built only when
	// the penalty family is active anywhere in the batch.
	PromptTokens *tensor.IntMatrix
	OutputTokens *tensor.IntMatrix
}

// activeFilters records, per filter family, whether any row in the batch
// activates it. An inactive family is skipped entirely, without per-row
// branching.
type activeFilters struct {
	penalties     bool
	topKTopP      bool
	topA          bool
	minP          bool
	tfs           bool
	etaCutoff     bool
	epsilonCutoff bool
	typicalP      bool
	quadratic     bool
}

// NewSamplingTensors expands the per-request policies of a batch into
// batch-aligned tensors for the given vocabulary size. Pure function of its
// inputs: reuse and invalidation are the caller's decision.
func NewSamplingTensors(b *batch.Batch, vocabSize int) (*SamplingTensors, activeFilters) {
	var active activeFilters
	st := &SamplingTensors{}

	// Padded penalty tables are only needed for sampled rows with
	// history; prompt-logprob rows get empty entries.
	var promptRows, outputRows [][]int

	appendRow := func(p *batch.SamplingParams, n int) {
		for i := 0; i < n; i++ {
			st.Temperatures = append(st.Temperatures, p.EffectiveTemperature())
			st.TopPs = append(st.TopPs, p.TopP)
			st.TopKs = append(st.TopKs, p.EffectiveTopK(vocabSize))
			st.TopAs = append(st.TopAs, p.TopA)
			st.MinPs = append(st.MinPs, p.MinP)
			st.TFSs = append(st.TFSs, p.TFS)
			st.EtaCutoffs = append(st.EtaCutoffs, p.EtaCutoff)
			st.EpsilonCutoffs = append(st.EpsilonCutoffs, p.EpsilonCutoff)
			st.TypicalPs = append(st.TypicalPs, p.TypicalP)
			st.SmoothingFactors = append(st.SmoothingFactors, p.SmoothingFactor)
			st.SmoothingCurves = append(st.SmoothingCurves, p.SmoothingCurve)
			st.PresencePenalties = append(st.PresencePenalties, p.PresencePenalty)
			st.FrequencyPenalties = append(st.FrequencyPenalties, p.FrequencyPenalty)
			st.RepetitionPenalties = append(st.RepetitionPenalties, p.RepetitionPenalty)
		}
	}

	for _, g := range b.Groups {
		p := g.Params
		markActive(p, vocabSize, &active)

		if g.IsPrompt && p.PromptLogprobs != nil {
			n := len(g.PromptLogprobIndices)
			appendRow(p, n)
			for i := 0; i < n; i++ {
				promptRows = append(promptRows, nil)
				outputRows = append(outputRows, nil)
			}
		}
		if g.DoSample {
			appendRow(p, len(g.SampleIndices))
			for _, seqID := range g.SeqIDs {
				data := g.SeqData[seqID]
				promptRows = append(promptRows, data.PromptTokenIDs)
				outputRows = append(outputRows, data.OutputTokenIDs)
			}
		}
	}

	if active.penalties {
		st.PromptTokens = padTokenRows(promptRows, vocabSize)
		st.OutputTokens = padTokenRows(outputRows, vocabSize)
	}
	return st, active
}

// penaltiesActive reports whether any penalty coefficient is off neutral.
func penaltiesActive(p *batch.SamplingParams) bool {
	return math.Abs(float64(p.PresencePenalty)) >= samplingEps ||
		math.Abs(float64(p.FrequencyPenalty)) >= samplingEps ||
		math.Abs(float64(p.RepetitionPenalty)-1.0) >= samplingEps
}

// topKTopPActive reports whether the row restricts the candidate set at all.
func topKTopPActive(p *batch.SamplingParams, vocabSize int) bool {
	return float64(p.TopP) < 1.0-samplingEps || p.EffectiveTopK(vocabSize) != vocabSize
}

// markActive ORs the policy's non-neutral families into the batch flags.
func markActive(p *batch.SamplingParams, vocabSize int, active *activeFilters) {
	if penaltiesActive(p) {
		active.penalties = true
	}
	if topKTopPActive(p, vocabSize) {
		active.topKTopP = true
	}
	if p.TopA > 0 {
		active.topA = true
	}
	if float64(p.MinP) > samplingEps {
		active.minP = true
	}
	if float64(p.TFS) < 1.0-samplingEps {
		active.tfs = true
	}
	if p.EtaCutoff > 0 {
		active.etaCutoff = true
	}
	if p.EpsilonCutoff > 0 {
		active.epsilonCutoff = true
	}
	if float64(p.TypicalP) < 1.0-samplingEps {
		active.typicalP = true
	}
	if float64(p.SmoothingFactor) > samplingEps {
		active.quadratic = true
	}
}

// padTokenRows packs ragged token-id rows into a dense table padded with
// vocabSize, the ignore bin for bin-counting.
func padTokenRows(rows [][]int, vocabSize int) *tensor.IntMatrix {
	maxLen := 0
	for _, r := range rows {
		if len(r) > maxLen {
			maxLen = len(r)
		}
	}
	out := tensor.NewIntMatrix(len(rows), maxLen, tensor.CPU)
	out.Fill(int32(vocabSize))
	for i, r := range rows {
		dst := out.Row(i)
		for j, id := range r {
			dst[j] = int32(id)
		}
	}
	return out
}

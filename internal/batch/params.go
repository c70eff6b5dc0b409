// Package batch describes one sampling step: which logit-matrix rows belong
// to which request and what sampling policy applies to each of them.
//
// The descriptor is host-resident metadata: everything here is computed
// before any matrix work so batch bookkeeping never stalls the numeric
// pipeline.
package batch

import "fmt"

// samplingEps is the tolerance used when deciding whether a parameter sits
// at its neutral default.
const samplingEps = 1e-5

// SamplingType identifies the draw strategy of a sequence group.
type SamplingType int

// Draw strategies, dispatched exhaustively by the sampler.
const (
	Greedy SamplingType = iota
	Random
	RandomSeed
	Beam
)

// AllSamplingTypes lists every strategy in dispatch order. The sampler
// iterates this slice so adding a strategy without a matching branch fails
// loudly instead of silently dropping rows.
var AllSamplingTypes = []SamplingType{Greedy, Random, RandomSeed, Beam}

// String returns a human-readable strategy name.
func (t SamplingType) String() string {
	switch t {
	case Greedy:
		return "greedy"
	case Random:
		return "random"
	case RandomSeed:
		return "random_seed"
	case Beam:
		return "beam"
	default:
		return fmt.Sprintf("SamplingType(%d)", int(t))
	}
}

// SamplingParams is the per-request sampling policy.
//
// Neutral defaults (see DefaultSamplingParams) make every filter a no-op;
// a filter family runs only if at least one row in the batch moves a
// parameter off its default.
type SamplingParams struct {
	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// Truncation / cutoff family.
	TopP          float32 // nucleus mass. 1.0 = disabled.
	TopK          int     // number of candidates. -1 or 0 = disabled.
	TopA          float32 // prob < TopA * max_prob^2 removed. 0 = disabled.
	MinP          float32 // prob < MinP * max_prob removed. 0 = disabled.
	TFS           float32 // tail-free sampling threshold. 1.0 = disabled.
	EtaCutoff     float32 // entropy-adaptive cutoff. 0 = disabled.
	EpsilonCutoff float32 // absolute probability cutoff. 0 = disabled.
	TypicalP      float32 // typical sampling mass. 1.0 = disabled.

	// Quadratic ("smoothing") transform.
	SmoothingFactor float32 // 0 = disabled.
	SmoothingCurve  float32 // cubic term weight, 1.0 = pure quadratic.

	// Penalty family. Frequency and presence follow the OpenAI definitions.
	PresencePenalty   float32 // 0 = disabled.
	FrequencyPenalty  float32 // 0 = disabled.
	RepetitionPenalty float32 // 1.0 = disabled.

	// MinTokens forces the listed stop tokens to -Inf until a sequence has
	// produced at least MinTokens output tokens.
	MinTokens    int
	StopTokenIDs []int

	// Requested diagnostics. nil = not requested; 0 = only the chosen
	// token; k > 0 = top-k neighbors as well.
	Logprobs       *int
	PromptLogprobs *int

	// BestOf is the number of parallel samples drawn in the prompt phase
	// (beam width when UseBeamSearch is set).
	BestOf        int
	UseBeamSearch bool

	// Seed selects a per-request deterministic random stream. nil = shared
	// unseeded stream.
	Seed *int64
}

// DefaultSamplingParams returns the neutral policy: greedy-compatible
// temperature 1.0 and every filter disabled.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		Temperature:       1.0,
		TopP:              1.0,
		TopK:              -1,
		TopA:              0.0,
		MinP:              0.0,
		TFS:               1.0,
		EtaCutoff:         0.0,
		EpsilonCutoff:     0.0,
		TypicalP:          1.0,
		SmoothingFactor:   0.0,
		SmoothingCurve:    1.0,
		PresencePenalty:   0.0,
		FrequencyPenalty:  0.0,
		RepetitionPenalty: 1.0,
		BestOf:            1,
	}
}

// Verify checks that every parameter is inside its valid range.
func (p *SamplingParams) Verify() error {
	if p.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %v", p.Temperature)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("top_p must be in [0, 1], got %v", p.TopP)
	}
	if p.TopK < -1 {
		return fmt.Errorf("top_k must be -1 (disabled) or non-negative, got %d", p.TopK)
	}
	if p.TopA < 0 {
		return fmt.Errorf("top_a must be non-negative, got %v", p.TopA)
	}
	if p.MinP < 0 || p.MinP > 1 {
		return fmt.Errorf("min_p must be in [0, 1], got %v", p.MinP)
	}
	if p.TFS <= 0 || p.TFS > 1 {
		return fmt.Errorf("tfs must be in (0, 1], got %v", p.TFS)
	}
	if p.EtaCutoff < 0 {
		return fmt.Errorf("eta_cutoff must be non-negative, got %v", p.EtaCutoff)
	}
	if p.EpsilonCutoff < 0 || p.EpsilonCutoff > 1 {
		return fmt.Errorf("epsilon_cutoff must be in [0, 1], got %v", p.EpsilonCutoff)
	}
	if p.TypicalP <= 0 || p.TypicalP > 1 {
		return fmt.Errorf("typical_p must be in (0, 1], got %v", p.TypicalP)
	}
	if p.RepetitionPenalty <= 0 {
		return fmt.Errorf("repetition_penalty must be positive, got %v", p.RepetitionPenalty)
	}
	if p.PresencePenalty < -2 || p.PresencePenalty > 2 {
		return fmt.Errorf("presence_penalty must be in [-2, 2], got %v", p.PresencePenalty)
	}
	if p.FrequencyPenalty < -2 || p.FrequencyPenalty > 2 {
		return fmt.Errorf("frequency_penalty must be in [-2, 2], got %v", p.FrequencyPenalty)
	}
	if p.MinTokens < 0 {
		return fmt.Errorf("min_tokens must be non-negative, got %d", p.MinTokens)
	}
	if p.BestOf < 1 {
		return fmt.Errorf("best_of must be at least 1, got %d", p.BestOf)
	}
	if p.Logprobs != nil && *p.Logprobs < 0 {
		return fmt.Errorf("logprobs must be non-negative, got %d", *p.Logprobs)
	}
	if p.PromptLogprobs != nil && *p.PromptLogprobs < 0 {
		return fmt.Errorf("prompt_logprobs must be non-negative, got %d", *p.PromptLogprobs)
	}
	if p.UseBeamSearch && p.BestOf < 2 {
		return fmt.Errorf("beam search requires best_of >= 2, got %d", p.BestOf)
	}
	return nil
}

// SamplingType derives the draw strategy from the policy: beam search wins,
// a temperature indistinguishable from zero means greedy, and a seed turns
// random into its deterministic variant.
func (p *SamplingParams) SamplingType() SamplingType {
	switch {
	case p.UseBeamSearch:
		return Beam
	case float64(p.Temperature) < samplingEps:
		return Greedy
	case p.Seed != nil:
		return RandomSeed
	default:
		return Random
	}
}

// EffectiveTemperature returns the divisor used for temperature scaling.
// Greedy rows report 1.0 so scaling never divides by zero; argmax is
// unaffected by any positive constant anyway.
func (p *SamplingParams) EffectiveTemperature() float32 {
	if float64(p.Temperature) < samplingEps {
		return 1.0
	}
	return p.Temperature
}

// EffectiveTopK clamps TopK to [1, vocabSize], with -1/0 meaning "keep all".
func (p *SamplingParams) EffectiveTopK(vocabSize int) int {
	k := p.TopK
	if k <= 0 || k > vocabSize {
		return vocabSize
	}
	return k
}

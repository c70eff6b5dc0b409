package sampling

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

// Fatal configuration errors. Both signal corrupted batch bookkeeping that
// could cross-assign tokens between requests, so the step is aborted rather
// than partially recovered.
var (
	ErrRowCountMismatch    = errors.New("sampling tensors do not match logits row count")
	ErrUnknownSamplingType = errors.New("unknown sampling type")
)

// Sampler selects the next token for each request in a batch.
//
// One call to Sample processes one fully-formed batch synchronously; the
// only cross-call state is the cached sampling-tensor bundle, whose reuse is
// governed entirely by the caller through Batch.ReuseSamplingTensors. A
// system pipelining concurrent steps must give each its own Sampler.
type Sampler struct {
	includeProbsTensor bool
	logger             *zap.Logger
	rng                *rand.Rand

	// Cached parameter tensors from the previous step; see Sample.
	cached       *SamplingTensors
	cachedActive activeFilters
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithProbsTensor makes the Sampler return the raw post-transform
// probability, log-probability and sampled-token tensors, and pins greedy
// probability rows to one-hot for lossless speculative-decoding
// verification.
func WithProbsTensor() Option {
	return func(s *Sampler) { s.includeProbsTensor = true }
}

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sampler) { s.logger = logger }
}

// WithSeed seeds the shared unseeded-random stream, for reproducible tests.
// Per-request seeds are unaffected; they live on the sequence group.
func WithSeed(seed int64) Option {
	return func(s *Sampler) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic stream by request
	}
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // sampling noise, not crypto
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample runs one sampling step over the logits matrix ([rows, vocab]).
//
// The descriptor is validated against the matrix before any numeric work;
// a mismatch is fatal. The filter pipeline then transforms logits in place,
// probabilities and log-probabilities are computed once, tokens are drawn
// per strategy, and diagnostics are extracted unless the batch opted out of
// host output.
func (s *Sampler) Sample(logits *tensor.Matrix, b *batch.Batch) (*Output, error) {
	if err := b.Validate(logits.Rows()); err != nil {
		s.logger.Error("batch descriptor rejected",
			zap.Int("rows", logits.Rows()),
			zap.Int("groups", len(b.Groups)),
			zap.Error(err))
		return nil, fmt.Errorf("sampler: %w", err)
	}
	vocabSize := logits.Cols()

	// Reuse the cached parameter tensors only on the caller's explicit
	// say-so, and never while penalties are active: penalty tensors embed
	// output-token history, which grows every decode step.
	if !b.ReuseSamplingTensors || s.cached == nil || s.cachedActive.penalties {
		st, active := NewSamplingTensors(b, vocabSize)
		s.cached = st
		s.cachedActive = active
	}
	st, active := s.cached, s.cachedActive

	if len(st.Temperatures) != logits.Rows() {
		s.logger.Error("sampling tensors misaligned",
			zap.Int("tensor_rows", len(st.Temperatures)),
			zap.Int("logits_rows", logits.Rows()))
		return nil, fmt.Errorf("sampler: %w: %d parameter rows for %d logits rows",
			ErrRowCountMismatch, len(st.Temperatures), logits.Rows())
	}

	s.applyPipeline(logits, b, st, active)

	// Probabilities and log-probabilities are computed once; every
	// downstream consumer works off these two matrices.
	probs := tensor.SoftmaxRows(logits)
	logprobs := tensor.LogSoftmaxRows(logits)

	results, tokensTensor, err := sampleTokens(probs, logprobs, b,
		s.includeProbsTensor, s.includeProbsTensor, s.rng)
	if err != nil {
		s.logger.Error("token draw failed", zap.Error(err))
		return nil, fmt.Errorf("sampler: %w", err)
	}

	out := &Output{}
	if s.includeProbsTensor {
		out.SampledTokenProbs = probs
		out.LogprobsTensor = logprobs
		out.SampledTokenIDs = tokensTensor
	}

	// Host materialization is deferred to this point and skipped entirely
	// when a downstream consumer takes the raw tensors instead.
	if !b.SkipHostOutput {
		promptLogprobs, sampleLogprobs := extractLogprobs(logprobs, b, results)
		out.Groups = buildOutput(b, results, promptLogprobs, sampleLogprobs)
	}

	s.logger.Debug("sampling step complete",
		zap.Int("rows", logits.Rows()),
		zap.Int("groups", len(b.Groups)),
		zap.Bool("reused_tensors", b.ReuseSamplingTensors))
	return out, nil
}

// applyPipeline runs the filter pipeline in its fixed order, skipping every
// family that is inactive across the whole batch.
func (s *Sampler) applyPipeline(logits *tensor.Matrix, b *batch.Batch, st *SamplingTensors, active activeFilters) {
	applyMinTokensPenalty(logits, b)
	if active.penalties {
		applyPenalties(logits, st)
	}
	applyTemperatures(logits, st.Temperatures)
	if active.topKTopP {
		applyTopKTopP(logits, st.TopPs, st.TopKs)
	}
	if active.topA {
		applyTopA(logits, st.TopAs)
	}
	if active.minP {
		applyMinP(logits, st.MinPs)
	}
	if active.tfs {
		applyTFS(logits, st.TFSs)
	}
	if active.etaCutoff {
		applyEtaCutoff(logits, st.EtaCutoffs)
	}
	if active.epsilonCutoff {
		applyEpsilonCutoff(logits, st.EpsilonCutoffs)
	}
	if active.typicalP {
		applyTypicalSampling(logits, st.TypicalPs)
	}
	if active.quadratic {
		applyQuadraticSmoothing(logits, st.SmoothingFactors, st.SmoothingCurves)
	}
}

package sampling

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

// sampleResult is one group's draw: chosen token ids zipped with the parent
// sequence positions they extend. Groups with do_sample=false get ([], []).
type sampleResult struct {
	tokenIDs  []int
	parentIDs []int
}

// sampleTokens partitions the to-be-sampled rows by declared strategy,
// draws within each partition, and returns one result per sequence group in
// batch order. When includeTokensTensor is set it also fills a [rows, 1]
// sampled-token-id column for zero-copy hand-off.
//
// Partitioning happens over host metadata before any matrix work, and every
// strategy draws over whole partitions, so no per-row synchronization point
// is introduced.
func sampleTokens(
	probs, logprobs *tensor.Matrix,
	b *batch.Batch,
	includeTokensTensor bool,
	modifyGreedyProbs bool,
	rng *rand.Rand,
) ([]sampleResult, *tensor.IntMatrix, error) {
	numGroups := len(b.Groups)

	// Host-side partition by strategy, preserving group order.
	groupIdx := make(map[batch.SamplingType][]int, len(batch.AllSamplingTypes))
	rowIdx := make(map[batch.SamplingType][]int, len(batch.AllSamplingTypes))
	for i, g := range b.Groups {
		t := g.Params.SamplingType()
		groupIdx[t] = append(groupIdx[t], i)
		rowIdx[t] = append(rowIdx[t], g.SampleIndices...)
	}

	var tokensTensor *tensor.IntMatrix
	if includeTokensTensor {
		tokensTensor = tensor.NewIntMatrix(probs.Rows(), 1, probs.Device())
		tokensTensor.Fill(-1)
	}

	results := make([]sampleResult, numGroups)
	covered := make([]bool, numGroups)

	for _, t := range batch.AllSamplingTypes {
		rows := rowIdx[t]
		groups := groupIdx[t]
		if len(groups) == 0 {
			continue
		}

		var partition []sampleResult
		var err error
		switch t {
		case batch.Greedy:
			partition, err = greedySample(b, groups, rows, probs, logprobs, tokensTensor, modifyGreedyProbs)
		case batch.Random, batch.RandomSeed:
			partition = randomSample(b, groups, rows, probs, tokensTensor, t == batch.RandomSeed, rng)
		case batch.Beam:
			partition, err = beamSample(b, groups, logprobs)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownSamplingType, t)
		}
		if err != nil {
			return nil, nil, err
		}
		for k, gi := range groups {
			results[gi] = partition[k]
			covered[gi] = true
		}
	}

	// Every group must have been claimed by exactly one branch above.
	for i, ok := range covered {
		if !ok {
			return nil, nil, fmt.Errorf("%w: group %d type %s not dispatched",
				ErrUnknownSamplingType, i, b.Groups[i].Params.SamplingType())
		}
	}
	return results, tokensTensor, nil
}

// greedySample takes the arg-max of each row. When the probability tensor is
// exposed downstream, the sampled row is pinned to a one-hot distribution so
// the sampling method is fully encoded in it; log-probabilities are left
// untouched so user-visible diagnostics stay faithful.
func greedySample(
	b *batch.Batch,
	groups, rows []int,
	probs, logprobs *tensor.Matrix,
	tokensTensor *tensor.IntMatrix,
	modifyProbs bool,
) ([]sampleResult, error) {
	samples := make([]int, len(rows))
	for k, r := range rows {
		samples[k] = tensor.ArgmaxRow(logprobs.Row(r))
		if tokensTensor != nil {
			tokensTensor.Row(r)[0] = int32(samples[k])
		}
		if modifyProbs {
			row := probs.Row(r)
			for j := range row {
				row[j] = 0
			}
			row[samples[k]] = 1.0
		}
	}

	results := make([]sampleResult, 0, len(groups))
	sampleIdx := 0
	for _, gi := range groups {
		g := b.Groups[gi]
		if !g.DoSample {
			results = append(results, sampleResult{tokenIDs: []int{}, parentIDs: []int{}})
			continue
		}
		if len(g.SeqIDs) != 1 {
			return nil, fmt.Errorf("greedy sampling group must have one sequence, got %d", len(g.SeqIDs))
		}
		results = append(results, sampleResult{
			tokenIDs:  []int{samples[sampleIdx]},
			parentIDs: []int{0},
		})
		sampleIdx++
	}
	return results, nil
}

// randomSample draws tokens through the exponential-noise transform:
// i.i.d. Exponential(1) noise per (row, draw, vocab) slot, divide the
// probability by the noise, take the arg-max. Equivalent to Gumbel-max
// multinomial sampling without a full-batch synchronization. Seeded groups
// consume their own deterministic stream in row order.
func randomSample(
	b *batch.Batch,
	groups, rows []int,
	probs *tensor.Matrix,
	tokensTensor *tensor.IntMatrix,
	seeded bool,
	rng *rand.Rand,
) []sampleResult {
	// Prompt-phase groups draw best_of samples per row.
	maxBestOf := 1
	for _, gi := range groups {
		g := b.Groups[gi]
		if g.IsPrompt && g.DoSample && g.Params.BestOf > maxBestOf {
			maxBestOf = g.Params.BestOf
		}
	}

	// draws[k][s] is the s-th sample of partition row k.
	draws := make([][]int, len(rows))
	rowPos := 0
	for _, gi := range groups {
		g := b.Groups[gi]
		if !g.DoSample {
			continue
		}
		gen := rng
		if seeded {
			gen = g.Generator
		}
		for range g.SampleIndices {
			r := rows[rowPos]
			row := probs.Row(r)
			draws[rowPos] = make([]int, maxBestOf)
			for s := 0; s < maxBestOf; s++ {
				draws[rowPos][s] = exponentialArgmax(row, gen)
			}
			if tokensTensor != nil {
				tokensTensor.Row(r)[0] = int32(draws[rowPos][0])
			}
			rowPos++
		}
	}

	results := make([]sampleResult, 0, len(groups))
	sampleIdx := 0
	for _, gi := range groups {
		g := b.Groups[gi]
		if !g.DoSample {
			results = append(results, sampleResult{tokenIDs: []int{}, parentIDs: []int{}})
			continue
		}
		if g.IsPrompt {
			// Prompt phase: best_of samples replicated from one parent.
			bestOf := g.Params.BestOf
			res := sampleResult{
				tokenIDs:  make([]int, bestOf),
				parentIDs: make([]int, bestOf),
			}
			copy(res.tokenIDs, draws[sampleIdx][:bestOf])
			results = append(results, res)
		} else {
			// Decode phase: one draw per live sequence.
			n := len(g.SeqIDs)
			res := sampleResult{
				tokenIDs:  make([]int, n),
				parentIDs: make([]int, n),
			}
			for j := 0; j < n; j++ {
				res.tokenIDs[j] = draws[sampleIdx+j][0]
				res.parentIDs[j] = j
			}
			results = append(results, res)
		}
		sampleIdx += len(g.SeqIDs)
	}
	return results
}

// exponentialArgmax returns argmax_j probs[j] / Exp_j with Exp_j i.i.d.
// Exponential(1) noise drawn from gen.
func exponentialArgmax(probs []float32, gen *rand.Rand) int {
	best := 0
	bestVal := float64(-1)
	for j, p := range probs {
		q := gen.ExpFloat64()
		v := float64(p) / q
		if v > bestVal {
			bestVal = v
			best = j
		}
	}
	return best
}

// beamSample selects 2*beam_width candidates per group: directly from the
// single parent row's log-probabilities in the prompt phase, and from the
// flattened parents x vocab matrix of cumulative scores in the decode
// phase. Over-selection by 2x leaves enough survivors after the caller
// prunes finished sequences.
func beamSample(b *batch.Batch, groups []int, logprobs *tensor.Matrix) ([]sampleResult, error) {
	vocabSize := logprobs.Cols()
	results := make([]sampleResult, 0, len(groups))

	for _, gi := range groups {
		g := b.Groups[gi]
		if !g.DoSample {
			results = append(results, sampleResult{tokenIDs: []int{}, parentIDs: []int{}})
			continue
		}
		beamWidth := g.Params.BestOf
		numCandidates := 2 * beamWidth

		if g.IsPrompt {
			if len(g.SeqIDs) != 1 {
				return nil, fmt.Errorf("beam search prompt group must have one sequence, got %d", len(g.SeqIDs))
			}
			top := tensor.TopK(logprobs.Row(g.SampleIndices[0]), numCandidates)
			res := sampleResult{
				tokenIDs:  top,
				parentIDs: make([]int, len(top)),
			}
			results = append(results, res)
			continue
		}

		// Decode phase: add each parent's running score and pick the
		// global top candidates across the flattened group.
		numParents := len(g.SeqIDs)
		flat := make([]float32, numParents*vocabSize)
		for j, seqID := range g.SeqIDs {
			cum := g.SeqData[seqID].CumulativeLogprob
			row := logprobs.Row(g.SampleIndices[j])
			dst := flat[j*vocabSize : (j+1)*vocabSize]
			for v, lp := range row {
				dst[v] = lp + cum
			}
		}
		top := tensor.TopK(flat, numCandidates)
		res := sampleResult{
			tokenIDs:  make([]int, len(top)),
			parentIDs: make([]int, len(top)),
		}
		for k, flatIdx := range top {
			res.parentIDs[k] = flatIdx / vocabSize
			res.tokenIDs[k] = flatIdx % vocabSize
		}
		results = append(results, res)
	}
	return results, nil
}

package sampling

import (
	"math"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

var negInf = float32(math.Inf(-1))

// The filter pipeline: an ordered sequence of in-place logit transforms,
// vectorized across the batch. The order is fixed for compatibility with
// existing request semantics; see applyPipeline in sampler.go.

// applyMinTokensPenalty forces the listed stop tokens to -Inf for every
// sampled row whose sequence has not yet produced min_tokens output tokens.
// Runs before all other filters so stop tokens cannot resurface through a
// later truncation stage.
func applyMinTokensPenalty(logits *tensor.Matrix, b *batch.Batch) {
	for _, g := range b.Groups {
		if !g.DoSample {
			continue
		}
		p := g.Params
		if p.MinTokens <= 0 || len(p.StopTokenIDs) == 0 {
			continue
		}
		for j, seqID := range g.SeqIDs {
			if len(g.SeqData[seqID].OutputTokenIDs) >= p.MinTokens {
				continue
			}
			row := logits.Row(g.SampleIndices[j])
			for _, stop := range p.StopTokenIDs {
				if stop >= 0 && stop < len(row) {
					row[stop] = negInf
				}
			}
		}
	}
}

// applyPenalties applies repetition, frequency and presence penalties using
// bin counts over the padded prompt/output token tables. Repetition divides
// positive logits and multiplies non-positive ones, restricted to tokens
// seen in the prompt or prior output; frequency and presence follow the
// OpenAI definitions.
func applyPenalties(logits *tensor.Matrix, st *SamplingTensors) {
	vocabSize := logits.Cols()
	promptCounts := tensor.BinCountRows(st.PromptTokens, vocabSize)
	outputCounts := tensor.BinCountRows(st.OutputTokens, vocabSize)

	for i := 0; i < logits.Rows(); i++ {
		row := logits.Row(i)
		prompt := promptCounts.Row(i)
		output := outputCounts.Row(i)
		rep := st.RepetitionPenalties[i]
		freq := st.FrequencyPenalties[i]
		pres := st.PresencePenalties[i]

		for j := range row {
			seen := prompt[j] > 0 || output[j] > 0
			if seen && rep != 1.0 {
				if row[j] > 0 {
					row[j] /= rep
				} else {
					row[j] *= rep
				}
			}
			if output[j] > 0 {
				row[j] -= freq * float32(output[j])
				row[j] -= pres
			}
		}
	}
}

// applyTemperatures divides each row by its temperature. Greedy rows carry
// an effective temperature of 1.0, so no division by zero can occur here.
func applyTemperatures(logits *tensor.Matrix, temperatures []float32) {
	for i := 0; i < logits.Rows(); i++ {
		t := temperatures[i]
		if t == 1.0 {
			continue
		}
		row := logits.Row(i)
		for j := range row {
			row[j] /= t
		}
	}
}

// applyTopKTopP truncates each row to its k highest logits, then to the
// smallest nucleus reaching top_p probability mass. The row is sorted
// ascending once; the top-p mask removes entries whose cumulative mass from
// the bottom stays within 1-p, always exempting the highest entry.
func applyTopKTopP(logits *tensor.Matrix, topPs []float32, topKs []int) {
	vocabSize := logits.Cols()
	for i := 0; i < logits.Rows(); i++ {
		k, p := topKs[i], topPs[i]
		if k == vocabSize && float64(p) >= 1.0-samplingEps {
			continue
		}
		row := logits.Row(i)
		sorted, idx := tensor.SortRow(row, false)

		// Top-k: everything strictly below the k-th largest value goes.
		threshold := sorted[vocabSize-k]
		for pos := 0; pos < vocabSize; pos++ {
			if sorted[pos] < threshold {
				sorted[pos] = negInf
			}
		}

		// Top-p over the sorted order: cumulative mass from the low end.
		probs := tensor.SoftmaxRow(sorted)
		tensor.CumsumInPlace(probs)
		for pos := 0; pos < vocabSize-1; pos++ { // last entry always survives
			if probs[pos] <= 1.0-p {
				sorted[pos] = negInf
			}
		}

		// Unsort back to vocabulary order.
		for pos, j := range idx {
			row[j] = sorted[pos]
		}
	}
}

// applyTopA removes tokens with probability below top_a * max_prob^2.
func applyTopA(logits *tensor.Matrix, topAs []float32) {
	for i := 0; i < logits.Rows(); i++ {
		a := topAs[i]
		if a <= 0 {
			continue
		}
		row := logits.Row(i)
		probs := tensor.SoftmaxRow(row)
		maxProb := tensor.MaxRow(probs)
		threshold := a * maxProb * maxProb
		for j := range row {
			if probs[j] < threshold {
				row[j] = negInf
			}
		}
	}
}

// applyMinP removes tokens with probability below min_p * max_prob.
func applyMinP(logits *tensor.Matrix, minPs []float32) {
	for i := 0; i < logits.Rows(); i++ {
		mp := minPs[i]
		if float64(mp) <= samplingEps {
			continue
		}
		row := logits.Row(i)
		probs := tensor.SoftmaxRow(row)
		threshold := mp * tensor.MaxRow(probs)
		for j := range row {
			if probs[j] < threshold {
				row[j] = negInf
			}
		}
	}
}

// applyTFS implements tail-free sampling: tokens are removed once the
// cumulative normalized curvature (absolute second derivative) of the
// descending probability curve exceeds the threshold. The top and bottom
// boundary tokens are exempted by construction.
func applyTFS(logits *tensor.Matrix, tfss []float32) {
	vocabSize := logits.Cols()
	// The second derivative needs three points; smaller vocabularies have
	// no tail to trim.
	if vocabSize < 3 {
		return
	}
	for i := 0; i < logits.Rows(); i++ {
		threshold := tfss[i]
		if float64(threshold) >= 1.0-samplingEps {
			continue
		}
		row := logits.Row(i)
		sorted, idx := tensor.SortRow(row, true)
		probs := tensor.SoftmaxRow(sorted)

		// Absolute second discrete derivative of the probability curve.
		d2 := make([]float32, vocabSize-2)
		sum := float32(0)
		for pos := range d2 {
			d := probs[pos+2] - 2*probs[pos+1] + probs[pos]
			if d < 0 {
				d = -d
			}
			d2[pos] = d
			sum += d
		}
		if sum > 0 {
			for pos := range d2 {
				d2[pos] /= sum
			}
		}
		tensor.CumsumInPlace(d2)

		// d2[pos] guards sorted position pos+1; position 0 is always kept
		// and the final position always removed.
		for pos, cum := range d2 {
			if cum > threshold {
				sorted[pos+1] = negInf
			}
		}
		sorted[vocabSize-1] = negInf

		for pos, j := range idx {
			row[j] = sorted[pos]
		}
	}
}

// applyEtaCutoff removes tokens with probability below
// min(eta, sqrt(eta) * exp(-H)) where H is the row entropy. The arg-max
// token is always exempted.
func applyEtaCutoff(logits *tensor.Matrix, etaCutoffs []float32) {
	for i := 0; i < logits.Rows(); i++ {
		eta := float64(etaCutoffs[i])
		if eta <= 0 {
			continue
		}
		row := logits.Row(i)
		shifted := logSoftmaxRow(row)
		probs := tensor.SoftmaxRow(row)

		negEntropy := float64(0)
		for j, p := range probs {
			if p > 0 {
				negEntropy += float64(p) * float64(shifted[j])
			}
		}
		eps := float32(math.Min(eta, math.Sqrt(eta)*math.Exp(negEntropy)))

		keep := tensor.ArgmaxRow(probs)
		for j := range row {
			if j != keep && probs[j] < eps {
				row[j] = negInf
			}
		}
	}
}

// applyEpsilonCutoff removes tokens below a fixed probability threshold,
// exempting the arg-max token.
func applyEpsilonCutoff(logits *tensor.Matrix, epsilonCutoffs []float32) {
	for i := 0; i < logits.Rows(); i++ {
		eps := epsilonCutoffs[i]
		if eps <= 0 {
			continue
		}
		row := logits.Row(i)
		probs := tensor.SoftmaxRow(row)
		keep := tensor.ArgmaxRow(probs)
		for j := range row {
			if j != keep && probs[j] < eps {
				row[j] = negInf
			}
		}
	}
}

// applyTypicalSampling orders tokens by absolute deviation of their
// surprisal from the row's expected surprisal and removes tokens once the
// cumulative probability in that order reaches typical_p. The least
// deviating token is always exempted.
func applyTypicalSampling(logits *tensor.Matrix, typicalPs []float32) {
	for i := 0; i < logits.Rows(); i++ {
		tp := typicalPs[i]
		if float64(tp) >= 1.0-samplingEps {
			continue
		}
		row := logits.Row(i)
		shifted := logSoftmaxRow(row)
		probs := tensor.SoftmaxRow(row)

		negEntropy := float32(0)
		for j, p := range probs {
			if p > 0 {
				negEntropy += p * shifted[j]
			}
		}
		deviations := make([]float32, len(row))
		for j := range deviations {
			d := negEntropy - shifted[j]
			if d < 0 {
				d = -d
			}
			deviations[j] = d
		}
		_, idx := tensor.SortRow(deviations, false)

		cum := float32(0)
		for pos, j := range idx {
			cum += probs[j]
			if cum >= tp && pos > 0 { // keep at least the least deviating
				row[j] = negInf
			}
		}
	}
}

// applyQuadraticSmoothing replaces each finite logit l with
// -(k*f*(l-max)^2) + s*f*(l-max)^3 + max for rows with a positive smoothing
// factor, where k=(3-curve)/2 and s=(curve-1)/2. The cubic form is kept
// exactly as shipped; rows with factor <= 0 and -Inf entries are untouched.
func applyQuadraticSmoothing(logits *tensor.Matrix, factors, curves []float32) {
	for i := 0; i < logits.Rows(); i++ {
		f := factors[i]
		if float64(f) <= samplingEps {
			continue
		}
		curve := curves[i]
		k := (3 - curve) / 2
		s := (curve - 1) / 2

		row := logits.Row(i)
		maxVal := tensor.MaxRow(row)
		for j, v := range row {
			if math.IsInf(float64(v), -1) {
				continue
			}
			d := v - maxVal
			row[j] = -(k*f*d*d) + s*f*d*d*d + maxVal
		}
	}
}

// logSoftmaxRow returns the log-softmax of a single row as a new slice.
func logSoftmaxRow(row []float32) []float32 {
	out := make([]float32, len(row))
	maxVal := tensor.MaxRow(row)
	sum := float64(0)
	for _, v := range row {
		if !math.IsInf(float64(v), -1) {
			sum += math.Exp(float64(v - maxVal))
		}
	}
	logSum := float32(math.Log(sum))
	for j, v := range row {
		if math.IsInf(float64(v), -1) {
			out[j] = negInf
		} else {
			out[j] = v - maxVal - logSum
		}
	}
	return out
}

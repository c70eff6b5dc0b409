package sampling

import (
	"math"

	"github.com/born-ml/sampler/internal/batch"
	"github.com/born-ml/sampler/internal/tensor"
)

// Logprob is one token's log-probability diagnostic: the value itself and
// the token's 1-indexed rank within its row (ties share a rank; rank of the
// row maximum is always 1). Rank 0 means "not computed".
type Logprob struct {
	Logprob float32
	Rank    int
}

// TokenLogprobs maps token ids to their diagnostics for one position.
type TokenLogprobs map[int]Logprob

// PromptLogprobs holds one entry per prompt-logprob row of a group.
type PromptLogprobs []TokenLogprobs

// SampleLogprobs holds one entry per sampled token of a group.
type SampleLogprobs []TokenLogprobs

// topkRow is the cached top-k slice of one logprob row.
type topkRow struct {
	ids  []int
	vals []float32
}

// extractLogprobs computes the requested diagnostics from the
// log-probability matrix: the chosen/actual token's logprob and rank per
// query row, plus top-k neighbors where a positive count was requested.
// The batch-wide k is the maximum over all rows; each request slices it
// down. Host transfers are conceptually batched: all selected values, ranks
// and top-k rows are gathered before the per-group assembly loop.
func extractLogprobs(
	logprobs *tensor.Matrix,
	b *batch.Batch,
	results []sampleResult,
) ([]PromptLogprobs, []SampleLogprobs) {
	// Pass 1 over host metadata: which rows need values, for which tokens.
	var queryRows []int
	var nextTokens []int
	largestK := -1
	useBeam := false

	for gi, g := range b.Groups {
		p := g.Params
		if g.IsPrompt && p.PromptLogprobs != nil {
			if *p.PromptLogprobs > largestK {
				largestK = *p.PromptLogprobs
			}
			queryRows = append(queryRows, g.PromptLogprobIndices...)
			nextTokens = append(nextTokens, g.NextPromptTokens()...)
		}
		if g.DoSample {
			res := results[gi]
			base := 0
			if len(g.SampleIndices) > 0 {
				base = g.SampleIndices[0]
			}
			for k, parentID := range res.parentIDs {
				queryRows = append(queryRows, base+parentID)
				nextTokens = append(nextTokens, res.tokenIDs[k])
			}
			if p.Logprobs != nil && *p.Logprobs > largestK {
				largestK = *p.Logprobs
			}
			useBeam = useBeam || p.UseBeamSearch
		}
	}

	promptOut := make([]PromptLogprobs, len(b.Groups))
	sampleOut := make([]SampleLogprobs, len(b.Groups))
	if len(queryRows) == 0 {
		return promptOut, sampleOut
	}

	// Pass 2: gather values, ranks and top-k rows.
	var selected []float32
	var ranks []int
	topkByRow := map[int]topkRow{}

	if largestK >= 0 || useBeam {
		hostLogprobs := logprobs.ToHost()
		selected = make([]float32, len(queryRows))
		ranks = make([]int, len(queryRows))
		for i, r := range queryRows {
			row := hostLogprobs.Row(r)
			tok := nextTokens[i]
			selected[i] = row[tok]
			ranks[i] = rankOf(row, tok)

			if largestK > 0 {
				if _, ok := topkByRow[r]; !ok {
					ids := tensor.TopK(row, largestK)
					vals := make([]float32, len(ids))
					for k, id := range ids {
						vals[k] = row[id]
					}
					topkByRow[r] = topkRow{ids: ids, vals: vals}
				}
			}
		}
	}

	// Pass 3: slice per group, in the same order as pass 1.
	cursor := 0
	for gi, g := range b.Groups {
		p := g.Params

		if g.IsPrompt && p.PromptLogprobs != nil {
			numK := *p.PromptLogprobs
			tokens := g.NextPromptTokens()
			plp := make(PromptLogprobs, 0, len(tokens))
			for i, tok := range tokens {
				entry := TokenLogprobs{
					tok: {Logprob: selected[cursor+i], Rank: ranks[cursor+i]},
				}
				addTopK(entry, topkByRow[g.PromptLogprobIndices[i]], numK)
				plp = append(plp, entry)
			}
			promptOut[gi] = plp
			cursor += len(tokens)
		}

		if !g.DoSample {
			sampleOut[gi] = SampleLogprobs{}
			continue
		}
		res := results[gi]
		slp := make(SampleLogprobs, 0, len(res.tokenIDs))

		if p.Logprobs == nil && !p.UseBeamSearch {
			// Not requested: a dummy +Inf entry per sampled token.
			for _, tok := range res.tokenIDs {
				slp = append(slp, TokenLogprobs{tok: {Logprob: float32(math.Inf(1))}})
			}
			cursor += len(res.tokenIDs)
		} else {
			numK := 0
			if p.Logprobs != nil {
				numK = *p.Logprobs
			}
			base := 0
			if len(g.SampleIndices) > 0 {
				base = g.SampleIndices[0]
			}
			for k, tok := range res.tokenIDs {
				entry := TokenLogprobs{
					tok: {Logprob: selected[cursor+k], Rank: ranks[cursor+k]},
				}
				addTopK(entry, topkByRow[base+res.parentIDs[k]], numK)
				slp = append(slp, entry)
			}
			cursor += len(res.tokenIDs)
		}
		sampleOut[gi] = slp
	}
	return promptOut, sampleOut
}

// addTopK merges the first numK top-k neighbors into the entry. Top-k rows
// are already ordered by probability, so ranks run 1..numK.
func addTopK(entry TokenLogprobs, tk topkRow, numK int) {
	if numK <= 0 {
		return
	}
	n := numK
	if n > len(tk.ids) {
		n = len(tk.ids)
	}
	for k := 0; k < n; k++ {
		entry[tk.ids[k]] = Logprob{Logprob: tk.vals[k], Rank: k + 1}
	}
}

// rankOf returns 1 + the number of entries strictly greater than row[tok],
// so tied tokens share a rank and the row maximum is rank 1.
func rankOf(row []float32, tok int) int {
	val := row[tok]
	rank := 1
	for _, v := range row {
		if v > val {
			rank++
		}
	}
	return rank
}

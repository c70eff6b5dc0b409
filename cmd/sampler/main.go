// Package main provides the sampler CLI: a scenario runner that exercises
// one batched sampling step over synthetic logits.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/sampler/batch"
	"github.com/born-ml/sampler/internal/logger"
	"github.com/born-ml/sampler/sampler"
	"github.com/born-ml/sampler/tensor"
)

const version = "v0.1.0-dev"

// scenario is the TOML description of one sampling step.
type scenario struct {
	VocabSize int       `toml:"vocab-size"`
	Seed      int64     `toml:"seed"`
	Requests  []request `toml:"request"`
}

// request is one decode-phase sequence group in the scenario.
type request struct {
	Prompt            string   `toml:"prompt"`
	Output            string   `toml:"output"`
	Temperature       float32  `toml:"temperature"`
	TopP              *float32 `toml:"top-p"`
	TopK              *int     `toml:"top-k"`
	MinP              *float32 `toml:"min-p"`
	RepetitionPenalty *float32 `toml:"repetition-penalty"`
	PresencePenalty   *float32 `toml:"presence-penalty"`
	FrequencyPenalty  *float32 `toml:"frequency-penalty"`
	Logprobs          *int     `toml:"logprobs"`
	Seed              *int64   `toml:"request-seed"`
}

type runCommander struct {
	configPath string
	debug      bool
}

func main() {
	cmder := &runCommander{}

	root := &cobra.Command{
		Use:   "sampler",
		Short: "Run a batched sampling step over synthetic logits",
		Long: `sampler loads a TOML scenario describing a batch of requests,
tokenizes their prompt/output text with tiktoken (cl100k_base), synthesizes
a logits matrix, and runs one sampling step, reporting the chosen token and
requested log-probability diagnostics per request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run()
		},
	}
	root.Flags().StringVarP(&cmder.configPath, "config", "c", "scenario.toml", "Path to scenario TOML")
	root.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sampler %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *runCommander) run() error {
	log := logger.New(c.debug)
	defer log.Sync() //nolint:errcheck // stdout sync failure is uninteresting

	var sc scenario
	if _, err := toml.DecodeFile(c.configPath, &sc); err != nil {
		return fmt.Errorf("could not load scenario %s: %w", c.configPath, err)
	}
	if len(sc.Requests) == 0 {
		return fmt.Errorf("scenario %s declares no requests", c.configPath)
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return fmt.Errorf("could not load tokenizer: %w", err)
	}
	vocabSize := sc.VocabSize
	if vocabSize <= 0 {
		vocabSize = 100352 // padded cl100k_base vocabulary
	}

	b, seqIDs, requestIDs := buildBatch(&sc, enc)
	logits := synthesizeLogits(len(sc.Requests), vocabSize, sc.Seed)

	log.Info("running sampling step",
		zap.Int("requests", len(sc.Requests)),
		zap.Int("vocab_size", vocabSize),
		zap.Int64("seed", sc.Seed))

	s := sampler.New(sampler.WithLogger(log), sampler.WithSeed(sc.Seed))
	out, err := s.Sample(logits, b)
	if err != nil {
		return fmt.Errorf("sampling step failed: %w", err)
	}

	for gi, group := range out.Groups {
		sample := group.Samples[0]
		lp := sample.Logprobs[sample.OutputToken]
		log.Info("sampled token",
			zap.String("request_id", requestIDs[gi]),
			zap.Int64("seq_id", seqIDs[gi]),
			zap.Int("token", sample.OutputToken),
			zap.String("text", enc.Decode([]int{sample.OutputToken})),
			zap.Float32("logprob", lp.Logprob),
			zap.Int("rank", lp.Rank),
			zap.Int("neighbors", len(sample.Logprobs)-1))
	}
	return nil
}

// buildBatch turns scenario requests into a decode-phase batch descriptor:
// one sequence group per request, one to-be-sampled row each.
func buildBatch(sc *scenario, enc *tiktoken.Tiktoken) (*batch.Batch, []int64, []string) {
	groups := make([]*batch.SequenceGroup, 0, len(sc.Requests))
	seqIDs := make([]int64, 0, len(sc.Requests))
	requestIDs := make([]string, 0, len(sc.Requests))

	for i, req := range sc.Requests {
		params := batch.DefaultSamplingParams()
		params.Temperature = req.Temperature
		if req.TopP != nil {
			params.TopP = *req.TopP
		}
		if req.TopK != nil {
			params.TopK = *req.TopK
		}
		if req.MinP != nil {
			params.MinP = *req.MinP
		}
		if req.RepetitionPenalty != nil {
			params.RepetitionPenalty = *req.RepetitionPenalty
		}
		if req.PresencePenalty != nil {
			params.PresencePenalty = *req.PresencePenalty
		}
		if req.FrequencyPenalty != nil {
			params.FrequencyPenalty = *req.FrequencyPenalty
		}
		params.Logprobs = req.Logprobs
		params.Seed = req.Seed

		seqID := int64(i)
		data := &batch.SequenceData{
			PromptTokenIDs: enc.Encode(req.Prompt, nil, nil),
			OutputTokenIDs: enc.Encode(req.Output, nil, nil),
		}
		group := batch.NewSequenceGroup(
			[]int64{seqID},
			map[int64]*batch.SequenceData{seqID: data},
			&params,
		)
		group.SampleIndices = []int{i}
		groups = append(groups, group)
		seqIDs = append(seqIDs, seqID)
		requestIDs = append(requestIDs, uuid.NewString())
	}

	return &batch.Batch{Groups: groups}, seqIDs, requestIDs
}

// synthesizeLogits fills a [rows, vocab] matrix with seeded Gaussian noise,
// standing in for a model's projection output.
func synthesizeLogits(rows, vocabSize int, seed int64) *tensor.Matrix {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic data
	logits := tensor.NewMatrix(rows, vocabSize, tensor.CPU)
	data := logits.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64()) * 4
	}
	return logits
}

// Package inference drives batched generation over a labeled or unlabeled
// input file: LOAD_CHECKPOINT -> LOAD_INPUT -> per batch ENCODE -> GENERATE ->
// DECODE -> APPEND_TO_OUTPUT -> DONE, with an optional direct evaluation of
// the decoded predictions against gold labels.
package inference

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Toma62299781/Generative-ABSA/absa"
	"github.com/Toma62299781/Generative-ABSA/checkpoints"
	"github.com/Toma62299781/Generative-ABSA/datasets"
	"github.com/Toma62299781/Generative-ABSA/eval"
	"github.com/Toma62299781/Generative-ABSA/generation"
	"github.com/Toma62299781/Generative-ABSA/tokenizers"
	"github.com/Toma62299781/Generative-ABSA/tokenizers/sentencepiece"
)

// Config holds the run configuration. Zero fields get defaults from
// the checkpoint hyperparameters or the package defaults.
type Config struct {
	Task          absa.Task
	Paradigm      absa.Paradigm
	FilePath      string // input data file
	CheckpointDir string
	ResultsPath   string // decoded predictions, one line per example, appended

	BatchSize       int
	MaxSeqLength    int
	MaxOutputLength int

	// ScoreWorkers bounds the evaluation worker pool; <=1 scores sequentially.
	ScoreWorkers int

	// EncodeCacheBytes sizes the tokenizer encode cache; 0 disables it.
	EncodeCacheBytes int
}

const (
	defaultBatchSize       = 32
	defaultMaxSeqLength    = 128
	defaultMaxOutputLength = 128
)

// Result is the outcome of a completed run.
type Result struct {
	RunID       string
	Predictions []string // decoded prediction per input example, in order

	// Report is the direct-evaluation result; nil when the input file has
	// unlabeled examples.
	Report *eval.Report
}

// Runner executes inference runs. Construct with New, optionally override the
// tokenizer, then call Run.
type Runner struct {
	cfg       Config
	service   generation.Service
	tokenizer tokenizers.Tokenizer
}

// New creates a Runner over the given generation service.
func New(cfg Config, service generation.Service) *Runner {
	return &Runner{cfg: cfg, service: service}
}

// WithTokenizer overrides the tokenizer instead of loading the checkpoint's
// SentencePiece model. It returns the modified Runner, for chaining.
func (r *Runner) WithTokenizer(tok tokenizers.Tokenizer) *Runner {
	r.tokenizer = tok
	return r
}

// Run performs one full inference pass. A generation failure on any batch
// aborts the run; results of earlier batches remain appended to the results
// file.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.cfg
	if err := absa.Validate(cfg.Task, cfg.Paradigm); err != nil {
		return nil, err
	}
	if r.service == nil {
		return nil, errors.New("runner requires a generation service")
	}
	runID := uuid.NewString()

	// LOAD_CHECKPOINT. The run must not proceed without a valid model.
	ckpt, err := checkpoints.Load(cfg.CheckpointDir)
	if err != nil {
		return nil, errors.Wrap(err, "loading checkpoint")
	}
	defer ckpt.Close()
	applyHParamDefaults(&cfg, ckpt.HParams)
	klog.Infof("run %s: loaded checkpoint from %s (%d weight tensors)",
		runID, cfg.CheckpointDir, len(ckpt.Weights().TensorNames()))

	tok := r.tokenizer
	if tok == nil {
		path, err := ckpt.TokenizerPath()
		if err != nil {
			return nil, err
		}
		sp, err := sentencepiece.New(path)
		if err != nil {
			return nil, errors.Wrap(err, "loading checkpoint tokenizer")
		}
		tok = sp
	}
	if cfg.EncodeCacheBytes > 0 {
		tok = tokenizers.NewCached(tok, cfg.EncodeCacheBytes)
	}

	// LOAD_INPUT.
	examples, err := datasets.ReadLineExamples(cfg.FilePath, cfg.Task)
	if err != nil {
		return nil, errors.Wrap(err, "loading input")
	}
	if len(examples) == 0 {
		return nil, errors.Errorf("input file %q has no examples", cfg.FilePath)
	}
	builder, err := datasets.NewBuilder(tok, cfg.Task, cfg.Paradigm, cfg.MaxSeqLength)
	if err != nil {
		return nil, err
	}
	items, err := builder.BuildAll(examples)
	if err != nil {
		return nil, errors.Wrap(err, "building dataset")
	}

	// Batches are processed strictly in input order, so output lines match
	// input examples one to one.
	predictions := make([]string, 0, len(items))
	for start := 0; start < len(items); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(items))
		batch := items[start:end]

		req := generation.Request{
			SourceIDs:     make([][]int, len(batch)),
			AttentionMask: make([][]int, len(batch)),
			MaxLength:     cfg.MaxOutputLength,
		}
		for i, item := range batch {
			req.SourceIDs[i] = item.Source.IDs
			req.AttentionMask[i] = item.Source.Mask
		}

		resp, err := r.service.Generate(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "generation failed on batch %d-%d", start, end-1)
		}

		decoded := make([]string, len(resp.OutputIDs))
		for i, ids := range resp.OutputIDs {
			decoded[i] = tokenizers.DecodeSkipSpecial(tok, ids)
		}
		if err := appendLines(cfg.ResultsPath, decoded); err != nil {
			return nil, err
		}
		predictions = append(predictions, decoded...)
		klog.V(1).Infof("run %s: %d/%d examples done", runID, end, len(items))
	}

	result := &Result{RunID: runID, Predictions: predictions}
	if allLabeled(examples) {
		report, err := r.evaluate(examples, predictions, cfg)
		if err != nil {
			return nil, err
		}
		result.Report = report
		klog.Infof("run %s: precision=%.4f recall=%.4f f1=%.4f",
			runID, report.Corpus.Precision, report.Corpus.Recall, report.Corpus.F1)
	} else {
		klog.Infof("run %s: input has unlabeled examples, skipping evaluation", runID)
	}
	return result, nil
}

// evaluate parses each decoded prediction back into tuples and scores it
// against the gold tuple set.
func (r *Runner) evaluate(examples []datasets.Example, predictions []string, cfg Config) (*eval.Report, error) {
	pairs := make([]eval.Pair, len(examples))
	for i, ex := range examples {
		gold, err := absa.Tuples(ex.Tokens, ex.Labels, cfg.Task)
		if err != nil {
			return nil, errors.Wrapf(err, "gold labels of example #%d", i)
		}
		pairs[i] = eval.Pair{
			Gold: gold,
			Pred: absa.Parse(predictions[i], ex.Sentence, cfg.Task, cfg.Paradigm),
		}
	}
	return eval.CorpusParallel(pairs, cfg.ScoreWorkers)
}

func allLabeled(examples []datasets.Example) bool {
	for _, ex := range examples {
		if ex.Labels == nil {
			return false
		}
	}
	return true
}

// applyHParamDefaults fills unset config fields from the checkpoint's saved
// hyperparameters, falling back to package defaults.
func applyHParamDefaults(cfg *Config, hparams checkpoints.HParams) {
	if cfg.BatchSize <= 0 {
		if n := hparams.Get("eval_batch_size").Int(); n > 0 {
			cfg.BatchSize = int(n)
		} else {
			cfg.BatchSize = defaultBatchSize
		}
	}
	if cfg.MaxSeqLength <= 0 {
		if n := hparams.Get("max_seq_length").Int(); n > 0 {
			cfg.MaxSeqLength = int(n)
		} else {
			cfg.MaxSeqLength = defaultMaxSeqLength
		}
	}
	if cfg.MaxOutputLength <= 0 {
		cfg.MaxOutputLength = defaultMaxOutputLength
	}
}

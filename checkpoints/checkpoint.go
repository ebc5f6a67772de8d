// Package checkpoints loads fine-tuned model checkpoints: a directory holding
// the flat hyperparameter mapping the model was trained with, the SentencePiece
// tokenizer model, and the model weights in safetensors format. The weights are
// an opaque blob handed to the generation service; the pipeline itself only
// needs the hyperparameters and the tokenizer.
package checkpoints

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Well-known file names inside a checkpoint directory.
const (
	HParamsFile   = "hparams.yaml"
	WeightsFile   = "model.safetensors"
	TokenizerFile = "tokenizer.model"
)

// HParams is the flat hyperparameter mapping saved with a checkpoint.
type HParams map[string]Value

// Get returns the value for key, or a zero Value when absent.
func (h HParams) Get(key string) Value {
	return h[key]
}

// Checkpoint is a loaded fine-tuned checkpoint.
type Checkpoint struct {
	Dir     string
	HParams HParams

	weights *Weights
}

// Load opens a checkpoint directory. A missing or corrupt checkpoint is a
// startup error: the run must not proceed without a valid model.
func Load(dir string) (*Checkpoint, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint directory %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("checkpoint path %q is not a directory", dir)
	}

	hparams, err := loadHParams(filepath.Join(dir, HParamsFile))
	if err != nil {
		return nil, err
	}
	weights, err := openWeights(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Dir:     dir,
		HParams: hparams,
		weights: weights,
	}, nil
}

// Close releases the memory-mapped weights.
func (c *Checkpoint) Close() error {
	return c.weights.Close()
}

// Weights gives access to the checkpoint's tensors.
func (c *Checkpoint) Weights() *Weights {
	return c.weights
}

// TokenizerPath returns the path of the checkpoint's tokenizer.model file,
// verifying it exists.
func (c *Checkpoint) TokenizerPath() (string, error) {
	path := filepath.Join(c.Dir, TokenizerFile)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "checkpoint %q has no tokenizer model", c.Dir)
	}
	return path, nil
}

func loadHParams(path string) (HParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read hyperparameters %q", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse hyperparameters %q", path)
	}
	hparams := make(HParams, len(raw))
	for k, v := range raw {
		hparams[k] = Value{data: v}
	}
	return hparams, nil
}

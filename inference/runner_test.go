package inference

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toma62299781/Generative-ABSA/absa"
	"github.com/Toma62299781/Generative-ABSA/checkpoints"
	"github.com/Toma62299781/Generative-ABSA/generation"
	"github.com/Toma62299781/Generative-ABSA/tokenizers"
)

// wordTokenizer maps whole words to ids through a growing vocabulary, enough
// to exercise the pipeline without a real subword model. 0=pad, 1=eos.
type wordTokenizer struct {
	vocab map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{vocab: map[string]int{"<pad>": 0, "</s>": 1}, words: []string{"<pad>", "</s>"}}
}

func (w *wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	for i, word := range fields {
		id, ok := w.vocab[word]
		if !ok {
			id = len(w.words)
			w.vocab[word] = id
			w.words = append(w.words, word)
		}
		ids[i] = id
	}
	return ids
}

func (w *wordTokenizer) Decode(ids []int) string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(w.words) {
			words = append(words, w.words[id])
		}
	}
	return strings.Join(words, " ")
}

func (w *wordTokenizer) SpecialTokenID(token tokenizers.SpecialToken) (int, error) {
	switch token {
	case tokenizers.TokPad:
		return 0, nil
	case tokenizers.TokEndOfSentence:
		return 1, nil
	}
	return 0, errors.Errorf("no %s token", token)
}

// scriptedService returns pre-encoded outputs in example order, ignoring the
// actual inputs, and records how many batches it saw.
type scriptedService struct {
	outputs [][]int
	cursor  int
	batches int
}

func (s *scriptedService) Generate(_ context.Context, req generation.Request) (generation.Response, error) {
	s.batches++
	n := len(req.SourceIDs)
	if s.cursor+n > len(s.outputs) {
		return generation.Response{}, errors.New("scripted service ran out of outputs")
	}
	out := s.outputs[s.cursor : s.cursor+n]
	s.cursor += n
	return generation.Response{OutputIDs: out}, nil
}

// failingService fails on the second batch.
type failingService struct {
	inner   generation.Service
	batches int
}

func (s *failingService) Generate(ctx context.Context, req generation.Request) (generation.Response, error) {
	s.batches++
	if s.batches > 1 {
		return generation.Response{}, errors.New("generation backend unavailable")
	}
	return s.inner.Generate(ctx, req)
}

func writeTestCheckpoint(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	hparams := "task: uabsa\nparadigm: extraction\nmax_seq_length: 32\neval_batch_size: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, checkpoints.HParamsFile), []byte(hparams), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, checkpoints.TokenizerFile), []byte("stub"), 0o644))

	header := map[string]any{
		"shared.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{1, 2},
			"data_offsets": []int64{0, 8},
		},
	}
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.5))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(-0.5))
	require.NoError(t, os.WriteFile(filepath.Join(dir, checkpoints.WeightsFile), buf, 0o644))
	return dir
}

func writeInputFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// encodeAll pre-encodes the expected prediction strings with the shared
// tokenizer so the scripted service can return them as ids.
func encodeAll(tok *wordTokenizer, predictions []string) [][]int {
	out := make([][]int, len(predictions))
	for i, p := range predictions {
		out[i] = append(tok.Encode(p), 1)
	}
	return out
}

func TestRunOrderAndAppend(t *testing.T) {
	tok := newWordTokenizer()
	predictions := []string{
		"battery, positive",
		"screen, negative",
		"price, positive",
		"keyboard, neutral",
		"speakers, negative",
	}
	service := &scriptedService{outputs: encodeAll(tok, predictions)}

	resultsPath := filepath.Join(t.TempDir(), "inference_results.txt")
	cfg := Config{
		Task:     absa.TaskUABSA,
		Paradigm: absa.ParadigmExtraction,
		FilePath: writeInputFile(t, []string{
			"the battery is good####[([1], 'POS')]",
			"the screen is bad####[([1], 'NEG')]",
			"the price is fair####[([1], 'POS')]",
			"the keyboard is ok####[([1], 'NEU')]",
			"the speakers rattle####[([1], 'NEG')]",
		}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   resultsPath,
		BatchSize:     2,
	}
	result, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
	require.NoError(t, err)

	// One line per input example, in input order, 2+2+1 batches.
	assert.Equal(t, predictions, result.Predictions)
	assert.Equal(t, predictions, readLines(t, resultsPath))
	assert.Equal(t, 3, service.batches)
	assert.NotEmpty(t, result.RunID)
}

func TestRunAppendsAcrossRuns(t *testing.T) {
	tok := newWordTokenizer()
	resultsPath := filepath.Join(t.TempDir(), "inference_results.txt")
	cfg := Config{
		Task:          absa.TaskUABSA,
		Paradigm:      absa.ParadigmExtraction,
		FilePath:      writeInputFile(t, []string{"the battery is good####[([1], 'POS')]"}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   resultsPath,
	}

	for range 2 {
		service := &scriptedService{outputs: encodeAll(tok, []string{"battery, positive"})}
		_, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"battery, positive", "battery, positive"}, readLines(t, resultsPath))
}

func TestRunEvaluatesLabeledInput(t *testing.T) {
	tok := newWordTokenizer()
	// First prediction matches gold exactly, second misses it.
	service := &scriptedService{outputs: encodeAll(tok, []string{
		"battery, positive",
		"price, positive",
	})}
	cfg := Config{
		Task:     absa.TaskUABSA,
		Paradigm: absa.ParadigmExtraction,
		FilePath: writeInputFile(t, []string{
			"the battery is good####[([1], 'POS')]",
			"the screen is bad####[([1], 'NEG')]",
		}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   filepath.Join(t.TempDir(), "inference_results.txt"),
	}
	result, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.Report)
	assert.Equal(t, 1, result.Report.Counts.TP)
	assert.Equal(t, 2, result.Report.Counts.Gold)
	assert.Equal(t, 2, result.Report.Counts.Pred)
	assert.InDelta(t, 0.5, result.Report.Corpus.F1, 1e-9)
}

func TestRunSkipsEvaluationForUnlabeledInput(t *testing.T) {
	tok := newWordTokenizer()
	service := &scriptedService{outputs: encodeAll(tok, []string{"battery, positive"})}
	cfg := Config{
		Task:          absa.TaskUABSA,
		Paradigm:      absa.ParadigmExtraction,
		FilePath:      writeInputFile(t, []string{"the battery is good"}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   filepath.Join(t.TempDir(), "inference_results.txt"),
	}
	result, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Report)
	assert.Equal(t, []string{"battery, positive"}, result.Predictions)
}

func TestRunGenerationFailureAborts(t *testing.T) {
	tok := newWordTokenizer()
	inner := &scriptedService{outputs: encodeAll(tok, []string{"a, positive", "b, positive", "c, positive"})}
	service := &failingService{inner: inner}

	resultsPath := filepath.Join(t.TempDir(), "inference_results.txt")
	cfg := Config{
		Task:     absa.TaskUABSA,
		Paradigm: absa.ParadigmExtraction,
		FilePath: writeInputFile(t, []string{
			"first sentence here####[([0], 'POS')]",
			"second sentence here####[([0], 'POS')]",
			"third sentence here####[([0], 'POS')]",
		}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   resultsPath,
		BatchSize:     1,
	}
	_, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")

	// Results of the successful first batch stay on disk.
	assert.Equal(t, []string{"a, positive"}, readLines(t, resultsPath))
}

func TestRunValidatesCombination(t *testing.T) {
	_, err := New(Config{Task: absa.TaskASTE, Paradigm: absa.Paradigm("span")}, &scriptedService{}).Run(context.Background())
	assert.Error(t, err)
	_, err = New(Config{Task: absa.TaskASTE, Paradigm: absa.ParadigmExtraction}, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestRunHParamDefaults(t *testing.T) {
	tok := newWordTokenizer()
	service := &scriptedService{outputs: encodeAll(tok, []string{"battery, positive"})}
	cfg := Config{
		Task:          absa.TaskUABSA,
		Paradigm:      absa.ParadigmExtraction,
		FilePath:      writeInputFile(t, []string{"the battery is good####[([1], 'POS')]"}),
		CheckpointDir: writeTestCheckpoint(t),
		ResultsPath:   filepath.Join(t.TempDir(), "inference_results.txt"),
		// BatchSize and MaxSeqLength come from the checkpoint hyperparameters.
	}
	_, err := New(cfg, service).WithTokenizer(tok).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, service.batches)
}

func TestAppendLinesLocking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	require.NoError(t, appendLines(path, []string{"one", "two"}))
	require.NoError(t, appendLines(path, []string{"three"}))
	assert.Equal(t, []string{"one", "two", "three"}, readLines(t, path))
	assert.FileExists(t, path+".lock")
}

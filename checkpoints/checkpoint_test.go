package checkpoints

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSafetensors writes a minimal single-tensor safetensors fixture with a
// 2x2 F32 tensor named "shared.weight".
func writeSafetensors(t *testing.T, path string, values []float32) {
	t.Helper()
	header := map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"shared.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{2, 2},
			"data_offsets": []int64{0, int64(4 * len(values))},
		},
	}
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)

	buf := make([]byte, 0, 8+len(headerBytes)+4*len(values))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func writeCheckpoint(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	hparams := "task: aste\nparadigm: extraction\nmax_seq_length: 128\nlearning_rate: 0.0003\nuse_cache: true\nmodel_name_or_path: t5-base\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, HParamsFile), []byte(hparams), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenizerFile), []byte("stub"), 0o644))
	writeSafetensors(t, filepath.Join(dir, WeightsFile), []float32{1, 2, 3, 4})
	return dir
}

func TestLoadCheckpoint(t *testing.T) {
	ckpt, err := Load(writeCheckpoint(t))
	require.NoError(t, err)
	defer ckpt.Close()

	assert.Equal(t, "aste", ckpt.HParams.Get("task").String())
	assert.Equal(t, int64(128), ckpt.HParams.Get("max_seq_length").Int())
	assert.InDelta(t, 0.0003, ckpt.HParams.Get("learning_rate").Float(), 1e-9)
	assert.True(t, ckpt.HParams.Get("use_cache").Bool())

	// Missing keys yield zero values, not errors.
	assert.False(t, ckpt.HParams.Get("warmup_steps").Exists())
	assert.Equal(t, int64(0), ckpt.HParams.Get("warmup_steps").Int())

	path, err := ckpt.TokenizerPath()
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestLoadCheckpointMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadCheckpointCorruptWeights(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HParamsFile), []byte("task: uabsa\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsFile), []byte("not a safetensors file"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestWeightsReadTensor(t *testing.T) {
	ckpt, err := Load(writeCheckpoint(t))
	require.NoError(t, err)
	defer ckpt.Close()

	w := ckpt.Weights()
	assert.Equal(t, []string{"shared.weight"}, w.TensorNames())

	meta := w.Header.Tensors["shared.weight"]
	require.NotNil(t, meta)
	assert.Equal(t, "F32", meta.Dtype)
	assert.Equal(t, []int{2, 2}, meta.Shape)
	assert.Equal(t, "pt", w.Header.Metadata["format"])

	tensor, err := w.ReadTensor("shared.weight")
	require.NoError(t, err)
	assert.Equal(t, "(Float32)[2 2]", tensor.Shape().String())

	want := []float32{1, 2, 3, 4}
	tensor.ConstBytes(func(data []byte) {
		require.Len(t, data, 16)
		for i, v := range want {
			assert.Equal(t, math.Float32bits(v), binary.LittleEndian.Uint32(data[4*i:]), "element %d", i)
		}
	})

	_, err = w.ReadTensor("missing.weight")
	assert.Error(t, err)
}

// writeRawSafetensors writes a file from an arbitrary header and payload,
// without checking that they agree.
func writeRawSafetensors(t *testing.T, path string, header map[string]any, payload []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = append(buf, payload...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

// TestWeightsTruncatedFile verifies a short read is an error, not a
// zero-filled tensor tail.
func TestWeightsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFile)
	writeRawSafetensors(t, path, map[string]any{
		"shared.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{2, 2},
			"data_offsets": []int64{0, 16},
		},
	}, make([]byte, 8)) // header claims 16 bytes, file holds 8

	w, err := openWeights(path)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.ReadTensor("shared.weight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestWeightsOffsetsShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFile)
	writeRawSafetensors(t, path, map[string]any{
		"shared.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{2, 2}, // needs 16 bytes
			"data_offsets": []int64{0, 8},
		},
	}, make([]byte, 8))

	w, err := openWeights(path)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.ReadTensor("shared.weight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data offsets")
}

func TestValueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Value{data: []any{"a", "b"}}.Strings())
	assert.Nil(t, Value{data: []any{"a", 1}}.Strings())
	assert.Nil(t, Value{data: 42}.Strings())
}

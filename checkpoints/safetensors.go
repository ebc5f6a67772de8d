package checkpoints

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // Tensor name -> metadata
	Metadata map[string]string          // Optional __metadata__ field
}

// TensorMetadata represents metadata for a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // Tensor name (from map key)
	Dtype       string   `json:"dtype"`        // Data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // Tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] byte offsets in file
}

// parseHeader reads and parses the header from a safetensors file.
// Safetensor format:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
func parseHeader(path string) (*Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open file %s", path)
	}
	defer f.Close()

	// Read header size (8 bytes, little-endian)
	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}

	if headerSize > 100*1024*1024 { // Sanity check: 100MB max header
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}

	header := &Header{
		Tensors:  make(map[string]*TensorMetadata),
		Metadata: make(map[string]string),
	}
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		header.Tensors[key] = &tm
	}

	// Data offset is after the 8-byte size + header.
	dataOffset := int64(8 + headerSize)
	return header, dataOffset, nil
}

// Weights provides streaming access to the checkpoint's tensor data via a
// memory-mapped safetensors file.
type Weights struct {
	Header     *Header
	reader     *mmap.ReaderAt
	dataOffset int64
}

// openWeights parses the safetensors header and mmaps the file for reading.
func openWeights(path string) (*Weights, error) {
	header, dataOffset, err := parseHeader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse header for %s", path)
	}
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	return &Weights{
		Header:     header,
		reader:     reader,
		dataOffset: dataOffset,
	}, nil
}

// Close closes the underlying memory-mapped file.
func (w *Weights) Close() error {
	return w.reader.Close()
}

// TensorNames returns all tensor names in the checkpoint.
func (w *Weights) TensorNames() []string {
	names := make([]string, 0, len(w.Header.Tensors))
	for name := range w.Header.Tensors {
		names = append(names, name)
	}
	return names
}

// ReadTensor reads a tensor by name from the memory-mapped file as a GoMLX
// tensor, the opaque parameter blob the generation service consumes.
func (w *Weights) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	meta, ok := w.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", tensorName)
	}

	dtype, err := safetensorDtype(meta.Dtype)
	if err != nil {
		return nil, err
	}

	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))
	expectedBytes := int64(t.Shape().Size()) * int64(dtype.Size())
	if stored := meta.DataOffsets[1] - meta.DataOffsets[0]; stored != expectedBytes {
		return nil, errors.Errorf("tensor %s: data offsets hold %d bytes, but shape %s needs %d",
			tensorName, stored, t.Shape(), expectedBytes)
	}
	tensorOffset := w.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		if int64(len(data)) != expectedBytes {
			readErr = errors.Errorf("tensor shape %s expected %d bytes, but got %d bytes", t.Shape(), expectedBytes, len(data))
			return
		}
		n, err := w.reader.ReadAt(data, tensorOffset)
		if n != len(data) {
			readErr = errors.Errorf("tensor %s: truncated weights file, read %d of %d bytes", tensorName, n, len(data))
		} else if err != nil && err != io.EOF {
			readErr = errors.Wrapf(err, "failed to read tensor %s", tensorName)
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// safetensorToGoMLXDtype maps safetensor dtype names to GoMLX dtype names.
// Safetensors uses naming like "I64", "F32", while GoMLX uses "Int64", "Float32".
var safetensorToGoMLXDtype = map[string]string{
	"I8":   "Int8",
	"I16":  "Int16",
	"I32":  "Int32",
	"I64":  "Int64",
	"U8":   "Uint8",
	"U16":  "Uint16",
	"U32":  "Uint32",
	"U64":  "Uint64",
	"F16":  "Float16",
	"F32":  "Float32",
	"F64":  "Float64",
	"BF16": "BFloat16",
	"BOOL": "Bool",
}

func safetensorDtype(stDtype string) (dtypes.DType, error) {
	if gomlxName, found := safetensorToGoMLXDtype[stDtype]; found {
		if dtype, found := dtypes.MapOfNames[gomlxName]; found {
			return dtype, nil
		}
	}
	// Fallback for any aliases GoMLX registers directly.
	if dtype, found := dtypes.MapOfNames[stDtype]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported safetensor dtype: %s", stDtype)
}

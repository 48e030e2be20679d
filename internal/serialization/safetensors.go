package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/lowrank/internal/tensor"
)

const metadataKey = "__metadata__"

// DType is a SafeTensors dtype string.
type DType string

// SafeTensors dtypes. F16 and BF16 are recognized but not loadable.
const (
	F16  DType = "F16"
	BF16 DType = "BF16"
	F32  DType = "F32"
	F64  DType = "F64"
	I32  DType = "I32"
	I64  DType = "I64"
	U8   DType = "U8"
	Bool DType = "BOOL"
)

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) within the data section
}

// File is a decoded SafeTensors file.
type File struct {
	Metadata map[string]string
	Tensors  map[string]*tensor.RawTensor
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	return sortedNames(f.Tensors)
}

// WriteFile writes stateDict and metadata to path.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	//nolint:gosec // G304: path is chosen by the user.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := Write(bw, stateDict, metadata); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// Write encodes stateDict and metadata to w.
//
// Tensors are laid out in alphabetical order by name. The header is padded
// with spaces so the data section starts on an 8-byte boundary.
func Write(w io.Writer, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := sortedNames(stateDict)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		raw := stateDict[name]
		if raw == nil {
			return fmt.Errorf("tensor %q is nil", name)
		}
		dtype, err := fromDataType(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		size := int64(raw.ByteSize())
		shape := make([]int, len(raw.Shape()))
		copy(shape, raw.Shape())
		header[name] = TensorInfo{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile decodes the SafeTensors file at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: path is chosen by the user.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	file, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Read decodes a SafeTensors stream. Every tensor is validated against the
// data section before any of them is returned.
func Read(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, truncated("header size", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, truncated("header", err)
	}

	metadata, infos, err := parseHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	metas := make([]TensorMeta, 0, len(infos))
	for name, info := range infos {
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, err
	}

	tensors := make(map[string]*tensor.RawTensor, len(infos))
	for name, info := range infos {
		raw, err := decodeTensor(name, info, data)
		if err != nil {
			return nil, err
		}
		tensors[name] = raw
	}

	return &File{Metadata: metadata, Tensors: tensors}, nil
}

func parseHeader(headerBytes []byte) (map[string]string, map[string]TensorInfo, error) {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if len(rawMap) > MaxTensorCount+1 {
		return nil, nil, fmt.Errorf("too many tensors in header: %d", len(rawMap))
	}

	var metadata map[string]string
	if metadataRaw, ok := rawMap[metadataKey]; ok {
		if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		delete(rawMap, metadataKey)
	}

	infos := make(map[string]TensorInfo, len(rawMap))
	for name, value := range rawMap {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		infos[name] = info
	}
	return metadata, infos, nil
}

func decodeTensor(name string, info TensorInfo, data []byte) (*tensor.RawTensor, error) {
	dtype, err := info.DType.toDataType()
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: invalid shape: %w", name, err)
	}

	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if want, ok := byteSize(shape, dtype.Size()); !ok || want != end-start {
		details := fmt.Sprintf("shape %v %s needs %d bytes, range holds %d", shape, info.DType, want, end-start)
		if !ok {
			details = fmt.Sprintf("shape %v %s overflows int64 bytes, range holds %d", shape, info.DType, end-start)
		}
		return nil, &ValidationError{Kind: ErrSizeMismatch, Tensor: name, Details: details}
	}

	return tensor.FromBytes(data[start:end], shape, dtype)
}

// byteSize returns the product of shape and elemSize, or false if it does
// not fit in an int64. Dimensions must already be positive.
func byteSize(shape tensor.Shape, elemSize int) (int64, bool) {
	n := int64(elemSize)
	for _, dim := range shape {
		if int64(dim) > math.MaxInt64/n {
			return 0, false
		}
		n *= int64(dim)
	}
	return n, true
}

func (d DType) toDataType() (tensor.DataType, error) {
	switch d {
	case F32:
		return tensor.Float32, nil
	case F64:
		return tensor.Float64, nil
	case I32:
		return tensor.Int32, nil
	case I64:
		return tensor.Int64, nil
	case U8:
		return tensor.Uint8, nil
	case Bool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, d)
	}
}

func fromDataType(dt tensor.DataType) (DType, error) {
	switch dt {
	case tensor.Float32:
		return F32, nil
	case tensor.Float64:
		return F64, nil
	case tensor.Int32:
		return I32, nil
	case tensor.Int64:
		return I64, nil
	case tensor.Uint8:
		return U8, nil
	case tensor.Bool:
		return Bool, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

func sortedNames(m map[string]*tensor.RawTensor) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

// Package tensorfile reads and writes named matrices in the safetensors layout:
// an 8-byte little-endian header length, a JSON header describing every tensor,
// then the concatenated little-endian payloads.
package tensorfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
)

const (
	metadataKey = "__metadata__"

	// maxHeaderSize bounds the JSON header so a corrupt length prefix cannot
	// trigger a huge allocation.
	maxHeaderSize = 100 << 20
)

// File is a decoded tensor container.
type File struct {
	Tensors  map[string]*core.Matrix
	Metadata map[string]string
}

// headerEntry describes one tensor in the JSON header.
type headerEntry struct {
	DType       core.DType `json:"dtype"`
	Shape       []int      `json:"shape"`
	DataOffsets [2]int64   `json:"data_offsets"`
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matrix returns the named tensor or core.ErrNotFound.
func (f *File) Matrix(name string) (*core.Matrix, error) {
	m, ok := f.Tensors[name]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "tensor %q (have %v)", name, f.Names())
	}
	return m, nil
}

// Write encodes tensors and optional metadata to w. Tensors are laid out in name order.
func Write(w io.Writer, tensors map[string]*core.Matrix, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return errors.Newf("tensor name %q is reserved", metadataKey)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		m := tensors[name]
		if m.DType.Size() == 0 {
			return errors.Wrapf(core.ErrDType, "tensor %q has dtype %q", name, m.DType)
		}
		size := int64(m.Len() * m.DType.Size())
		header[name] = headerEntry{
			DType:       m.DType,
			Shape:       []int{m.Rows, m.Cols},
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	raw, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "encode header")
	}
	// Pad the header with spaces so the payload starts 8-byte aligned.
	if pad := len(raw) % 8; pad != 0 {
		raw = append(raw, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(raw))); err != nil {
		return errors.Wrap(err, "write header length")
	}
	if _, err := bw.Write(raw); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, name := range names {
		if _, err := bw.Write(tensors[name].Bytes()); err != nil {
			return errors.Wrapf(err, "write tensor %q", name)
		}
	}
	return bw.Flush()
}

// Read decodes a whole tensor container from r.
func Read(r io.Reader) (*File, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, errors.Wrap(err, "read header length")
	}
	if headerLen > maxHeaderSize {
		return nil, errors.Newf("header length %d exceeds limit %d", headerLen, maxHeaderSize)
	}
	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decode header")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read payload")
	}

	f := &File{Tensors: make(map[string]*core.Matrix, len(entries))}
	for name, msg := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, errors.Wrap(err, "decode metadata")
			}
			continue
		}
		var e headerEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, errors.Wrapf(err, "decode entry %q", name)
		}
		begin, end := e.DataOffsets[0], e.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) {
			return nil, errors.Wrapf(core.ErrShape, "tensor %q offsets [%d, %d] outside payload of %d bytes",
				name, begin, end, len(data))
		}
		if e.DType.Size() == 0 {
			return nil, errors.Wrapf(core.ErrDType, "tensor %q has dtype %q", name, e.DType)
		}
		size, ok := byteSize(e.Shape, e.DType.Size())
		if !ok || size != end-begin {
			return nil, errors.Wrapf(core.ErrShape, "tensor %q shape %v of %s does not match %d payload bytes",
				name, e.Shape, e.DType, end-begin)
		}
		rows, cols := matrixShape(e.Shape)
		m, err := core.MatrixFromBytes(e.DType, rows, cols, data[begin:end])
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", name)
		}
		f.Tensors[name] = m
	}
	return f, nil
}

// byteSize returns the payload size of a tensor with the given shape. It
// reports false for negative dimensions or when the size overflows int64.
func byteSize(shape []int, elem int) (int64, bool) {
	n := int64(elem)
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt64/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, true
}

// matrixShape folds an arbitrary-rank shape into (rows, cols): the last axis
// becomes the columns and all leading axes are flattened into rows.
func matrixShape(shape []int) (int, int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return 1, shape[0]
	}
	rows := 1
	for _, d := range shape[:len(shape)-1] {
		rows *= d
	}
	return rows, shape[len(shape)-1]
}

// Save writes tensors to path. The file is written next to path and renamed
// into place, so readers never observe a partial container.
func Save(path string, tensors map[string]*core.Matrix, metadata map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, tensors, metadata); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "rename into place")
	}
	log.Info().Msgf("Saved %d tensors to %s", len(tensors), path)
	return nil
}

// Load reads the tensor container at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	file, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	log.Debug().Msgf("Loaded %d tensors from %s", len(file.Tensors), path)
	return file, nil
}

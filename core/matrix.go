package core

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// DType names the element type of a Matrix. The values match the dtype
// strings used in safetensors headers.
type DType string

const (
	F32 DType = "F32"
	F64 DType = "F64"
	U8  DType = "U8"
	I32 DType = "I32"
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case F32, I32:
		return 4
	case F64:
		return 8
	case U8:
		return 1
	default:
		return 0
	}
}

// Matrix is a dense row-major 2-D array. Exactly one of the typed slices
// is populated, selected by DType.
type Matrix struct {
	Rows  int
	Cols  int
	DType DType
	F32   []float32
	F64   []float64
	U8    []uint8
	I32   []int32
}

// NewMatrix allocates a zeroed matrix of the given dtype and shape.
func NewMatrix(dtype DType, rows, cols int) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, errors.Wrapf(ErrShape, "negative shape (%d, %d)", rows, cols)
	}
	m := &Matrix{Rows: rows, Cols: cols, DType: dtype}
	n := rows * cols
	switch dtype {
	case F32:
		m.F32 = make([]float32, n)
	case F64:
		m.F64 = make([]float64, n)
	case U8:
		m.U8 = make([]uint8, n)
	case I32:
		m.I32 = make([]int32, n)
	default:
		return nil, errors.Wrapf(ErrDType, "%q", dtype)
	}
	return m, nil
}

// FromRows builds a F32 matrix from equally sized rows.
func FromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{DType: F32}, nil
	}
	cols := len(rows[0])
	m := &Matrix{Rows: len(rows), Cols: cols, DType: F32, F32: make([]float32, 0, len(rows)*cols)}
	for i, r := range rows {
		if len(r) != cols {
			return nil, errors.Wrapf(ErrShapeMismatch, "row %d has %d columns, want %d", i, len(r), cols)
		}
		m.F32 = append(m.F32, r...)
	}
	return m, nil
}

// Shape returns (rows, cols).
func (m *Matrix) Shape() [2]int {
	return [2]int{m.Rows, m.Cols}
}

// Len returns the number of elements.
func (m *Matrix) Len() int {
	return m.Rows * m.Cols
}

// Row returns a view of row i of a F32 matrix.
func (m *Matrix) Row(i int) []float32 {
	return m.F32[i*m.Cols : (i+1)*m.Cols]
}

// RowSlices returns per-row views of a F32 matrix.
func (m *Matrix) RowSlices() [][]float32 {
	out := make([][]float32, m.Rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Float64 returns element (i, j) converted to float64 regardless of dtype.
func (m *Matrix) Float64(i, j int) float64 {
	return m.at(i*m.Cols + j)
}

// at returns the flat element k as float64.
func (m *Matrix) at(k int) float64 {
	switch m.DType {
	case F32:
		return float64(m.F32[k])
	case F64:
		return m.F64[k]
	case U8:
		return float64(m.U8[k])
	case I32:
		return float64(m.I32[k])
	}
	return math.NaN()
}

// Bytes encodes the payload as little-endian bytes.
func (m *Matrix) Bytes() []byte {
	b := make([]byte, m.Len()*m.DType.Size())
	switch m.DType {
	case F32:
		for i, v := range m.F32 {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
		}
	case F64:
		for i, v := range m.F64 {
			binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
		}
	case U8:
		copy(b, m.U8)
	case I32:
		for i, v := range m.I32 {
			binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
		}
	}
	return b
}

// MatrixFromBytes decodes a little-endian payload produced by Bytes.
func MatrixFromBytes(dtype DType, rows, cols int, b []byte) (*Matrix, error) {
	m, err := NewMatrix(dtype, rows, cols)
	if err != nil {
		return nil, err
	}
	if want := m.Len() * dtype.Size(); len(b) != want {
		return nil, errors.Wrapf(ErrShape, "payload is %d bytes, want %d for %s (%d, %d)",
			len(b), want, dtype, rows, cols)
	}
	switch dtype {
	case F32:
		for i := range m.F32 {
			m.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case F64:
		for i := range m.F64 {
			m.F64[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	case U8:
		copy(m.U8, b)
	case I32:
		for i := range m.I32 {
			m.I32[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
		}
	}
	return m, nil
}

// ToF32 returns m converted to a F32 matrix. F32 input is returned as is.
func (m *Matrix) ToF32() *Matrix {
	if m.DType == F32 {
		return m
	}
	out := &Matrix{Rows: m.Rows, Cols: m.Cols, DType: F32, F32: make([]float32, m.Len())}
	for i := range out.F32 {
		out.F32[i] = float32(m.at(i))
	}
	return out
}

// Package quantize computes per-column 8-bit scalar quantization of embedding matrices.
package quantize

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/tensorfile"
	"gonum.org/v1/gonum/floats"
)

// Levels is the number of steps a column range is divided into.
const Levels = 255

// Mode selects the quantization formula.
type Mode int

const (
	// ModeRaw divides the value by the column step: floor(v / step).
	ModeRaw Mode = iota
	// ModeShifted subtracts the column minimum first: floor((v - min) / step).
	ModeShifted
)

func (m Mode) String() string {
	if m == ModeShifted {
		return "shifted"
	}
	return "raw"
}

// ParseMode maps "raw" and "shifted" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "raw":
		return ModeRaw, nil
	case "shifted":
		return ModeShifted, nil
	}
	return ModeRaw, errors.Newf("unknown quantization mode %q", s)
}

// Options controls Quantize.
type Options struct {
	Mode Mode
	// Saturate clamps out-of-range results to [0, 255] instead of failing with core.ErrOverflow.
	Saturate bool
}

// Stats holds per-column statistics of a matrix.
type Stats struct {
	Min   []float64
	Max   []float64
	Range []float64 // Max - Min
	Step  []float64 // Range / 255
}

// Reshape reinterprets the elements of m as a matrix with cols columns.
func Reshape(m *core.Matrix, cols int) (*core.Matrix, error) {
	if cols <= 0 {
		return nil, errors.Wrapf(core.ErrShape, "cannot reshape to %d columns", cols)
	}
	if m.Len()%cols != 0 {
		return nil, errors.Wrapf(core.ErrShape, "cannot reshape %d elements into rows of %d", m.Len(), cols)
	}
	out := *m
	out.Rows, out.Cols = m.Len()/cols, cols
	return &out, nil
}

// Columns computes min, max, range and step for every column of m.
func Columns(m *core.Matrix) (Stats, error) {
	if m.Rows == 0 {
		return Stats{}, errors.Wrap(core.ErrShape, "no rows to compute statistics over")
	}
	s := Stats{
		Min:   make([]float64, m.Cols),
		Max:   make([]float64, m.Cols),
		Range: make([]float64, m.Cols),
		Step:  make([]float64, m.Cols),
	}
	col := make([]float64, m.Rows)
	for j := 0; j < m.Cols; j++ {
		for i := 0; i < m.Rows; i++ {
			col[i] = m.Float64(i, j)
		}
		s.Min[j] = floats.Min(col)
		s.Max[j] = floats.Max(col)
	}
	floats.SubTo(s.Range, s.Max, s.Min)
	floats.ScaleTo(s.Step, 1.0/Levels, s.Range)
	return s, nil
}

// Quantize maps every element of m to a uint8 code using the column statistics.
// Zero-range columns map to 0. A code outside [0, 255] fails with core.ErrOverflow
// unless opts.Saturate is set.
func Quantize(m *core.Matrix, stats Stats, opts Options) (*core.Matrix, error) {
	if len(stats.Step) != m.Cols {
		return nil, errors.Wrapf(core.ErrShapeMismatch, "stats cover %d columns, matrix has %d",
			len(stats.Step), m.Cols)
	}
	out, err := core.NewMatrix(core.U8, m.Rows, m.Cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			step := stats.Step[j]
			if step == 0 {
				continue
			}
			v := m.Float64(i, j)
			if opts.Mode == ModeShifted {
				v -= stats.Min[j]
			}
			q := math.Floor(v / step)
			if q < 0 || q > math.MaxUint8 || math.IsNaN(q) {
				if !opts.Saturate {
					return nil, errors.Wrapf(core.ErrOverflow, "row %d column %d: value %g / step %g = %g",
						i, j, m.Float64(i, j), step, q)
				}
				q = math.Max(0, math.Min(math.MaxUint8, q))
				if math.IsNaN(q) {
					q = 0
				}
			}
			out.U8[i*m.Cols+j] = uint8(q)
		}
	}
	return out, nil
}

// Matrices returns the column minimum and step as 1 x cols F32 matrices, the
// form stored next to quantized splits.
func (s Stats) Matrices() (minimum, step *core.Matrix) {
	minimum = &core.Matrix{Rows: 1, Cols: len(s.Min), DType: core.F32, F32: make([]float32, len(s.Min))}
	step = &core.Matrix{Rows: 1, Cols: len(s.Step), DType: core.F32, F32: make([]float32, len(s.Step))}
	for j := range s.Min {
		minimum.F32[j] = float32(s.Min[j])
		step.F32[j] = float32(s.Step[j])
	}
	return minimum, step
}

// Result is the outcome of a quantization preview.
type Result struct {
	Stats     Stats
	Quantized *core.Matrix
}

// Preview loads key from the tensor container at path, reshapes it to cols
// columns, and quantizes it with statistics computed over itself.
func Preview(path, key string, cols int, opts Options) (*Result, error) {
	f, err := tensorfile.Load(path)
	if err != nil {
		return nil, err
	}
	m, err := f.Matrix(key)
	if err != nil {
		return nil, err
	}
	if m.DType != core.F32 && m.DType != core.F64 {
		return nil, errors.Wrapf(core.ErrDType, "tensor %q is %s, expected a float type", key, m.DType)
	}
	m, err = Reshape(m, cols)
	if err != nil {
		return nil, err
	}
	stats, err := Columns(m)
	if err != nil {
		return nil, err
	}
	q, err := Quantize(m, stats, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Stats: stats, Quantized: q}, nil
}

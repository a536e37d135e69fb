package quantize

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/tensorfile"
	"github.com/stretchr/testify/require"
)

func matrix(t *testing.T, rows [][]float32) *core.Matrix {
	t.Helper()
	m, err := core.FromRows(rows)
	require.NoError(t, err)
	return m
}

func TestReshape(t *testing.T) {
	m := &core.Matrix{Rows: 1, Cols: 6, DType: core.F32, F32: []float32{1, 2, 3, 4, 5, 6}}

	r, err := Reshape(m, 3)
	require.NoError(t, err)
	require.Equal(t, [2]int{2, 3}, r.Shape())
	require.Equal(t, float64(4), r.Float64(1, 0))

	_, err = Reshape(m, 4)
	require.True(t, errors.Is(err, core.ErrShape))
	_, err = Reshape(m, 0)
	require.True(t, errors.Is(err, core.ErrShape))
}

func TestColumns(t *testing.T) {
	m := matrix(t, [][]float32{
		{0, 1, 5},
		{2, 3, 5},
		{51, 2, 5},
	})
	s, err := Columns(m)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 5}, s.Min)
	require.Equal(t, []float64{51, 3, 5}, s.Max)
	require.Equal(t, []float64{51, 2, 0}, s.Range)
	require.InDelta(t, 0.2, s.Step[0], 1e-12)
	require.InDelta(t, 2.0/255, s.Step[1], 1e-12)
	require.Zero(t, s.Step[2])

	_, err = Columns(&core.Matrix{Cols: 3, DType: core.F32})
	require.True(t, errors.Is(err, core.ErrShape))
}

func TestQuantizeFloorBelowMax(t *testing.T) {
	m := matrix(t, [][]float32{
		{0, 0.1},
		{10, 0.35},
		{25.5, 0.7},
		{51, 0.25},
	})
	s, err := Columns(m)
	require.NoError(t, err)

	q, err := Quantize(m, s, Options{Mode: ModeShifted})
	require.NoError(t, err)
	require.Equal(t, core.U8, q.DType)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			v := m.Float64(i, j)
			if v == s.Max[j] {
				continue
			}
			want := math.Floor((v - s.Min[j]) / s.Step[j])
			require.Equal(t, uint8(want), q.U8[i*m.Cols+j], "row %d column %d", i, j)
		}
	}
}

func TestQuantizeRawFormula(t *testing.T) {
	// Column minimum 0, so the raw formula stays in range up to the maximum.
	m := matrix(t, [][]float32{{0}, {1}, {2.5}, {5.1}})
	s, err := Columns(m)
	require.NoError(t, err)

	q, err := Quantize(m, s, Options{})
	require.NoError(t, err)
	for i := 0; i < m.Rows-1; i++ {
		want := math.Floor(m.Float64(i, 0) / s.Step[0])
		require.Equal(t, uint8(want), q.U8[i])
	}
}

func TestQuantizeOverflow(t *testing.T) {
	// Raw mode with a positive minimum: every value / step exceeds 255.
	m := matrix(t, [][]float32{{3}, {4}})
	s, err := Columns(m)
	require.NoError(t, err)

	_, err = Quantize(m, s, Options{Mode: ModeRaw})
	require.True(t, errors.Is(err, core.ErrOverflow))
	require.Contains(t, err.Error(), "row 0 column 0")

	q, err := Quantize(m, s, Options{Mode: ModeRaw, Saturate: true})
	require.NoError(t, err)
	require.Equal(t, []uint8{255, 255}, q.U8)
}

func TestQuantizeNegativeSaturates(t *testing.T) {
	m := matrix(t, [][]float32{{-1}, {1}})
	s, err := Columns(m)
	require.NoError(t, err)

	_, err = Quantize(m, s, Options{})
	require.True(t, errors.Is(err, core.ErrOverflow))

	q, err := Quantize(m, s, Options{Saturate: true})
	require.NoError(t, err)
	require.Equal(t, uint8(0), q.U8[0])
}

func TestQuantizeZeroRange(t *testing.T) {
	m := matrix(t, [][]float32{{7, 0}, {7, 1}})
	s, err := Columns(m)
	require.NoError(t, err)

	q, err := Quantize(m, s, Options{Mode: ModeShifted})
	require.NoError(t, err)
	require.Equal(t, uint8(0), q.U8[0])
	require.Equal(t, uint8(0), q.U8[2])
}

func TestQuantizeStatsMismatch(t *testing.T) {
	m := matrix(t, [][]float32{{1, 2}})
	_, err := Quantize(m, Stats{Step: []float64{1}}, Options{})
	require.True(t, errors.Is(err, core.ErrShapeMismatch))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("shifted")
	require.NoError(t, err)
	require.Equal(t, ModeShifted, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeRaw, m)
	_, err = ParseMode("log")
	require.Error(t, err)
}

func TestStatsMatrices(t *testing.T) {
	s := Stats{Min: []float64{1, 2}, Step: []float64{0.5, 0.25}}
	lo, step := s.Matrices()
	require.Equal(t, [2]int{1, 2}, lo.Shape())
	require.Equal(t, []float32{1, 2}, lo.F32)
	require.Equal(t, []float32{0.5, 0.25}, step.F32)
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.safetensors")
	flat := &core.Matrix{Rows: 1, Cols: 8, DType: core.F32, F32: []float32{0, 1, 2, 3, 4, 5, 6, 7}}
	require.NoError(t, tensorfile.Save(path, map[string]*core.Matrix{"embeddings": flat}, nil))

	res, err := Preview(path, "embeddings", 4, Options{Mode: ModeShifted})
	require.NoError(t, err)
	require.Equal(t, [2]int{2, 4}, res.Quantized.Shape())
	require.Equal(t, []float64{0, 1, 2, 3}, res.Stats.Min)
	require.Equal(t, []uint8{0, 0, 0, 0}, res.Quantized.U8[:4])
	for _, q := range res.Quantized.U8[4:] {
		require.GreaterOrEqual(t, q, uint8(254))
	}

	_, err = Preview(path, "missing", 4, Options{})
	require.True(t, errors.Is(err, core.ErrNotFound))
	_, err = Preview(path, "embeddings", 3, Options{})
	require.True(t, errors.Is(err, core.ErrShape))
}

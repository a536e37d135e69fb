// Package prep turns fetched ann-benchmarks archives into padded tensor files.
package prep

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/dataset"
	"github.com/patrikhermansson/annprep/quantize"
	"github.com/patrikhermansson/annprep/tensorfile"
	"github.com/rs/zerolog/log"
)

// DefaultWidth is the padded feature width.
const DefaultWidth = 1024

// Source exposes named matrices. Both dataset.Archive and tensorfile.File satisfy it.
type Source interface {
	Matrix(name string) (*core.Matrix, error)
}

// Options controls Prepare.
type Options struct {
	Width        int  // target column count, DefaultWidth when zero
	KeepOriginal bool // also store train_original and test_original
	GroundTruth  bool // carry neighbors and distances through when present
	Quantize     bool // replace train and test with 8-bit codes
	Quantizer    quantize.Options
}

func (o Options) width() int {
	if o.Width <= 0 {
		return DefaultWidth
	}
	return o.Width
}

// Pad returns a copy of m with zero columns appended up to width.
// A matrix wider than width is rejected with core.ErrOverWidth.
func Pad(m *core.Matrix, width int) (*core.Matrix, error) {
	if m.Cols > width {
		return nil, errors.Wrapf(core.ErrOverWidth, "%d columns, target %d", m.Cols, width)
	}
	out, err := core.NewMatrix(m.DType, m.Rows, width)
	if err != nil {
		return nil, err
	}
	for i := 0; i < m.Rows; i++ {
		src, dst := i*m.Cols, i*width
		switch m.DType {
		case core.F32:
			copy(out.F32[dst:dst+m.Cols], m.F32[src:src+m.Cols])
		case core.F64:
			copy(out.F64[dst:dst+m.Cols], m.F64[src:src+m.Cols])
		case core.U8:
			copy(out.U8[dst:dst+m.Cols], m.U8[src:src+m.Cols])
		case core.I32:
			copy(out.I32[dst:dst+m.Cols], m.I32[src:src+m.Cols])
		}
	}
	return out, nil
}

// Prepare loads the train and test splits from src and pads them to a common width.
func Prepare(src Source, opts Options) (map[string]*core.Matrix, error) {
	width := opts.width()
	out := make(map[string]*core.Matrix)

	for _, split := range []string{"train", "test"} {
		m, err := src.Matrix(split)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", split)
		}
		padded, err := Pad(m, width)
		if err != nil {
			return nil, errors.Wrapf(err, "pad %s", split)
		}
		log.Debug().Msgf("%s: (%d, %d) -> (%d, %d)", split, m.Rows, m.Cols, padded.Rows, padded.Cols)
		out[split] = padded
		if opts.KeepOriginal {
			out[split+"_original"] = m
		}
	}
	if out["train"].Cols != out["test"].Cols {
		return nil, errors.Wrapf(core.ErrShapeMismatch, "train has %d columns, test has %d",
			out["train"].Cols, out["test"].Cols)
	}

	if opts.GroundTruth {
		for _, name := range []string{"neighbors", "distances"} {
			m, err := src.Matrix(name)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, errors.Wrapf(err, "load %s", name)
			}
			out[name] = m
		}
	}

	if opts.Quantize {
		if err := quantizeSplits(out, opts.Quantizer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// quantizeSplits replaces train and test with codes computed from train statistics.
func quantizeSplits(out map[string]*core.Matrix, qopts quantize.Options) error {
	stats, err := quantize.Columns(out["train"])
	if err != nil {
		return errors.Wrap(err, "train statistics")
	}
	for _, split := range []string{"train", "test"} {
		q, err := quantize.Quantize(out[split], stats, qopts)
		if err != nil {
			return errors.Wrapf(err, "quantize %s", split)
		}
		out[split] = q
	}
	out["quant_min"], out["quant_step"] = stats.Matrices()
	return nil
}

// Run fetches name, prepares it and writes the result to out. An empty out
// writes <fetcher dir>/<name>.safetensors. It returns the written path.
func Run(ctx context.Context, fetcher *dataset.Fetcher, name, out string, opts Options) (string, error) {
	archive, err := fetcher.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer archive.Close()

	tensors, err := Prepare(archive, opts)
	if err != nil {
		return "", errors.Wrapf(err, "prepare %s", name)
	}
	for _, split := range []string{"train", "test"} {
		m := tensors[split]
		log.Info().Msgf("%s %s shape: (%d, %d) %s", name, split, m.Rows, m.Cols, m.DType)
	}

	if out == "" {
		out = dataset.DatasetPath(fetcher.Dir, name, dataset.ExtSafetensors)
	}
	distance, _ := core.DistanceForDataset(name)
	meta := map[string]string{
		"dataset":  name,
		"width":    strconv.Itoa(opts.width()),
		"distance": distance,
	}
	if opts.Quantize {
		meta["quantization"] = opts.Quantizer.Mode.String()
	}
	if err := tensorfile.Save(out, tensors, meta); err != nil {
		return "", errors.Wrapf(err, "write %s", out)
	}
	log.Info().Msgf("Wrote %s", out)
	return out, nil
}

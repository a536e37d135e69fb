// Package bench times index builds over prepared datasets and measures recall.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/hnsw"
	"github.com/patrikhermansson/annprep/rpt"
	"github.com/rs/zerolog/log"
)

// Builder names accepted by NewBuilder.
const (
	BuilderHNSW = "hnsw"
	BuilderRPT  = "rpt"
)

// Result describes one timed build.
type Result struct {
	RunID        string    `json:"run_id"`
	Dataset      string    `json:"dataset"`
	Builder      string    `json:"builder"`
	Threads      int       `json:"threads"`
	Vectors      int       `json:"vectors"`
	Dimension    int       `json:"dimension"`
	BuildSeconds float64   `json:"build_seconds"`
	Recall       *float64  `json:"recall,omitempty"`
	CPU          string    `json:"cpu"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewBuilder creates an empty builder of the given kind.
func NewBuilder(kind string, dimension int, distance string) (core.Builder, error) {
	switch kind {
	case BuilderHNSW:
		return hnsw.New(dimension, distance)
	case BuilderRPT:
		return rpt.New(dimension, distance)
	}
	return nil, errors.Newf("unknown builder %q, want %s or %s", kind, BuilderHNSW, BuilderRPT)
}

// TimeBuild builds train into b, prints the elapsed time to w and returns the run record.
func TimeBuild(w io.Writer, dataset, builder string, b core.Builder, train *core.Matrix, opts core.BuildOptions) (Result, error) {
	if train.DType != core.F32 {
		return Result{}, errors.Wrapf(core.ErrDType, "train is %s, builders take F32", train.DType)
	}
	vectors := train.RowSlices()

	start := time.Now()
	if err := b.Build(vectors, opts); err != nil {
		return Result{}, errors.Wrapf(err, "build %s", builder)
	}
	took := time.Since(start)
	fmt.Fprintf(w, "Took: %.2fs\n", took.Seconds())

	stats := b.Stats()
	log.Debug().Msgf("Indexed %d vectors (%d dimensions); distance: %s", stats.Count, stats.Dimension, stats.Distance)
	return Result{
		RunID:        uuid.NewString(),
		Dataset:      dataset,
		Builder:      builder,
		Threads:      opts.Threads,
		Vectors:      stats.Count,
		Dimension:    stats.Dimension,
		BuildSeconds: took.Seconds(),
		CPU:          core.CPUFeatures(),
		CreatedAt:    start.UTC(),
	}, nil
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

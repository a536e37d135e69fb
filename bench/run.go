package bench

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/dataset"
	"github.com/rs/zerolog/log"
)

// Options controls Run.
type Options struct {
	Builder    string // BuilderHNSW or BuilderRPT
	Threads    int
	Log        bool
	K          int // Recall@K over the test split, skipped when zero
	MaxVectors int // truncate the train split, all rows when zero
}

// Run fetches name, times a build over its train split and, when opts.K is
// set, evaluates recall against the archive's ground truth.
func Run(ctx context.Context, w io.Writer, fetcher *dataset.Fetcher, name string, opts Options) (Result, error) {
	if opts.Builder != BuilderHNSW && opts.Builder != BuilderRPT {
		return Result{}, errors.Newf("unknown builder %q, want %s or %s", opts.Builder, BuilderHNSW, BuilderRPT)
	}
	archive, err := fetcher.Open(ctx, name)
	if err != nil {
		return Result{}, err
	}
	defer archive.Close()

	train, err := archive.Matrix("train")
	if err != nil {
		return Result{}, errors.Wrap(err, "load train")
	}
	if opts.MaxVectors > 0 && train.Rows > opts.MaxVectors {
		train = &core.Matrix{Rows: opts.MaxVectors, Cols: train.Cols, DType: core.F32,
			F32: train.F32[:opts.MaxVectors*train.Cols]}
	}
	log.Info().Msgf("Loaded %d training vectors of dimension %d", train.Rows, train.Cols)

	distance, _ := core.DistanceForDataset(name)
	b, err := NewBuilder(opts.Builder, train.Cols, distance)
	if err != nil {
		return Result{}, err
	}
	buildOpts := core.BuildOptions{Threads: opts.Threads, Log: opts.Log}
	res, err := TimeBuild(w, name, opts.Builder, b, train, buildOpts)
	if err != nil {
		return Result{}, err
	}
	if opts.K <= 0 {
		return res, nil
	}
	if opts.MaxVectors > 0 {
		log.Warn().Msg("Ground truth refers to the full train split; recall on a truncated build is a lower bound")
	}

	test, err := archive.Matrix("test")
	if err != nil {
		return Result{}, errors.Wrap(err, "load test")
	}
	neighbors, err := archive.Matrix("neighbors")
	if err != nil {
		return Result{}, errors.Wrap(err, "load neighbors")
	}
	ev, err := Evaluate(b, test, neighbors, opts.K, opts.Threads, opts.Log)
	if err != nil {
		return Result{}, err
	}
	log.Info().Msgf("Average Recall@%d over %d queries: %.2f", ev.K, ev.Queries, ev.Recall)
	log.Info().Msgf("Average query response time: %v", ev.AvgQuery)
	res.Recall = &ev.Recall
	return res, nil
}

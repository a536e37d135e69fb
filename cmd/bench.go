package cmd

import (
	"path/filepath"

	"github.com/patrikhermansson/annprep/bench"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/results"
	"github.com/spf13/cobra"
)

func newBenchCommand(cfg *core.Config) *cobra.Command {
	var (
		opts   bench.Options
		dbPath string
		noDB   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "bench <dataset>",
		Short: "Time an index build over a dataset's train split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := bench.Run(cmd.Context(), cmd.OutOrStdout(), newFetcher(cmd, cfg), args[0], opts)
			if err != nil {
				return err
			}
			if !noDB {
				if dbPath == "" {
					dbPath = filepath.Join(cfg.DataDir, "bench.db")
				}
				store, err := results.Open(dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Record(cmd.Context(), res); err != nil {
					return err
				}
			}
			if asJSON {
				return bench.WriteJSON(cmd.OutOrStdout(), []bench.Result{res})
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Builder, "builder", bench.BuilderHNSW, "index builder: hnsw or rpt")
	f.IntVar(&opts.Threads, "threads", cfg.Threads, "worker goroutines handed to the builder")
	f.BoolVar(&opts.Log, "log", true, "show build progress")
	f.IntVar(&opts.K, "k", 0, "measure Recall@k over the test split")
	f.IntVar(&opts.MaxVectors, "max-vectors", 0, "build over the first n train rows only")
	f.StringVar(&dbPath, "db", "", "results database, <data-dir>/bench.db by default")
	f.BoolVar(&noDB, "no-db", false, "do not record the run")
	f.BoolVar(&asJSON, "json", false, "print the run record as JSON")
	f.Bool("no-progress", false, "hide the download progress bar")
	return cmd
}

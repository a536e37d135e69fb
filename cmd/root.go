// Package cmd wires the annprep subcommands.
package cmd

import (
	"context"

	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/dataset"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the annprep command tree. Flags default to the
// values read from the ANNPREP_* environment variables.
func NewRootCommand() *cobra.Command {
	cfg := core.LoadConfig()
	root := &cobra.Command{
		Use:           "annprep",
		Short:         "Fetch, prepare and benchmark ANN datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "dataset cache directory")
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "ann-benchmarks mirror")
	flags.IntVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "download retries")

	root.AddCommand(
		newFetchCommand(&cfg),
		newPrepCommand(&cfg),
		newQuantizeCommand(),
		newEmbedCommand(&cfg),
		newBenchCommand(&cfg),
	)
	return root
}

// Execute runs the command tree with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newFetcher(cmd *cobra.Command, cfg *core.Config) *dataset.Fetcher {
	f := dataset.NewFetcher(*cfg)
	if v, err := cmd.Flags().GetBool("no-progress"); err == nil && v {
		f.Progress = false
	}
	return f
}

package cmd

import (
	"fmt"

	"github.com/patrikhermansson/annprep/core"
	"github.com/spf13/cobra"
)

func newFetchCommand(cfg *core.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <dataset>...",
		Short: "Download ann-benchmarks archives into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher := newFetcher(cmd, cfg)
			for _, name := range args {
				archive, err := fetcher.Open(cmd.Context(), name)
				if err != nil {
					return err
				}
				names, err := archive.Names()
				archive.Close()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", archive.Path(), names)
			}
			return nil
		},
	}
	cmd.Flags().Bool("no-progress", false, "hide the download progress bar")
	return cmd
}

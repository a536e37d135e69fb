package cmd

import (
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/embed"
	"github.com/spf13/cobra"
)

func newEmbedCommand(cfg *core.Config) *cobra.Command {
	var (
		tensors string
		batch   int
	)
	cmd := &cobra.Command{
		Use:   "embed <in.json> <out.json>",
		Short: "Encode a JSON array of strings through the embedding service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := embed.NewClient(*cfg)
			client.BatchSize = batch
			_, err := embed.EncodeFile(cmd.Context(), client, args[0], args[1], tensors)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.EmbedURL, "embed-url", cfg.EmbedURL, "embedding service base URL")
	f.IntVar(&batch, "batch", embed.DefaultBatchSize, "texts per request")
	f.StringVar(&tensors, "tensors", "", "also write the embeddings to this safetensors file")
	return cmd
}

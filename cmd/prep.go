package cmd

import (
	"fmt"

	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/prep"
	"github.com/patrikhermansson/annprep/quantize"
	"github.com/spf13/cobra"
)

func newPrepCommand(cfg *core.Config) *cobra.Command {
	var (
		opts prep.Options
		out  string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "prep <dataset>",
		Short: "Pad a dataset's train and test splits and write a safetensors file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := quantize.ParseMode(mode)
			if err != nil {
				return err
			}
			opts.Quantizer.Mode = m
			path, err := prep.Run(cmd.Context(), newFetcher(cmd, cfg), args[0], out, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Width, "width", prep.DefaultWidth, "padded column count")
	f.BoolVar(&opts.KeepOriginal, "keep-original", true, "also store the unpadded splits")
	f.BoolVar(&opts.GroundTruth, "ground-truth", false, "carry neighbors and distances through")
	f.BoolVar(&opts.Quantize, "quantize", false, "store 8-bit codes instead of floats")
	f.StringVar(&mode, "mode", "raw", "quantization formula: raw or shifted")
	f.BoolVar(&opts.Quantizer.Saturate, "saturate", false, "clamp out-of-range codes instead of failing")
	f.StringVarP(&out, "out", "o", "", "output path, <data-dir>/<dataset>.safetensors by default")
	f.Bool("no-progress", false, "hide the download progress bar")
	return cmd
}

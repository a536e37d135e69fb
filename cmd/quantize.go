package cmd

import (
	"fmt"
	"io"

	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/quantize"
	"github.com/spf13/cobra"
)

// previewColumns is how many columns and rows the quantize command prints.
const previewColumns = 8

func newQuantizeCommand() *cobra.Command {
	var (
		key  string
		cols int
		mode string
		opts quantize.Options
	)
	cmd := &cobra.Command{
		Use:   "quantize <file.safetensors>",
		Short: "Preview per-column 8-bit quantization of an embedding matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := quantize.ParseMode(mode)
			if err != nil {
				return err
			}
			opts.Mode = m
			res, err := quantize.Preview(args[0], key, cols, opts)
			if err != nil {
				return err
			}
			printPreview(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&key, "key", "embeddings", "tensor name")
	f.IntVar(&cols, "cols", 1024, "columns to reshape the tensor into")
	f.StringVar(&mode, "mode", "raw", "quantization formula: raw or shifted")
	f.BoolVar(&opts.Saturate, "saturate", false, "clamp out-of-range codes instead of failing")
	return cmd
}

func printPreview(w io.Writer, res *quantize.Result) {
	n := min(previewColumns, len(res.Stats.Max))
	fmt.Fprintf(w, "Max: %v\n", res.Stats.Max[:n])
	fmt.Fprintf(w, "Min: %v\n", res.Stats.Min[:n])
	fmt.Fprintf(w, "Delta: %v\n", res.Stats.Range[:n])
	fmt.Fprintf(w, "StepSize: %v\n", res.Stats.Step[:n])

	q := res.Quantized
	fmt.Fprintf(w, "Quantized: (%d, %d) %s\n", q.Rows, q.Cols, core.U8)
	for i := 0; i < min(previewColumns, q.Rows); i++ {
		fmt.Fprintf(w, "%v\n", q.U8[i*q.Cols:i*q.Cols+n])
	}
}

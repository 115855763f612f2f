package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/codec"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	To string // output format; empty picks it from the output extension
}

// ConvertResult describes a written file.
type ConvertResult struct {
	Input   string       `json:"input"`
	Output  string       `json:"output"`
	Format  codec.Format `json:"format"`
	Bytes   int          `json:"bytes"`
	Repairs int          `json:"repairs"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a program between binary and text",
		Long: `Read a program in either format and write it in the format chosen by
the output extension (.vsb binary, .vst text) or --to.

Examples:
  vscript convert player.vsb player.vst
  vscript convert player.vst out.bin --to binary`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "output format (binary|text)")

	return cmd
}

func runConvert(opts *ConvertOptions, in, out string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	format := codec.FormatForPath(out)
	if opts.To != "" {
		f, err := codec.ParseFormat(opts.To)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid --to", err)
		}
		format = f
	}

	p, repairs, err := loadProgramFile(in)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.Diagnostics(repairs.Entries())

	var buf bytes.Buffer
	saveOpts := append(opts.Settings().CodecOptions(), codec.WithFormat(format), codec.WithPath(out))
	if err := codec.Save(&buf, p.Snapshot(), saveOpts...); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("cannot encode %s", in), err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("cannot write %s", out), err)
	}

	result := ConvertResult{
		Input:   in,
		Output:  out,
		Format:  format,
		Bytes:   buf.Len(),
		Repairs: repairs.Len(),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s -> %s (%s, %d bytes)\n", in, out, format, result.Bytes)
	return nil
}

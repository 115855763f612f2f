package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/program"
	"github.com/roach88/vscript/internal/store"
)

// StoreOptions holds flags for the store commands.
type StoreOptions struct {
	*RootOptions
	Path   string // library path for put
	As     string // stored format for put
	Output string // destination file for get

	// UIDs assigns uids to programs stored without one (for testing).
	// If nil, uids are UUIDv7.
	UIDs program.UIDGenerator
}

// NewStoreCommand creates the program library command group.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Program library",
		Long: `Store, fetch and list programs in the configured library (SQLite or
Redis, see store.driver).

Examples:
  vscript store put player.vst --path game/player
  vscript store get game/player -o player.vsb
  vscript store list --format json
  vscript store rm game/player`,
	}

	put := &cobra.Command{
		Use:           "put <file>",
		Short:         "Add or replace a program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorePut(opts, args[0], cmd)
		},
	}
	put.Flags().StringVar(&opts.Path, "path", "", "library path (defaults to the file name without extension)")
	put.Flags().StringVar(&opts.As, "as", "", "stored format (defaults to codec.format from config)")

	get := &cobra.Command{
		Use:           "get <path>",
		Short:         "Fetch a program",
		Long:          "Fetch a program. Without -o it is printed in text form.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreGet(opts, args[0], cmd)
		},
	}
	get.Flags().StringVarP(&opts.Output, "output", "o", "", "write to this file, format chosen by extension")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored programs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreList(opts, cmd)
		},
	}

	rm := &cobra.Command{
		Use:           "rm <path>",
		Short:         "Remove a stored program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreRemove(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(put, get, list, rm)
	return cmd
}

func runStorePut(opts *StoreOptions, file string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.Settings()

	format := codec.Format(cfg.Codec.Format)
	if opts.As != "" {
		f, err := codec.ParseFormat(opts.As)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid --as", err)
		}
		format = f
	}
	path := opts.Path
	if path == "" {
		base := filepath.Base(file)
		path = base[:len(base)-len(filepath.Ext(base))]
	}

	p, repairs, err := loadProgramFile(file)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.Diagnostics(repairs.Entries())
	uids := opts.UIDs
	if uids == nil {
		uids = program.UUIDv7UIDs{}
	}
	formatter.VerboseLog("Program uid %s", p.EnsureUID(uids))

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, cfg.Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	rec, err := store.SaveProgram(ctx, lib, path, p.Snapshot(), format, cfg.CodecOptions()...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("cannot store %s", path), err)
	}

	if formatter.Format == "json" {
		return formatter.Success(rec)
	}
	fmt.Fprintf(formatter.Writer, "✓ stored %s (%s, %d bytes, seq %d)\n", rec.Path, rec.Format, len(rec.Data), rec.Seq)
	return nil
}

func runStoreGet(opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.Settings()

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, cfg.Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	p, _, err := store.LoadProgram(ctx, lib, path)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no program stored at %s", path), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("cannot load %s", path), err)
	}

	format := codec.FormatText
	if opts.Output != "" {
		format = codec.FormatForPath(opts.Output)
	}
	var buf bytes.Buffer
	saveOpts := append(cfg.CodecOptions(), codec.WithFormat(format), codec.WithPath(path))
	if err := codec.Save(&buf, p.Snapshot(), saveOpts...); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("cannot encode %s", path), err)
	}

	if opts.Output == "" {
		if formatter.Format == "json" {
			return formatter.Success(map[string]string{"path": path, "text": buf.String()})
		}
		_, err := formatter.Writer.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("cannot write %s", opts.Output), err)
	}
	if formatter.Format == "json" {
		return formatter.Success(ConvertResult{Input: path, Output: opts.Output, Format: format, Bytes: buf.Len()})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s -> %s (%s, %d bytes)\n", path, opts.Output, format, buf.Len())
	return nil
}

func runStoreList(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, opts.Settings().Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	records, err := lib.List(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot list programs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No programs stored.")
		return nil
	}
	for _, rec := range records {
		s := rec.Summary
		fmt.Fprintf(formatter.Writer, "%4d  %-32s %-6s %3d graphs %4d nodes  %s\n",
			rec.Seq, rec.Path, rec.Format, s.Graphs, s.Nodes, rec.UID)
	}
	return nil
}

func runStoreRemove(opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, opts.Settings().Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	if err := lib.Delete(ctx, path); errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no program stored at %s", path), nil)
	} else if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("cannot remove %s", path), err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"path": path, "removed": "true"})
	}
	fmt.Fprintf(formatter.Writer, "✓ removed %s\n", path)
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/debug"
	"github.com/roach88/vscript/internal/debugserver"
)

// DebugOptions holds flags for the debug commands.
type DebugOptions struct {
	*RootOptions
	Addr  string
	Owner string
	Off   bool
}

// BreakpointInfo is one persisted breakpoint.
type BreakpointInfo struct {
	Owner   string `json:"owner"`
	Node    int    `json:"node"`
	Enabled bool   `json:"enabled"`
}

// NewDebugCommand creates the debug command group.
func NewDebugCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DebugOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Debugger control surface and breakpoints",
		Long: `Manage debugger breakpoints in the configured store and serve the
debugger HTTP surface.

Examples:
  vscript debug serve --addr 127.0.0.1:7070
  vscript debug break 12 --owner /root/Main
  vscript debug break 12 --off
  vscript debug breakpoints --format json`,
	}

	serve := &cobra.Command{
		Use:           "serve",
		Short:         "Serve the debugger control surface and metrics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebugServe(opts, cmd)
		},
	}
	serve.Flags().StringVar(&opts.Addr, "addr", "", "listen address (defaults to debug.addr from config)")

	brk := &cobra.Command{
		Use:           "break <node>",
		Short:         "Enable or disable a persisted breakpoint",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebugBreak(opts, args[0], cmd)
		},
	}
	brk.Flags().StringVar(&opts.Owner, "owner", "", "owner path (empty matches every owner)")
	brk.Flags().BoolVar(&opts.Off, "off", false, "disable instead of enable")

	list := &cobra.Command{
		Use:           "breakpoints",
		Short:         "List persisted breakpoints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebugList(opts, cmd)
		},
	}

	cmd.AddCommand(serve, brk, list)
	return cmd
}

func runDebugServe(opts *DebugOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.Settings()

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Debug.Addr
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := openLibrary(ctx, cfg.Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	session := debug.NewSession(debug.WithStore(lib))
	if err := session.Load(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot load breakpoints", err)
	}
	defer session.Terminate()

	formatter.VerboseLog("Serving debugger on %s", addr)
	if formatter.Format != "json" {
		fmt.Fprintf(formatter.Writer, "Debugger listening on %s. Press Ctrl-C to stop.\n", addr)
	}
	if err := debugserver.ListenAndServe(ctx, addr, session); err != nil && !errors.Is(err, context.Canceled) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "debug server failed", err)
	}
	slog.Info("debug server stopped gracefully", "addr", addr)
	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"addr": addr, "state": "stopped"})
	}
	return nil
}

func runDebugBreak(opts *DebugOptions, node string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	id, err := strconv.Atoi(node)
	if err != nil || id < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("node must be a non-negative integer, got %q", node), nil)
	}

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, opts.Settings().Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	info := BreakpointInfo{Owner: opts.Owner, Node: id, Enabled: !opts.Off}
	if err := lib.SaveBreakpoint(ctx, debug.Breakpoint{Owner: info.Owner, NodeID: id}, info.Enabled); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot save breakpoint", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(info)
	}
	state := "enabled"
	if !info.Enabled {
		state = "disabled"
	}
	fmt.Fprintf(formatter.Writer, "✓ breakpoint at node %d %s%s\n", id, state, ownerSuffix(info.Owner))
	return nil
}

func runDebugList(opts *DebugOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ctx := commandContext(cmd)
	lib, err := openLibrary(ctx, opts.Settings().Store)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot open store", err)
	}
	defer closeLibrary(lib)

	bps, err := lib.LoadBreakpoints(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "cannot load breakpoints", err)
	}
	infos := make([]BreakpointInfo, 0, len(bps))
	for bp, enabled := range bps {
		infos = append(infos, BreakpointInfo{Owner: bp.Owner, Node: bp.NodeID, Enabled: enabled})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Owner != infos[j].Owner {
			return infos[i].Owner < infos[j].Owner
		}
		return infos[i].Node < infos[j].Node
	})

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No breakpoints.")
		return nil
	}
	for _, bp := range infos {
		mark := "●"
		if !bp.Enabled {
			mark = "○"
		}
		fmt.Fprintf(formatter.Writer, "%s node %d%s\n", mark, bp.Node, ownerSuffix(bp.Owner))
	}
	return nil
}

func ownerSuffix(owner string) string {
	if owner == "" {
		return ""
	}
	return " on " + owner
}

func closeLibrary(lib Library) {
	if err := lib.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

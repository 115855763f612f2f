package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/builder"
	"github.com/roach88/vscript/internal/config"
	"github.com/roach88/vscript/internal/debug"
	"github.com/roach88/vscript/internal/debugserver"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Event     string
	Call      string
	Args      []string // JSON literals
	Owner     string
	Class     string
	DebugAddr string

	// ChainIDs overrides the chain id generator (for testing).
	// If nil, the engine uses UUIDv7 ids.
	ChainIDs engine.ChainIDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	File      string                     `json:"file"`
	Entry     string                     `json:"entry"`
	Signals   []Emission                 `json:"signals"`
	Printed   []string                   `json:"printed"`
	Result    json.RawMessage            `json:"result,omitempty"`
	Variables map[string]json.RawMessage `json:"variables"`
}

// Emission is one signal dispatched by the program.
type Emission struct {
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a program against a console owner",
		Long: `Instantiate a program on a console owner and fire one event or call one
script function. Signals and print output are written to stdout.

With --debug-addr the debugger control surface and metrics are served while
the program runs, and breakpoints are loaded from the configured store.

Examples:
  vscript run player.vsb --event ready
  vscript run player.vst --event hit --arg 3 --arg '"sword"'
  vscript run player.vst --call double --arg 4 --format json
  vscript run player.vst --event ready --debug-addr 127.0.0.1:7070`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "event to trigger")
	cmd.Flags().StringVar(&opts.Call, "call", "", "script function to call")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "argument as a JSON literal (repeatable)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "/root/Main", "owner path")
	cmd.Flags().StringVar(&opts.Class, "class", "", "owner class (defaults to the program base class)")
	cmd.Flags().StringVar(&opts.DebugAddr, "debug-addr", "", "serve the debugger on this address while running")
	cmd.MarkFlagsMutuallyExclusive("event", "call")
	cmd.MarkFlagsOneRequired("event", "call")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.Settings()

	args, err := parseArgs(opts.Args)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid --arg", err)
	}

	p, repairs, err := loadProgramFile(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.Diagnostics(repairs.Entries())

	snap := p.Snapshot()
	log, err := builder.Build(snap)
	if err != nil {
		formatter.Diagnostics(log.Errors())
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, fmt.Sprintf("%s does not build", path), err)
	}
	for _, w := range log.Warnings() {
		slog.Warn("build warning", "file", path, "diag", w.Error())
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	class := opts.Class
	if class == "" {
		class = snap.BaseClass()
	}
	owner := &consoleOwner{path: opts.Owner, class: class, text: formatter.Format != "json", w: formatter.Writer}

	instOpts := append(cfg.EngineOptions(), engine.WithPrinter(owner.print))
	if opts.ChainIDs != nil {
		instOpts = append(instOpts, engine.WithChainIDs(opts.ChainIDs))
	}
	if opts.DebugAddr != "" {
		session, shutdown, err := startDebugger(ctx, opts.DebugAddr, cfg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "cannot start debugger", err)
		}
		defer shutdown()
		instOpts = append(instOpts, engine.WithDebugger(session))
		formatter.VerboseLog("Debugger listening on %s", opts.DebugAddr)
	}

	inst := engine.Instantiate(p, owner, instOpts...)

	result := RunResult{File: path}
	var ret ir.Value
	if opts.Call != "" {
		result.Entry = "call:" + opts.Call
		ret, err = inst.Call(ctx, opts.Call, args...)
	} else {
		result.Entry = "event:" + opts.Event
		err = inst.Trigger(ctx, opts.Event, args...)
	}
	if err != nil {
		var rt *engine.RuntimeError
		details := map[string]string{"entry": result.Entry}
		if errors.As(err, &rt) {
			details["runtime_code"] = string(rt.Code)
		}
		_ = formatter.Error(ErrCodeRuntime, err.Error(), details)
		return WrapExitError(ExitFailure, ErrCodeRuntime+": run failed", err)
	}

	if ret != nil {
		if result.Result, err = ir.ToJSON(ret); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "cannot render result", err)
		}
	}
	if result.Variables, err = captureVariables(inst); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "cannot render variables", err)
	}
	result.Signals, result.Printed = owner.collected()

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if result.Result != nil {
		fmt.Fprintf(formatter.Writer, "result: %s\n", result.Result)
	}
	return nil
}

// startDebugger serves a session on addr until the returned shutdown is
// called. Breakpoints persist in the configured library when it opens.
func startDebugger(ctx context.Context, addr string, cfg config.Config) (*debug.Session, func(), error) {
	var sessOpts []debug.Option
	lib, err := openLibrary(ctx, cfg.Store)
	if err != nil {
		slog.Warn("breakpoints will not persist", "error", err)
	} else {
		sessOpts = append(sessOpts, debug.WithStore(lib))
	}
	session := debug.NewSession(sessOpts...)
	if err := session.Load(ctx); err != nil {
		if lib != nil {
			lib.Close()
		}
		return nil, nil, err
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := debugserver.ListenAndServe(srvCtx, addr, session); err != nil {
			slog.Error("debug server stopped", "addr", addr, "error", err)
		}
	}()

	shutdown := func() {
		session.Terminate()
		cancel()
		<-done
		if lib != nil {
			closeLibrary(lib)
		}
	}
	return session, shutdown, nil
}

func parseArgs(raw []string) ([]ir.Value, error) {
	out := make([]ir.Value, 0, len(raw))
	for i, r := range raw {
		v, err := ir.ParseJSON([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("arg %d (%s): %w", i, r, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func captureVariables(inst *engine.Instance) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for _, decl := range inst.Program().Snapshot().Variables() {
		v, err := inst.Variable(decl.Name)
		if err != nil {
			return nil, err
		}
		raw, err := ir.ToJSON(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", decl.Name, err)
		}
		out[decl.Name] = raw
	}
	return out, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// consoleOwner is the host object for run. In text mode it writes signals
// and print output as they happen.
type consoleOwner struct {
	path  string
	class string
	text  bool
	w     io.Writer

	mu      sync.Mutex
	signals []Emission
	printed []string
}

func (o *consoleOwner) Path() string  { return o.path }
func (o *consoleOwner) Class() string { return o.class }

func (o *consoleOwner) EmitSignal(name string, args []ir.Value) error {
	e := Emission{Name: name}
	rendered := make([]string, len(args))
	for i, a := range args {
		raw, err := ir.ToJSON(a)
		if err != nil {
			return err
		}
		e.Args = append(e.Args, raw)
		rendered[i] = string(raw)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signals = append(o.signals, e)
	if o.text {
		fmt.Fprintf(o.w, "signal %s(%s)\n", name, strings.Join(rendered, ", "))
	}
	return nil
}

// CallMethod accepts every method and returns nil; the console has no host
// behavior of its own.
func (o *consoleOwner) CallMethod(method string, args []ir.Value) (ir.Value, error) {
	slog.Info("owner method called", "owner", o.path, "method", method, "args", len(args))
	return ir.Nil{}, nil
}

func (o *consoleOwner) print(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printed = append(o.printed, s)
	if o.text {
		fmt.Fprintln(o.w, s)
	}
}

func (o *consoleOwner) collected() ([]Emission, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	signals := append([]Emission{}, o.signals...)
	printed := append([]string{}, o.printed...)
	return signals, printed
}

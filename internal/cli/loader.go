package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/config"
	"github.com/roach88/vscript/internal/debug"
	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/program"
	"github.com/roach88/vscript/internal/store"
	redisstore "github.com/roach88/vscript/internal/store/redis"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeInvalidArg    = "E002" // Bad flag or argument value
	ErrCodeConfig        = "E003" // Config file or override rejected
	ErrCodeDecodeFailed  = "E004" // Program bytes could not be decoded
	ErrCodeNotFound      = "E005" // File or stored program not found
	ErrCodeBuildFailed   = "E006" // Program failed validation
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeRuntime       = "E008" // Execution error
	ErrCodeStore         = "E009" // Library backend error
	ErrCodeNoScenarios   = "E010" // Scenario directory empty or missing
	ErrCodeScenarioError = "E011" // Scenario failed to load
	ErrCodeTestFailed    = "E012" // One or more scenarios failed
)

// LoadError is a program file that could not be read or decoded.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadProgramFile reads a program in either format. The returned log holds
// the repairs applied to legacy files.
func loadProgramFile(path string, opts ...codec.Option) (*program.Program, *diag.Log, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program file not found: %s", path)}
	}
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cannot open %s", path), Err: err}
	}
	defer f.Close()

	opts = append(opts, codec.WithPath(path))
	p, log, err := codec.Load(f, opts...)
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("cannot decode %s", path), Err: err}
	}
	return p, log, nil
}

// failLoad reports a loadProgramFile error through formatter.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		_ = formatter.Error(le.Code, le.Error(), nil)
		return WrapExitError(ExitCommandError, le.Message, le.Err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, "load failed", err)
}

// Library is a program library that also persists debugger breakpoints.
type Library interface {
	store.ProgramStore
	debug.BreakpointStore
}

// openLibrary opens the configured backend.
func openLibrary(ctx context.Context, cfg config.StoreConfig) (Library, error) {
	switch cfg.Driver {
	case "redis":
		lib := redisstore.New(cfg.RedisAddr, "", 0,
			redisstore.WithPrefix(cfg.Prefix),
			redisstore.WithTTL(cfg.TTL),
		)
		if err := lib.Ping(ctx); err != nil {
			lib.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return lib, nil
	case "sqlite", "":
		lib, err := store.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return lib, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/builder"
	"github.com/roach88/vscript/internal/diag"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File     string       `json:"file"`
	Valid    bool         `json:"valid"`
	Errors   []diag.Entry `json:"errors,omitempty"`
	Warnings []diag.Entry `json:"warnings,omitempty"`

	// Repairs are the fixes applied while loading a legacy file.
	Repairs []diag.Entry `json:"repairs,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Load and build a program, reporting diagnostics",
		Long: `Load a program in either format and run the builder over it.

Every problem is reported, not just the first. Warnings do not fail the
command; any error exits with code 1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, repairs, err := loadProgramFile(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded %s (%d repairs)", path, repairs.Len())

	log, buildErr := builder.Build(p.Snapshot())
	if buildErr != nil && !builder.IsBuildError(buildErr) {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, "build failed", buildErr)
	}

	result := ValidationResult{
		File:     path,
		Valid:    !log.HasErrors(),
		Errors:   log.Errors(),
		Warnings: log.Warnings(),
		Repairs:  repairs.Entries(),
	}
	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationErrors(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s valid", result.File)
	if n := len(result.Warnings); n > 0 {
		fmt.Fprintf(formatter.Writer, " (%d warning(s))", n)
	}
	fmt.Fprintln(formatter.Writer)
	formatter.Diagnostics(result.Repairs)
	formatter.Diagnostics(result.Warnings)
	return nil
}

// outputValidationErrors outputs every finding and fails with exit code 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		first := result.Errors[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeBuildFailed,
				Message: first.Error(),
			},
		}); err != nil {
			return errors.Join(failure, err)
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "✗ %s: validation failed\n", result.File)
	formatter.Diagnostics(result.Repairs)
	formatter.Diagnostics(result.Errors)
	formatter.Diagnostics(result.Warnings)
	return failure
}

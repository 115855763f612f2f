package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidProgram(t *testing.T) {
	for _, name := range []string{"player.vst", "player.vsb"} {
		t.Run(name, func(t *testing.T) {
			path := writeTestProgram(t, t.TempDir(), name)

			out, err := execute(t, NewValidateCommand(testRoot(t, "text")), path)
			require.NoError(t, err)
			assert.Contains(t, out, "✓ "+path+" valid")
		})
	}
}

func TestValidateValidProgramJSON(t *testing.T) {
	path := writeTestProgram(t, t.TempDir(), "player.vst")

	out, err := execute(t, NewValidateCommand(testRoot(t, "json")), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, path, resp.Data.File)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateReportsBuildErrors(t *testing.T) {
	path := saveProgram(t, newBrokenProgram(t), filepath.Join(t.TempDir(), "broken.vst"))

	out, err := execute(t, NewValidateCommand(testRoot(t, "text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 error(s)")
	assert.Contains(t, out, "validation failed")
	assert.Contains(t, out, "is not connected")
}

func TestValidateReportsBuildErrorsJSON(t *testing.T) {
	path := saveProgram(t, newBrokenProgram(t), filepath.Join(t.TempDir(), "broken.vsb"))

	out, err := execute(t, NewValidateCommand(testRoot(t, "json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBuildFailed, resp.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testRoot(t, "text")), "/nonexistent/player.vsb")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.vsb")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

	out, err := execute(t, NewValidateCommand(testRoot(t, "text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeDecodeFailed)
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := execute(t, NewValidateCommand(testRoot(t, "text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

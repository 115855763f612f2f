package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesProgramPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.vst"), []byte("[program]"), 0o644))
	path := writeScenario(t, dir, `
name: resolve
description: "program path is relative to the scenario"
program: p.vst
steps:
  - trigger: ready
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p.vst"), s.Program)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "name: a\ndescription: b\nprogram: p.vst\nstep: []\n", "failed to parse YAML"},
		{"missing name", "description: b\nprogram: p.vst\nsteps: [{trigger: x}]\n", "name is required"},
		{"missing program file", "name: a\ndescription: b\nprogram: nope.vst\nsteps: [{trigger: x}]\n", "program file not found"},
		{"no steps", "name: a\ndescription: b\nprogram: p.vst\n", "steps list is required"},
		{"empty step", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{args: [1]}]\n", "one of trigger or call"},
		{"both", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{trigger: x, call: y}]\n", "mutually exclusive"},
		{"result on trigger", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{trigger: x, expect: {result: 1}}]\n", "only valid on call"},
		{"unknown assertion", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{trigger: x}]\nassertions: [{type: nope}]\n", "unknown type"},
		{"short order", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{trigger: x}]\nassertions: [{type: signal_order, signals: [a]}]\n", "at least 2"},
		{"variable without name", "name: a\ndescription: b\nprogram: p.vst\nsteps: [{trigger: x}]\nassertions: [{type: variable}]\n", "requires name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "p.vst"), []byte("[program]"), 0o644))
			_, err := LoadScenario(writeScenario(t, dir, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "golden/a.yaml", "sub/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = FindScenarios(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	assert.Error(t, err)
}

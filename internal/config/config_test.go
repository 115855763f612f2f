package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vscript.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
engine:
  max_steps: 500
codec:
  format: text
  wide_floats: false
store:
  driver: redis
  ttl: 10m
`)
	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 500, cfg.Engine.MaxSteps)
	assert.Equal(t, 64, cfg.Engine.MaxDepth, "untouched keys keep defaults")
	assert.Equal(t, "text", cfg.Codec.Format)
	assert.False(t, cfg.Codec.WideFloats)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Store.TTL)
	assert.Equal(t, "vscript.db", cfg.Store.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_depth: 8\n")
	cfg, err := load(path, env(map[string]string{
		"VSCRIPT_ENGINE_MAX_DEPTH": "16",
		"VSCRIPT_CODEC_BIG_ENDIAN": "true",
		"VSCRIPT_DEBUG_ADDR":       ":9000",
		"VSCRIPT_STORE_REDIS_ADDR": "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Engine.MaxDepth)
	assert.True(t, cfg.Codec.BigEndian)
	assert.Equal(t, ":9000", cfg.Debug.Addr)
	assert.Equal(t, "127.0.0.1:6379", cfg.Store.RedisAddr, "empty override is ignored")
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown section", "network:\n  port: 1\n"},
		{"unknown key", "engine:\n  speed: 3\n"},
		{"bad enum", "codec:\n  format: json\n"},
		{"negative steps", "engine:\n  max_steps: -1\n"},
		{"zero depth", "engine:\n  max_depth: 0\n"},
		{"bad ttl", "store:\n  ttl: soon\n"},
		{"wrong type", "codec:\n  wide_floats: maybe\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.body), env(nil))
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "schema violation", cfgErr.Message)
		})
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := load("", env(map[string]string{"VSCRIPT_ENGINE_MAX_STEPS": "many"}))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "environment", cfgErr.Source)
}

func TestLoad_EnvValidatedBySchema(t *testing.T) {
	_, err := load("", env(map[string]string{"VSCRIPT_STORE_DRIVER": "postgres"}))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := load(writeConfig(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "VSCRIPT_STORE_REDIS_ADDR", EnvName("store", "redis_addr"))
}

func TestOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.CodecOptions(), 3)
	assert.Len(t, cfg.EngineOptions(), 2)

	cfg.Log.Level = "nonsense"
	assert.Equal(t, "INFO", cfg.SlogLevel().String())
}

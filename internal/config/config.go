// Package config loads vscript settings from a YAML file and VSCRIPT_*
// environment variables.
//
// The merged settings are validated against an embedded CUE schema before
// they are decoded into Config, so a bad value is reported with its path
// rather than as a zero value.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/logging"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VSCRIPT_"

// Config holds every tunable of the CLI.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
	Codec  CodecConfig  `mapstructure:"codec"`
	Store  StoreConfig  `mapstructure:"store"`
	Debug  DebugConfig  `mapstructure:"debug"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type EngineConfig struct {
	// MaxSteps bounds node steps per chain. Zero means unlimited.
	MaxSteps int `mapstructure:"max_steps"`
	MaxDepth int `mapstructure:"max_depth"`
}

type CodecConfig struct {
	Format     string `mapstructure:"format"`
	WideFloats bool   `mapstructure:"wide_floats"`
	BigEndian  bool   `mapstructure:"big_endian"`
}

type StoreConfig struct {
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type DebugConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the settings used when no file or override is present.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Engine: EngineConfig{MaxSteps: 0, MaxDepth: 64},
		Codec:  CodecConfig{Format: string(codec.FormatBinary), WideFloats: true},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      "vscript.db",
			RedisAddr: "127.0.0.1:6379",
			Prefix:    "vscript:",
		},
		Debug: DebugConfig{Addr: "127.0.0.1:7070"},
	}
}

// Error reports an invalid configuration.
type Error struct {
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Source, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads path (optional when empty), applies environment overrides,
// validates and decodes the result on top of Default().
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}
	source := "defaults"
	if path != "" {
		source = path
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Source: source, Message: "read failed", Err: err}
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, &Error{Source: source, Message: "invalid YAML", Err: err}
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	if err := applyEnv(raw, lookup); err != nil {
		return Config{}, &Error{Source: "environment", Message: "invalid override", Err: err}
	}
	if err := validate(raw); err != nil {
		return Config{}, &Error{Source: source, Message: "schema violation", Err: err}
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &cfg,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, &Error{Source: source, Message: "decode failed", Err: err}
	}
	slog.Debug("config loaded", "source", source, "store", cfg.Store.Driver, "format", cfg.Codec.Format)
	return cfg, nil
}

// validate unifies raw with the #Config definition.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	return v.Validate(cue.Concrete(true))
}

type envKind int

const (
	envString envKind = iota
	envInt
	envBool
)

// overrides maps VSCRIPT_<SECTION>_<KEY> to the config path it sets.
var overrides = []struct {
	section, key string
	kind         envKind
}{
	{"log", "level", envString},
	{"engine", "max_steps", envInt},
	{"engine", "max_depth", envInt},
	{"codec", "format", envString},
	{"codec", "wide_floats", envBool},
	{"codec", "big_endian", envBool},
	{"store", "driver", envString},
	{"store", "path", envString},
	{"store", "redis_addr", envString},
	{"store", "prefix", envString},
	{"store", "ttl", envString},
	{"debug", "addr", envString},
}

// EnvName returns the environment variable overriding section.key.
func EnvName(section, key string) string {
	return EnvPrefix + strings.ToUpper(section+"_"+key)
}

func applyEnv(raw map[string]any, lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		name := EnvName(o.section, o.key)
		s, ok := lookup(name)
		if !ok || s == "" {
			continue
		}
		var v any = s
		switch o.kind {
		case envInt:
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			v = n
		case envBool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			v = b
		}
		sec, ok := raw[o.section].(map[string]any)
		if !ok {
			sec = map[string]any{}
			raw[o.section] = sec
		}
		sec[o.key] = v
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// CodecOptions returns the encoder options for the configured format.
func (c Config) CodecOptions() []codec.Option {
	return []codec.Option{
		codec.WithFormat(codec.Format(c.Codec.Format)),
		codec.WithWideFloats(c.Codec.WideFloats),
		codec.WithBigEndian(c.Codec.BigEndian),
	}
}

// EngineOptions returns the instance options for the configured limits.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxSteps(c.Engine.MaxSteps),
		engine.WithMaxDepth(c.Engine.MaxDepth),
	}
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one program test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path of the program file, binary or text.
	// LoadScenario resolves it relative to the scenario file.
	Program string `yaml:"program"`

	// Owner is the owner's path. Defaults to "Owner".
	Owner string `yaml:"owner,omitempty"`

	// Class overrides the owner's class. Defaults to the program base class.
	Class string `yaml:"class,omitempty"`

	// MaxSteps bounds each chain. Zero means unlimited.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Variables overrides variable defaults before the first step.
	Variables map[string]any `yaml:"variables,omitempty"`

	// Methods are the results returned by owner methods, by name.
	Methods map[string]any `yaml:"methods,omitempty"`

	// Steps run in order on one instance.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and variables.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step fires an event or calls a script function. Exactly one of Trigger
// and Call is set.
type Step struct {
	Trigger string        `yaml:"trigger,omitempty"`
	Call    string        `yaml:"call,omitempty"`
	Args    []any         `yaml:"args,omitempty"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step. Without an
// expect clause a step must succeed.
type ExpectClause struct {
	// Error is the expected runtime error code, e.g. "STEPS_EXCEEDED".
	Error string `yaml:"error,omitempty"`

	// Result is the expected return value of a call.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Signal is the signal name (signal_emitted, signal_count).
	Signal string `yaml:"signal,omitempty"`

	// Args are the expected signal arguments (signal_emitted). When nil any
	// arguments match.
	Args []any `yaml:"args,omitempty"`

	// Count is the expected number of emissions (signal_count).
	Count int `yaml:"count,omitempty"`

	// Signals is the expected emission order (signal_order).
	Signals []string `yaml:"signals,omitempty"`

	// Name and Value check a final variable (variable).
	Name  string `yaml:"name,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Text is the expected print output (printed).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertSignalEmitted = "signal_emitted"
	AssertSignalOrder   = "signal_order"
	AssertSignalCount   = "signal_count"
	AssertVariable      = "variable"
	AssertPrinted       = "printed"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch {
		case step.Trigger == "" && step.Call == "":
			return fmt.Errorf("steps[%d]: one of trigger or call is required", i)
		case step.Trigger != "" && step.Call != "":
			return fmt.Errorf("steps[%d]: trigger and call are mutually exclusive", i)
		}
		if step.Expect != nil && step.Expect.Result != nil && step.Call == "" {
			return fmt.Errorf("steps[%d].expect: result is only valid on call steps", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSignalEmitted:
		if a.Signal == "" {
			return fmt.Errorf("assertions[%d]: signal_emitted requires signal", index)
		}
	case AssertSignalOrder:
		if len(a.Signals) < 2 {
			return fmt.Errorf("assertions[%d]: signal_order requires at least 2 signals", index)
		}
	case AssertSignalCount:
		if a.Signal == "" {
			return fmt.Errorf("assertions[%d]: signal_count requires signal", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: signal_count requires count >= 0", index)
		}
	case AssertVariable:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: variable requires name", index)
		}
	case AssertPrinted:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: printed requires text", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}

// FindScenarios returns the .yaml and .yml files under dir in lexical
// order. filter, when set, is a glob matched against the file name
// without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := filepath.Base(path)
			name = name[:len(name)-len(ext)]
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

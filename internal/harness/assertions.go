package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/vscript/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s%s\n", event.Seq, event.Type, event.Name, formatArgs(event.Args))
	}
	return buf.String()
}

func formatArgs(args []json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertSignalEmitted:
		return assertSignalEmitted(result.Trace, a)
	case AssertSignalOrder:
		return assertSignalOrder(result.Trace, a)
	case AssertSignalCount:
		return assertSignalCount(result.Trace, a)
	case AssertVariable:
		return assertVariable(result, a)
	case AssertPrinted:
		return assertPrinted(result.Trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertSignalEmitted checks for an emission of the signal, with exactly
// the given arguments when Args is set.
func assertSignalEmitted(trace []TraceEvent, a Assertion) error {
	var want []json.RawMessage
	if a.Args != nil {
		vals, err := toValues(a.Args)
		if err != nil {
			return err
		}
		if want, err = renderAll(vals); err != nil {
			return err
		}
	}
	for _, event := range trace {
		if event.Type != EventSignal || event.Name != a.Signal {
			continue
		}
		if a.Args == nil || sameArgs(want, event.Args) {
			return nil
		}
	}
	expected := "signal " + a.Signal
	if a.Args != nil {
		expected += formatArgs(want)
	}
	return &AssertionError{
		Type:     AssertSignalEmitted,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func sameArgs(want, got []json.RawMessage) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if !bytes.Equal(want[i], got[i]) && !sameNumber(want[i], got[i]) {
			return false
		}
	}
	return true
}

// sameNumber lets 3 match 3.0.
func sameNumber(a, b json.RawMessage) bool {
	var x, y float64
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	return x == y
}

// assertSignalOrder checks that the signals were first emitted in the
// given order. Other emissions may come between them.
func assertSignalOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventSignal {
			continue
		}
		if _, seen := positions[event.Name]; !seen {
			positions[event.Name] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range a.Signals {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertSignalOrder,
				Expected: fmt.Sprintf("all signals present: %v", a.Signals),
				Actual:   fmt.Sprintf("missing signal: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Signals); i++ {
		prev, curr := a.Signals[i-1], a.Signals[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertSignalOrder,
				Expected: fmt.Sprintf("signals in order: %v", a.Signals),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertSignalCount checks the signal was emitted exactly Count times.
func assertSignalCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventSignal && event.Name == a.Signal {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertSignalCount,
			Expected: fmt.Sprintf("%d emissions of %s", a.Count, a.Signal),
			Actual:   fmt.Sprintf("%d emissions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertVariable checks a final variable value.
func assertVariable(result *Result, a Assertion) error {
	got, ok := result.Variables[a.Name]
	if !ok {
		return &AssertionError{
			Type:     AssertVariable,
			Expected: fmt.Sprintf("variable %s", a.Name),
			Actual:   "not declared",
			Trace:    result.Trace,
		}
	}
	v, err := ir.FromGo(a.Value)
	if err != nil {
		return err
	}
	want, err := render(v)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) && !sameNumber(want, got) {
		return &AssertionError{
			Type:     AssertVariable,
			Expected: fmt.Sprintf("%s = %s", a.Name, want),
			Actual:   fmt.Sprintf("%s = %s", a.Name, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertPrinted checks the print builtin produced Text.
func assertPrinted(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type == EventPrint && event.Text == a.Text {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertPrinted,
		Expected: fmt.Sprintf("print %q", a.Text),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

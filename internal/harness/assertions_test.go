package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Type: EventTrigger, Name: "ready", Seq: 1},
		{Type: EventSignal, Name: "hit", Args: []json.RawMessage{raw("3")}, Seq: 2},
		{Type: EventPrint, Text: "hello", Seq: 3},
		{Type: EventSignal, Name: "done", Seq: 4},
		{Type: EventSignal, Name: "hit", Args: []json.RawMessage{raw("4.0")}, Seq: 5},
	}
	r.Variables["score"] = raw("2.0")
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name string
		a    Assertion
		pass bool
	}{
		{"emitted any args", Assertion{Type: AssertSignalEmitted, Signal: "done"}, true},
		{"emitted exact args", Assertion{Type: AssertSignalEmitted, Signal: "hit", Args: []any{3}}, true},
		{"emitted numeric widening", Assertion{Type: AssertSignalEmitted, Signal: "hit", Args: []any{4}}, true},
		{"emitted wrong args", Assertion{Type: AssertSignalEmitted, Signal: "hit", Args: []any{5}}, false},
		{"emitted missing", Assertion{Type: AssertSignalEmitted, Signal: "lost"}, false},
		{"order", Assertion{Type: AssertSignalOrder, Signals: []string{"hit", "done"}}, true},
		{"order uses first emission", Assertion{Type: AssertSignalOrder, Signals: []string{"done", "hit"}}, false},
		{"order missing", Assertion{Type: AssertSignalOrder, Signals: []string{"hit", "lost"}}, false},
		{"count", Assertion{Type: AssertSignalCount, Signal: "hit", Count: 2}, true},
		{"count zero", Assertion{Type: AssertSignalCount, Signal: "lost", Count: 0}, true},
		{"count wrong", Assertion{Type: AssertSignalCount, Signal: "hit", Count: 1}, false},
		{"variable", Assertion{Type: AssertVariable, Name: "score", Value: 2}, true},
		{"variable wrong", Assertion{Type: AssertVariable, Name: "score", Value: 3}, false},
		{"variable undeclared", Assertion{Type: AssertVariable, Name: "lives", Value: 3}, false},
		{"printed", Assertion{Type: AssertPrinted, Text: "hello"}, true},
		{"printed missing", Assertion{Type: AssertPrinted, Text: "bye"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.Len(t, errs, 1)
			}
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: AssertPrinted, Text: "bye"}})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: printed")
	assert.Contains(t, errs[0], "[2] signal hit(3)")
}

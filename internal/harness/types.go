package harness

import (
	"encoding/json"
)

// Trace event types.
const (
	EventTrigger = "trigger"
	EventCall    = "call"
	EventSignal  = "signal"
	EventMethod  = "method"
	EventPrint   = "print"
	EventError   = "error"
)

// TraceEvent is one observable effect of a scenario step. Values are kept
// as rendered JSON so traces compare byte for byte.
type TraceEvent struct {
	Type   string            `json:"type"`
	Name   string            `json:"name,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Text   string            `json:"text,omitempty"`
	Code   string            `json:"code,omitempty"`
	Chain  string            `json:"chain,omitempty"`
	Seq    int64             `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Variables holds the final variable values, rendered as JSON.
	Variables map[string]json.RawMessage `json:"variables,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Variables: make(map[string]json.RawMessage),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Signals returns the signal events in trace order.
func (r *Result) Signals() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventSignal {
			out = append(out, e)
		}
	}
	return out
}

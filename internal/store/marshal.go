package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/vscript/internal/program"
)

// Summary counts the parts of a program. It is stored next to the encoded
// bytes so listings need not decode every program.
type Summary struct {
	Graphs      int `json:"graphs"`
	Nodes       int `json:"nodes"`
	Connections int `json:"connections"`
	Functions   int `json:"functions"`
	Variables   int `json:"variables"`
	Signals     int `json:"signals"`
}

// Summarize counts the parts of snap.
func Summarize(snap *program.Snapshot) Summary {
	return Summary{
		Graphs:      len(snap.Graphs()),
		Nodes:       snap.NodeCount(),
		Connections: len(snap.Connections()),
		Functions:   len(snap.Functions()),
		Variables:   len(snap.Variables()),
		Signals:     len(snap.Signals()),
	}
}

// marshalSummary converts a Summary to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled; struct field order keeps
// the output stable.
func marshalSummary(s Summary) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalSummary parses JSON TEXT into a Summary. Empty input is an empty
// summary.
func unmarshalSummary(data string) (Summary, error) {
	var s Summary
	if data == "" || data == "{}" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, nil
}

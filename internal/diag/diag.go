// Package diag collects ordered diagnostics produced while building or
// loading a program.
//
// Findings are appended rather than raised so a single pass reports every
// problem it finds, not just the first one.
package diag

import (
	"fmt"
	"strings"
)

// Severity grades a diagnostic entry.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText renders the severity name for JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoNode marks a position that does not refer to a node.
const NoNode = -1

// Position locates a finding inside a program. Field is a dotted path such as
// "pins[2]" or "signals.hit".
type Position struct {
	Graph  string `json:"graph,omitempty"`
	NodeID int    `json:"node"`
	Field  string `json:"field,omitempty"`
}

// At returns a position for a node.
func At(graph string, nodeID int, field string) Position {
	return Position{Graph: graph, NodeID: nodeID, Field: field}
}

// Global returns a position that does not refer to a node.
func Global(field string) Position {
	return Position{NodeID: NoNode, Field: field}
}

func (p Position) String() string {
	var parts []string
	if p.Graph != "" {
		parts = append(parts, p.Graph)
	}
	if p.NodeID != NoNode {
		parts = append(parts, fmt.Sprintf("node %d", p.NodeID))
	}
	if p.Field != "" {
		parts = append(parts, p.Field)
	}
	if len(parts) == 0 {
		return "program"
	}
	return strings.Join(parts, ", ")
}

// Entry is one diagnostic.
type Entry struct {
	Position Position `json:"position"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
}

// Error implements the error interface so entries can be returned directly.
func (e Entry) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

// Sink accepts diagnostics in order.
type Sink interface {
	Append(Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Entry)

// Append calls f(e).
func (f SinkFunc) Append(e Entry) { f(e) }

// Log is an in-memory Sink. The zero value is ready to use. Not safe for
// concurrent use.
type Log struct {
	entries []Entry
}

// Append adds an entry.
func (l *Log) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Errorf appends an error entry.
func (l *Log) Errorf(pos Position, code, format string, args ...any) {
	l.Append(Entry{Position: pos, Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning entry.
func (l *Log) Warnf(pos Position, code, format string, args ...any) {
	l.Append(Entry{Position: pos, Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// Entries returns all entries in append order.
func (l *Log) Entries() []Entry {
	return l.entries
}

// Errors returns the error entries in order.
func (l *Log) Errors() []Entry {
	return l.filter(SeverityError)
}

// Warnings returns the warning entries in order.
func (l *Log) Warnings() []Entry {
	return l.filter(SeverityWarning)
}

// HasErrors reports whether any error entry was appended.
func (l *Log) HasErrors() bool {
	for _, e := range l.entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Merge appends every entry of other.
func (l *Log) Merge(other *Log) {
	if other == nil {
		return
	}
	l.entries = append(l.entries, other.entries...)
}

// Forward replays every entry into sink.
func (l *Log) Forward(sink Sink) {
	for _, e := range l.entries {
		sink.Append(e)
	}
}

func (l *Log) filter(s Severity) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Severity == s {
			out = append(out, e)
		}
	}
	return out
}

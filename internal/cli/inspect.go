package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
	"github.com/roach88/vscript/internal/store"
)

// InspectResult describes a program's declarations.
type InspectResult struct {
	File      string         `json:"file"`
	UID       string         `json:"uid,omitempty"`
	BaseClass string         `json:"base_class,omitempty"`
	Summary   store.Summary  `json:"summary"`
	Graphs    []GraphInfo    `json:"graphs"`
	Functions []Signature    `json:"functions"`
	Variables []VariableInfo `json:"variables"`
	Signals   []Signature    `json:"signals"`
	Repairs   int            `json:"repairs,omitempty"`
}

// GraphInfo is one graph with its node count.
type GraphInfo struct {
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
}

// Signature is a function or signal with its parameters rendered as
// "name: Type".
type Signature struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
	Return string   `json:"return,omitempty"`
}

// VariableInfo is one declared variable.
type VariableInfo struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Default  json.RawMessage `json:"default,omitempty"`
	Exported bool            `json:"exported,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarize a program's graphs and declarations",
		Long: `Print counts of graphs, nodes, connections, functions, variables and
signals, followed by each declaration.

Examples:
  vscript inspect player.vsb
  vscript inspect player.vst --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, repairs, err := loadProgramFile(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	result, err := describeProgram(path, p.Snapshot())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "cannot describe program", err)
	}
	result.Repairs = repairs.Len()

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeInspectText(formatter, result)
	return nil
}

func describeProgram(path string, snap *program.Snapshot) (InspectResult, error) {
	r := InspectResult{
		File:      path,
		UID:       snap.UID(),
		BaseClass: snap.BaseClass(),
		Summary:   store.Summarize(snap),
		Graphs:    []GraphInfo{},
		Functions: []Signature{},
		Variables: []VariableInfo{},
		Signals:   []Signature{},
	}
	for _, g := range snap.Graphs() {
		r.Graphs = append(r.Graphs, GraphInfo{Name: g.Name, Nodes: len(g.Nodes)})
	}
	for _, fn := range snap.Functions() {
		sig := Signature{Name: fn.Name, Params: params(fn.Params)}
		if fn.Return != ir.TypeNil {
			sig.Return = fn.Return.String()
		}
		r.Functions = append(r.Functions, sig)
	}
	for _, v := range snap.Variables() {
		info := VariableInfo{Name: v.Name, Type: v.Type.String(), Exported: v.Exported}
		if v.Default != nil {
			def, err := ir.ToJSON(v.Default)
			if err != nil {
				return InspectResult{}, fmt.Errorf("variable %s: %w", v.Name, err)
			}
			info.Default = def
		}
		r.Variables = append(r.Variables, info)
	}
	for _, s := range snap.Signals() {
		r.Signals = append(r.Signals, Signature{Name: s.Name, Params: params(s.Args)})
	}
	return r, nil
}

func params(ps []program.Param) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name + ": " + p.Type.String()
	}
	return out
}

func writeInspectText(formatter *OutputFormatter, r InspectResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "%s\n", r.File)
	if r.UID != "" {
		fmt.Fprintf(w, "  uid:        %s\n", r.UID)
	}
	if r.BaseClass != "" {
		fmt.Fprintf(w, "  base class: %s\n", r.BaseClass)
	}
	s := r.Summary
	fmt.Fprintf(w, "  %d graphs, %d nodes, %d connections, %d functions, %d variables, %d signals\n",
		s.Graphs, s.Nodes, s.Connections, s.Functions, s.Variables, s.Signals)

	if len(r.Graphs) > 0 {
		fmt.Fprintln(w, "\nGraphs:")
		for _, g := range r.Graphs {
			fmt.Fprintf(w, "  %-24s %d nodes\n", g.Name, g.Nodes)
		}
	}
	if len(r.Functions) > 0 {
		fmt.Fprintln(w, "\nFunctions:")
		for _, fn := range r.Functions {
			line := fmt.Sprintf("  %s(%s)", fn.Name, strings.Join(fn.Params, ", "))
			if fn.Return != "" {
				line += " -> " + fn.Return
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(r.Variables) > 0 {
		fmt.Fprintln(w, "\nVariables:")
		for _, v := range r.Variables {
			line := fmt.Sprintf("  %s: %s", v.Name, v.Type)
			if v.Default != nil {
				line += " = " + string(v.Default)
			}
			if v.Exported {
				line += " (exported)"
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(r.Signals) > 0 {
		fmt.Fprintln(w, "\nSignals:")
		for _, sig := range r.Signals {
			fmt.Fprintf(w, "  %s(%s)\n", sig.Name, strings.Join(sig.Params, ", "))
		}
	}
	if r.Repairs > 0 {
		fmt.Fprintf(w, "\n%d repair(s) applied while loading\n", r.Repairs)
	}
}

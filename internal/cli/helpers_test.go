package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/config"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

func addNode(t *testing.T, p *program.Program, graph string, kind engine.NodeKind, props map[string]ir.Value) int {
	t.Helper()
	id, err := engine.AddNode(p, graph, kind, props)
	require.NoError(t, err)
	return id
}

// newTestProgram builds a program where "ready" stores its argument in
// score, emits hit(3), prints "hello" and emits done, and where double(x)
// returns x*2.
func newTestProgram(t *testing.T) *program.Program {
	t.Helper()
	p := program.New("Node")
	p.SetUID("uid://cli")
	require.NoError(t, p.AddVariable(program.Variable{Name: "score", Type: ir.TypeInt, Default: ir.Int(0)}))
	require.NoError(t, p.AddSignal(program.Signal{Name: "hit", Args: []program.Param{{Name: "damage", Type: ir.TypeInt}}}))
	require.NoError(t, p.AddSignal(program.Signal{Name: "done"}))
	require.NoError(t, p.AddFunction(program.Function{
		Name:   "double",
		Params: []program.Param{{Name: "x", Type: ir.TypeInt}},
		Return: ir.TypeInt,
	}))

	g := program.EventGraphName
	ev := addNode(t, p, g, engine.KindEvent, map[string]ir.Value{
		"event": ir.String("ready"),
		"args":  ir.PackedStringArray{"Int"},
	})
	set := addNode(t, p, g, engine.KindSetVariable, map[string]ir.Value{"variable": ir.String("score")})
	hit := addNode(t, p, g, engine.KindEmitSignal, map[string]ir.Value{"signal": ir.String("hit")})
	three := addNode(t, p, g, engine.KindConstant, map[string]ir.Value{"value": ir.Int(3)})
	printNode := addNode(t, p, g, engine.KindCallBuiltin, map[string]ir.Value{"function": ir.String("print")})
	hello := addNode(t, p, g, engine.KindConstant, map[string]ir.Value{"value": ir.String("hello")})
	done := addNode(t, p, g, engine.KindEmitSignal, map[string]ir.Value{"signal": ir.String("done")})

	require.NoError(t, p.Link(program.Out(ev, 0), program.In(set, 0)))
	require.NoError(t, p.Link(program.Out(ev, 1), program.In(set, 1)))
	require.NoError(t, p.Link(program.Out(set, 0), program.In(hit, 0)))
	require.NoError(t, p.Link(program.Out(three, 0), program.In(hit, 1)))
	require.NoError(t, p.Link(program.Out(hit, 0), program.In(printNode, 0)))
	require.NoError(t, p.Link(program.Out(hello, 0), program.In(printNode, 1)))
	require.NoError(t, p.Link(program.Out(printNode, 0), program.In(done, 0)))

	entry := addNode(t, p, "double", engine.KindFunctionEntry, map[string]ir.Value{"function": ir.String("double")})
	result := addNode(t, p, "double", engine.KindFunctionResult, map[string]ir.Value{"function": ir.String("double")})
	op := addNode(t, p, "double", engine.KindOperator, map[string]ir.Value{"op": ir.String("*")})
	require.NoError(t, p.Link(program.Out(entry, 0), program.In(result, 0)))
	require.NoError(t, p.Link(program.Out(entry, 1), program.In(op, 0)))
	require.NoError(t, p.SetPinDefault(program.In(op, 1), ir.Int(2)))
	require.NoError(t, p.Link(program.Out(op, 0), program.In(result, 1)))
	return p
}

// newBrokenProgram builds a program whose for_each node has no array input.
func newBrokenProgram(t *testing.T) *program.Program {
	t.Helper()
	p := program.New("Node")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, map[string]ir.Value{"event": ir.String("ready")})
	loop := addNode(t, p, program.EventGraphName, engine.KindForEach, nil)
	require.NoError(t, p.Link(program.Out(ev, 0), program.In(loop, 0)))
	return p
}

func saveProgram(t *testing.T, p *program.Program, path string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, codec.Save(f, p.Snapshot(), codec.WithFormat(codec.FormatForPath(path))))
	return path
}

func writeTestProgram(t *testing.T, dir, name string) string {
	t.Helper()
	return saveProgram(t, newTestProgram(t), filepath.Join(dir, name))
}

// testRoot returns options with a config whose SQLite library lives in a
// temp directory.
func testRoot(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "library.db")
	return &RootOptions{Format: format, Config: &cfg}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

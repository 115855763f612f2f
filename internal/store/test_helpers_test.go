package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProgram builds a small program with one linked event chain.
func createTestProgram(t *testing.T, uid string) *program.Program {
	t.Helper()
	p := program.New("Node")
	p.SetUID(uid)
	require.NoError(t, p.AddSignal(program.Signal{Name: "done"}))
	require.NoError(t, p.AddVariable(program.Variable{Name: "count", Type: ir.TypeInt, Default: ir.Int(0)}))

	ev, err := engine.AddNode(p, program.EventGraphName, engine.KindEvent, map[string]ir.Value{"event": ir.String("ready")})
	require.NoError(t, err)
	emit, err := engine.AddNode(p, program.EventGraphName, engine.KindEmitSignal, map[string]ir.Value{"signal": ir.String("done")})
	require.NoError(t, err)
	require.NoError(t, p.Link(program.Out(ev, 0), program.In(emit, 0)))
	return p
}

// createTestRecord creates a record with minimal required fields.
func createTestRecord(path string) Record {
	return Record{
		Path:   path,
		UID:    "uid://" + path,
		Format: "binary",
		Data:   []byte{0x01, 0x02},
	}
}

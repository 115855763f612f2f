package codec

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/builder"
	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

type quietOwner struct{}

func (quietOwner) Path() string                                    { return "/root/Main" }
func (quietOwner) Class() string                                   { return "Node2D" }
func (quietOwner) EmitSignal(string, []ir.Value) error             { return nil }
func (quietOwner) CallMethod(string, []ir.Value) (ir.Value, error) { return ir.Nil{}, nil }

// editedLoopProgram encodes "ready -> for_loop" as text after replacing the
// default of the loop's "first" input, as a hand edit of the file would.
func editedLoopProgram(t *testing.T, first ir.Value) []byte {
	t.Helper()
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, map[string]ir.Value{"event": ir.String("ready")})
	loop := addNode(t, p, program.EventGraphName, engine.KindForLoop, nil)
	require.NoError(t, p.Link(program.Out(ev, 0), program.In(loop, 0)))

	doc, err := ToDocument(p.Snapshot())
	require.NoError(t, err)
	var edited bool
	for _, o := range doc.Subs {
		if kind, _ := o.Get("kind"); !ir.Equal(kind, ir.String(engine.KindForLoop)) {
			continue
		}
		inputs, _ := o.Get("inputs")
		pin := inputs.(ir.Array)[1].(*ir.Dictionary)
		require.True(t, ir.Equal(mustGet(t, pin, "name"), ir.String("first")))
		pin.Set(ir.String("default"), first)
		edited = true
	}
	require.True(t, edited, "for_loop node not found in document")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, WithFormat(FormatText)))
	return buf.Bytes()
}

func codesOf(entries []diag.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

func mustGet(t *testing.T, d *ir.Dictionary, key string) ir.Value {
	t.Helper()
	v, ok := d.Get(ir.String(key))
	require.True(t, ok, "missing %q", key)
	return v
}

func TestLoadedPinDefaultOfWrongType(t *testing.T) {
	tests := []struct {
		name  string
		first ir.Value
	}{
		{"float", ir.Float(1.5)},
		{"null", ir.Nil{}},
		{"string", ir.String("three")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := editedLoopProgram(t, tt.first)

			p, _, err := Load(bytes.NewReader(data))
			require.NoError(t, err)

			log, err := builder.Build(p.Snapshot())
			require.Error(t, err)
			assert.Contains(t, codesOf(log.Errors()), builder.ErrBadDefault)

			// a host that skips the build still gets a typed error
			assert.NotPanics(t, func() {
				err = engine.Instantiate(p, quietOwner{}).Trigger(context.Background(), "ready")
			})
			require.Error(t, err)
			assert.True(t, engine.IsRuntimeError(err, engine.ErrCodeTypeMismatch))
		})
	}
}

func TestLoadedPinDefaultWideningStillRuns(t *testing.T) {
	data := editedLoopProgram(t, ir.Int(2))

	p, _, err := Load(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = builder.Build(p.Snapshot())
	require.NoError(t, err)
	assert.NoError(t, engine.Instantiate(p, quietOwner{}).Trigger(context.Background(), "ready"))
}

func TestLoadedVariableDefaultOfWrongTypeIsCorrupt(t *testing.T) {
	p := program.New("Node2D")
	require.NoError(t, p.AddVariable(program.Variable{Name: "score", Type: ir.TypeInt}))
	doc, err := ToDocument(p.Snapshot())
	require.NoError(t, err)
	vars, ok := doc.Main.Get("variables")
	require.True(t, ok)
	vars.(ir.Array)[0].(*ir.Dictionary).Set(ir.String("default"), ir.String("lots"))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, WithFormat(FormatText)))
	_, _, err = Load(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, program.ErrTypeMismatch)
}

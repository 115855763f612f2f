package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/diag"
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

// sampleProgram exercises every part of the program model. All reals are
// exact in float32 so narrow encodings round-trip too.
func sampleProgram(t *testing.T) *program.Program {
	t.Helper()
	p := program.New("Node2D")
	p.SetUID("uid://sample")
	require.NoError(t, p.AddSignal(program.Signal{Name: "hit", Args: []program.Param{{Name: "damage", Type: ir.TypeInt}}}))
	require.NoError(t, p.AddVariable(program.Variable{Name: "score", Type: ir.TypeInt, Default: ir.Int(7), Exported: true, Hint: "range"}))
	require.NoError(t, p.AddFunction(program.Function{
		Name:   "double",
		Params: []program.Param{{Name: "x", Type: ir.TypeInt}},
		Return: ir.TypeInt,
	}))

	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, map[string]ir.Value{"event": ir.String("ready")})
	emit := addNode(t, p, program.EventGraphName, engine.KindEmitSignal, map[string]ir.Value{"signal": ir.String("hit")})
	c := addNode(t, p, program.EventGraphName, engine.KindConstant, map[string]ir.Value{"value": ir.Int(3)})
	addNode(t, p, program.EventGraphName, engine.KindConstant, map[string]ir.Value{"value": ir.Vector2{X: 1.5, Y: -2.25}})
	require.NoError(t, p.Link(program.Out(ev, 0), program.In(emit, 0)))
	require.NoError(t, p.Link(program.Out(c, 0), program.In(emit, 1)))
	require.NoError(t, p.SetNodeFlags(emit, program.FlagBreakpoint))

	entry := addNode(t, p, "double", engine.KindFunctionEntry, map[string]ir.Value{"function": ir.String("double")})
	result := addNode(t, p, "double", engine.KindFunctionResult, map[string]ir.Value{"function": ir.String("double")})
	op := addNode(t, p, "double", engine.KindOperator, map[string]ir.Value{"op": ir.String("*")})
	require.NoError(t, p.Link(program.Out(entry, 0), program.In(result, 0)))
	require.NoError(t, p.Link(program.Out(entry, 1), program.In(op, 0)))
	require.NoError(t, p.SetPinDefault(program.In(op, 1), ir.Int(2)))
	return p
}

func orNilValue(v ir.Value) ir.Value {
	if v == nil {
		return ir.Nil{}
	}
	return v
}

func assertSamePins(t *testing.T, id int, want, got []program.Pin) {
	t.Helper()
	require.Len(t, got, len(want), "node %d", id)
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Name, g.Name)
		assert.Equal(t, w.Dir, g.Dir)
		assert.Equal(t, w.Kind, g.Kind)
		assert.Equal(t, w.Type, g.Type)
		assert.Equal(t, w.ClassName, g.ClassName)
		assert.Equal(t, w.Required, g.Required)
		assert.Equal(t, w.Links(), g.Links(), "node %d pin %s", id, w.Name)
		assert.True(t, ir.Equal(orNilValue(w.Default), orNilValue(g.Default)),
			"node %d pin %s default: %v != %v", id, w.Name, w.Default, g.Default)
	}
}

// assertSameProgram checks structural equality: nodes, pins, connections,
// default values and declarations.
func assertSameProgram(t *testing.T, want, got *program.Snapshot) {
	t.Helper()
	assert.Equal(t, want.UID(), got.UID())
	assert.Equal(t, want.BaseClass(), got.BaseClass())
	assert.Equal(t, want.Connections(), got.Connections())
	assert.Equal(t, want.Functions(), got.Functions())
	assert.Equal(t, want.Signals(), got.Signals())

	require.Len(t, got.Variables(), len(want.Variables()))
	for i, w := range want.Variables() {
		g := got.Variables()[i]
		assert.Equal(t, w.Name, g.Name)
		assert.Equal(t, w.Type, g.Type)
		assert.Equal(t, w.Exported, g.Exported)
		assert.Equal(t, w.Hint, g.Hint)
		assert.True(t, ir.Equal(w.Default, g.Default))
	}

	require.Len(t, got.Graphs(), len(want.Graphs()))
	for i, w := range want.Graphs() {
		assert.Equal(t, *w, *got.Graphs()[i])
	}

	require.Equal(t, want.NodeIDs(), got.NodeIDs())
	for _, id := range want.NodeIDs() {
		w, _ := want.Node(id)
		g, _ := got.Node(id)
		assert.Equal(t, w.Kind, g.Kind)
		assert.Equal(t, w.Flags, g.Flags)
		assert.Equal(t, w.SchemaVersion, g.SchemaVersion)
		assert.Equal(t, w.Position, g.Position)
		assert.Len(t, g.Props, len(w.Props))
		for k, v := range w.Props {
			assert.True(t, ir.Equal(v, g.Props[k]), "node %d prop %s", id, k)
		}
		assertSamePins(t, id, w.Inputs, g.Inputs)
		assertSamePins(t, id, w.Outputs, g.Outputs)
	}
}

func roundTrip(t *testing.T, p *program.Program, opts ...Option) (*program.Program, *diag.Log) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, p.Snapshot(), opts...))
	got, log, err := Load(&buf)
	require.NoError(t, err)
	return got, log
}

func TestBinaryRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{"little wide", nil},
		{"big wide", []Option{WithBigEndian(true)}},
		{"little narrow", []Option{WithWideFloats(false)}},
		{"big narrow", []Option{WithBigEndian(true), WithWideFloats(false)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := sampleProgram(t)
			got, log := roundTrip(t, p, tc.opts...)
			assert.Zero(t, log.Len())
			assertSameProgram(t, p.Snapshot(), got.Snapshot())
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	p := sampleProgram(t)
	got, log := roundTrip(t, p, WithFormat(FormatText))
	assert.Zero(t, log.Len())
	assertSameProgram(t, p.Snapshot(), got.Snapshot())
}

func TestSaveIsDeterministic(t *testing.T) {
	p := sampleProgram(t)
	var a, b bytes.Buffer
	require.NoError(t, Save(&a, p.Snapshot()))
	require.NoError(t, Save(&b, p.Snapshot()))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

// everyValue holds one value of every type the binary format can express.
func everyValue() *Object {
	o := NewObject("Values", "")
	o.Set("nil", ir.Nil{})
	o.Set("bool", ir.Bool(true))
	o.Set("int", ir.Int(-42))
	o.Set("int64", ir.Int(1<<40))
	o.Set("float", ir.Float(0.5))
	o.Set("double", ir.Float(0.1))
	o.Set("whole_float", ir.Float(3))
	o.Set("string", ir.String("héllo \"world\"\n"))
	o.Set("vector2", ir.Vector2{X: 0.1, Y: -2})
	o.Set("vector2i", ir.Vector2i{X: 1, Y: -2})
	o.Set("rect2", ir.Rect2{Position: ir.Vector2{X: 1, Y: 2}, Size: ir.Vector2{X: 3, Y: 4}})
	o.Set("rect2i", ir.Rect2i{Position: ir.Vector2i{X: 1, Y: 2}, Size: ir.Vector2i{X: 3, Y: 4}})
	o.Set("vector3", ir.Vector3{X: 1, Y: 2, Z: 3})
	o.Set("vector3i", ir.Vector3i{X: 1, Y: 2, Z: 3})
	o.Set("transform2d", ir.Transform2D{X: ir.Vector2{X: 1}, Y: ir.Vector2{Y: 1}, Origin: ir.Vector2{X: 5, Y: 6}})
	o.Set("vector4", ir.Vector4{X: 1, Y: 2, Z: 3, W: 4})
	o.Set("vector4i", ir.Vector4i{X: 1, Y: 2, Z: 3, W: 4})
	o.Set("plane", ir.Plane{Normal: ir.Vector3{Y: 1}, D: 2})
	o.Set("quaternion", ir.Quaternion{W: 1})
	o.Set("aabb", ir.AABB{Position: ir.Vector3{X: -1}, Size: ir.Vector3{X: 2, Y: 2, Z: 2}})
	o.Set("basis", ir.Basis{Rows: [3]ir.Vector3{{X: 1}, {Y: 1}, {Z: 1}}})
	o.Set("transform3d", ir.Transform3D{Basis: ir.Basis{Rows: [3]ir.Vector3{{X: 1}, {Y: 1}, {Z: 1}}}, Origin: ir.Vector3{Z: 9}})
	o.Set("projection", ir.Projection{Columns: [4]ir.Vector4{{X: 1}, {Y: 1}, {Z: 1}, {W: 1}}})
	o.Set("color", ir.Color{R: 1, G: 0.5, B: 0.25, A: 1})
	o.Set("nodepath", ir.NodePath{Names: []string{"root", "Player"}, Subnames: []string{"position", "x"}, Absolute: true})
	o.Set("odd_nodepath", ir.NodePath{Names: []string{"a/b", ""}})
	o.Set("empty_object", ir.Object{Kind: ir.ObjectEmpty})
	o.Set("sub", ir.Object{Kind: ir.ObjectInternal, Index: 0})
	o.Set("ext", ir.Object{Kind: ir.ObjectExternal, Index: 0})
	o.Set("dictionary", ir.NewDictionary(
		ir.E(ir.String("a"), ir.Int(1)),
		ir.E(ir.Int(2), ir.Array{ir.Bool(false), ir.Nil{}}),
	))
	o.Set("empty_dictionary", ir.NewDictionary())
	o.Set("array", ir.Array{ir.Int(1), ir.String("two"), ir.Array{ir.Float(3.5)}})
	o.Set("bytes", ir.PackedByteArray{1, 2, 3, 255, 0})
	o.Set("int32s", ir.PackedInt32Array{-1, 0, 1})
	o.Set("int64s", ir.PackedInt64Array{-1 << 40, 1 << 40})
	o.Set("float32s", ir.PackedFloat32Array{0.5, -1})
	o.Set("float64s", ir.PackedFloat64Array{0.1, 1e300})
	o.Set("strings", ir.PackedStringArray{"a", "", "ccc"})
	o.Set("vector2s", ir.PackedVector2Array{{X: 1, Y: 2}, {X: 3, Y: 4}})
	o.Set("vector3s", ir.PackedVector3Array{{X: 1, Y: 2, Z: 3}})
	o.Set("vector4s", ir.PackedVector4Array{{X: 1, Y: 2, Z: 3, W: 4}})
	o.Set("colors", ir.PackedColorArray{{R: 1, A: 1}, {G: 0.75, A: 0.5}})
	o.Set("empty_bytes", ir.PackedByteArray{})
	return o
}

func everyValueDocument() *Document {
	return &Document{
		Type:     "Values",
		External: []External{{Type: "Texture", Path: "res://icon.png", ID: "icon"}},
		Subs:     []*Object{NewObject("Leaf", "leaf")},
		Main:     everyValue(),
	}
}

func assertSameDocument(t *testing.T, want, got *Document) {
	t.Helper()
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.External, got.External)
	require.Len(t, got.Subs, len(want.Subs))
	for i := range want.Subs {
		assert.Equal(t, want.Subs[i].Type, got.Subs[i].Type)
		assert.Equal(t, want.Subs[i].ID, got.Subs[i].ID)
	}
	require.Len(t, got.Main.Props, len(want.Main.Props))
	for i, p := range want.Main.Props {
		g := got.Main.Props[i]
		assert.Equal(t, p.Name, g.Name)
		assert.True(t, ir.Equal(p.Value, g.Value), "%s: %#v != %#v", p.Name, p.Value, g.Value)
	}
}

func TestEveryValueRoundTrips(t *testing.T) {
	for _, format := range []Format{FormatBinary, FormatText} {
		t.Run(string(format), func(t *testing.T) {
			want := everyValueDocument()
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, WithFormat(format)))
			got, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, FormatVersion, got.Format)
			assertSameDocument(t, want, got)
		})
	}
}

func TestEncodeRejectsForwardSubReference(t *testing.T) {
	first := NewObject("Leaf", "a")
	first.Set("next", ir.Object{Kind: ir.ObjectInternal, Index: 1})
	doc := &Document{Type: "Values", Subs: []*Object{first, NewObject("Leaf", "b")}, Main: NewObject("Values", "")}

	for _, format := range []Format{FormatBinary, FormatText} {
		err := Encode(&bytes.Buffer{}, doc, WithFormat(format))
		assert.True(t, IsCodecError(err, ErrCodeBadReference), "%s: %v", format, err)
	}
}

func TestEncodeRejectsHostObjects(t *testing.T) {
	main := NewObject("Values", "")
	main.Set("owner", ir.Object{Kind: ir.ObjectHost, Host: struct{}{}})
	err := Encode(&bytes.Buffer{}, &Document{Type: "Values", Main: main})
	assert.True(t, IsCodecError(err, ErrCodeUnencodable))
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("VSCX\x00\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func encoded(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, sampleProgram(t).Snapshot()))
	return buf.Bytes()
}

func TestDecodeNewerVersionFailsBeforeParsing(t *testing.T) {
	data := encoded(t)
	// magic, endian flag, wide flag, version
	binary.LittleEndian.PutUint32(data[12:], FormatVersion+1)

	_, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrCorrupt)

	binary.LittleEndian.PutUint32(data[12:], 0)
	_, err = Decode(bytes.NewReader(data))
	assert.True(t, IsCodecError(err, ErrCodeCorruptFile))
}

func TestDecodeOlderVersionWithoutExternalTable(t *testing.T) {
	main := NewObject("Values", "")
	main.Set("n", ir.Int(5))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Document{Type: "Values", Main: main}))
	data := buf.Bytes()

	// Drop the empty external table that format 3 added after the string
	// table, shift the index offsets and mark the stream as format 2.
	const header = 4 + 4 + 4 + 4 + 12
	typeLen := 4 + 8 // "Values" padded
	pos := header + typeLen + 4*reservedFields
	strCount := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	for range strCount {
		n := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4 + (n+3)/4*4
	}
	require.Zero(t, binary.LittleEndian.Uint32(data[pos:]))
	old := append(append([]byte(nil), data[:pos]...), data[pos+4:]...)
	binary.LittleEndian.PutUint32(old[12:], 2)

	idx := pos
	count := int(binary.LittleEndian.Uint32(old[idx:]))
	idx += 4
	for range count {
		n := int(binary.LittleEndian.Uint32(old[idx:]))
		idx += 4 + (n+3)/4*4
		off := binary.LittleEndian.Uint64(old[idx:])
		binary.LittleEndian.PutUint64(old[idx:], off-4)
		idx += 8
	}

	doc, err := Decode(bytes.NewReader(old))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), doc.Format)
	v, ok := doc.Main.Get("n")
	require.True(t, ok)
	assert.Equal(t, ir.Int(5), v)
}

func TestDecodeTruncatedInputIsCorruptAndLeavesNoState(t *testing.T) {
	data := encoded(t)
	for n := 4; n < len(data); n += 7 {
		_, err := Decode(bytes.NewReader(data[:n]))
		require.Error(t, err, "prefix %d", n)
		assert.ErrorIs(t, err, ErrCorrupt, "prefix %d", n)
	}

	// A failed load must not affect the next one.
	p, log, err := Load(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Zero(t, log.Len())
	assertSameProgram(t, sampleProgram(t).Snapshot(), p.Snapshot())
}

func TestCorruptMatchesEveryStructuralCode(t *testing.T) {
	for _, code := range []ErrorCode{ErrCodeTruncated, ErrCodeCorruptTag, ErrCodeCorruptFile, ErrCodeBadReference, ErrCodeParse} {
		err := fmt.Errorf("load: %w", &Error{Code: code, Offset: 12, Message: "string table"})
		assert.ErrorIs(t, err, ErrCorrupt, "%s", code)
		assert.NotErrorIs(t, err, ErrBadMagic, "%s", code)
	}

	truncated := &Error{Code: ErrCodeTruncated, Offset: 12}
	assert.ErrorIs(t, truncated, ErrTruncated)
	assert.False(t, IsCodecError(truncated, ErrCodeCorruptFile))

	for _, code := range []ErrorCode{ErrCodeBadMagic, ErrCodeUnsupportedVersion, ErrCodeUnencodable} {
		assert.NotErrorIs(t, &Error{Code: code}, ErrCorrupt, "%s", code)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	main := NewObject("Values", "")
	main.Set("n", ir.Int(0x12345678))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Document{Type: "Values", Main: main}))
	data := buf.Bytes()

	at := bytes.Index(data, []byte{byte(tagInt), 0, 0, 0, 0x78, 0x56, 0x34, 0x12})
	require.Positive(t, at)
	data[at] = 99

	_, err := Decode(bytes.NewReader(data))
	assert.True(t, IsCodecError(err, ErrCodeCorruptTag), "%v", err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeMissingTrailer(t *testing.T) {
	data := encoded(t)
	data[len(data)-1] = 0
	_, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestTextWriterGolden(t *testing.T) {
	node := NewObject(NodeType, "1")
	node.Set("id", ir.Int(1))
	node.Set("position", ir.Vector2{X: 1.5, Y: -2})
	node.Set("props", ir.NewDictionary(ir.E(ir.String("value"), ir.Float(3))))

	main := NewObject(ProgramType, "")
	main.Set("uid", ir.String("uid://abc"))
	main.Set("base_class", ir.String("Node"))
	main.Set("nodes", ir.Array{ir.Object{Kind: ir.ObjectInternal, Index: 0}})
	main.Set("icon", ir.Object{Kind: ir.ObjectExternal, Index: 0})
	main.Set("empty", ir.Object{Kind: ir.ObjectEmpty})
	main.Set("tags", ir.PackedStringArray{"a", "b"})
	main.Set("path", ir.NodePath{Names: []string{"root", "Player"}, Subnames: []string{"position"}, Absolute: true})
	main.Set("color", ir.Color{R: 1, G: 0.5, B: 0, A: 1})

	doc := &Document{
		Type:        ProgramType,
		HostVersion: [3]uint32{0, 3, 0},
		External:    []External{{Type: "Texture", Path: "res://icon.png", ID: "icon"}},
		Subs:        []*Object{node},
		Main:        main,
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, WithFormat(FormatText)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "document", buf.Bytes())
}

func TestTextParseErrorsCarryPosition(t *testing.T) {
	src := "[program type=\"VisualScript\" format=3]\n\n[resource]\nbase_class = Vector2(1,\n"
	_, err := Decode(bytes.NewReader([]byte(src)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.True(t, IsCodecError(err, ErrCodeParse))
	assert.Contains(t, err.Error(), "5:1")
}

func TestTextRejectsNewerVersion(t *testing.T) {
	src := "[program type=\"VisualScript\" format=9]\n[resource]\n"
	_, err := Decode(bytes.NewReader([]byte(src)))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestTextCommentsAndHeaderUID(t *testing.T) {
	src := `; hand written
[program type="VisualScript" format=3 uid="uid://hand"]

[resource]
base_class = "Node" ; host class
graphs = [{
"name": "EventGraph",
"flags": 1,
"nodes": []
}]
`
	p, log, err := Load(bytes.NewReader([]byte(src)))
	require.NoError(t, err)
	assert.Zero(t, log.Len())
	s := p.Snapshot()
	assert.Equal(t, "uid://hand", s.UID())
	assert.Equal(t, "Node", s.BaseClass())
	_, ok := s.Graph(program.EventGraphName)
	assert.True(t, ok)
}

func TestLoadRepairsMissingEventGraph(t *testing.T) {
	p := program.NewEmpty("Node")
	require.NoError(t, p.AddFunction(program.Function{Name: "helper", Return: ir.TypeNil}))
	doc, err := ToDocument(p.Snapshot())
	require.NoError(t, err)

	log := &diag.Log{}
	got, err := FromDocument(doc, log)
	require.NoError(t, err)

	require.Len(t, log.Warnings(), 1)
	assert.Equal(t, WarnMissingEventGraph, log.Warnings()[0].Code)
	g, ok := got.Snapshot().Graph(program.EventGraphName)
	require.True(t, ok)
	assert.Equal(t, program.GraphEvent, g.Flags)
	_, ok = got.Snapshot().Function("helper")
	assert.True(t, ok)
}

func TestLoadDefaultsMissingSchemaVersion(t *testing.T) {
	p := sampleProgram(t)
	doc, err := ToDocument(p.Snapshot())
	require.NoError(t, err)
	for _, sub := range doc.Subs {
		kept := sub.Props[:0]
		for _, prop := range sub.Props {
			if prop.Name != "schema" {
				kept = append(kept, prop)
			}
		}
		sub.Props = kept
	}

	got, err := FromDocument(doc, &diag.Log{})
	require.NoError(t, err)
	for _, id := range got.Snapshot().NodeIDs() {
		n, _ := got.Snapshot().Node(id)
		assert.Equal(t, 1, n.SchemaVersion)
	}
}

func TestLoadReportsMalformedDocument(t *testing.T) {
	doc, err := ToDocument(sampleProgram(t).Snapshot())
	require.NoError(t, err)
	doc.Subs[0].Set("inputs", ir.String("oops"))

	_, err = FromDocument(doc, &diag.Log{})
	assert.True(t, IsCodecError(err, ErrCodeCorruptFile), "%v", err)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatText, FormatForPath("a/b.vst"))
	assert.Equal(t, FormatBinary, FormatForPath("a/b.vsb"))
	assert.Equal(t, FormatBinary, FormatForPath("noext"))

	f, err := ParseFormat("TEXT")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

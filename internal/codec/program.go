package codec

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// Persisted class names.
const (
	ProgramType = "VisualScript"
	NodeType    = "VisualScriptNode"
)

// Codes for legacy repairs and dropped structure reported while loading.
const (
	WarnMissingEventGraph = "W301" // event graph was missing and has been inserted
	WarnOrphanNode        = "W302" // node object not referenced by any graph
	WarnDroppedLink       = "W303" // connection no longer valid for its pins
)

// ToDocument maps a program snapshot to a document. Every node becomes a
// sub-object, in graph order; the main object references them by index.
func ToDocument(snap *program.Snapshot) (*Document, error) {
	doc := &Document{
		Type:        ProgramType,
		Format:      FormatVersion,
		HostVersion: [3]uint32{ir.EngineMajor, ir.EngineMinor, ir.EnginePatch},
	}

	graphs := make(ir.Array, 0, len(snap.Graphs()))
	for _, g := range snap.Graphs() {
		refs := make(ir.Array, 0, len(g.Nodes))
		for _, id := range g.Nodes {
			n, ok := snap.Node(id)
			if !ok {
				return nil, newError(ErrCodeCorruptFile, -1, "graph %q lists missing node %d", g.Name, id)
			}
			refs = append(refs, ir.Object{Kind: ir.ObjectInternal, Index: len(doc.Subs)})
			doc.Subs = append(doc.Subs, nodeObject(n))
		}
		graphs = append(graphs, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(g.Name)),
			ir.E(ir.String("flags"), ir.Int(g.Flags)),
			ir.E(ir.String("nodes"), refs),
		))
	}

	functions := ir.Array{}
	for _, f := range snap.Functions() {
		functions = append(functions, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(f.Name)),
			ir.E(ir.String("graph"), ir.String(f.Graph)),
			ir.E(ir.String("params"), paramsValue(f.Params)),
			ir.E(ir.String("return"), ir.String(f.Return.String())),
		))
	}
	variables := ir.Array{}
	for _, v := range snap.Variables() {
		variables = append(variables, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(v.Name)),
			ir.E(ir.String("type"), ir.String(v.Type.String())),
			ir.E(ir.String("default"), orNil(v.Default)),
			ir.E(ir.String("exported"), ir.Bool(v.Exported)),
			ir.E(ir.String("hint"), ir.String(v.Hint)),
		))
	}
	signals := ir.Array{}
	for _, s := range snap.Signals() {
		signals = append(signals, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(s.Name)),
			ir.E(ir.String("args"), paramsValue(s.Args)),
		))
	}
	conns := make(ir.PackedInt32Array, 0, 4*len(snap.Connections()))
	for _, c := range snap.Connections() {
		conns = append(conns, int32(c.FromNode), int32(c.FromPort), int32(c.ToNode), int32(c.ToPort))
	}

	main := NewObject(ProgramType, "")
	main.Set("uid", ir.String(snap.UID()))
	main.Set("base_class", ir.String(snap.BaseClass()))
	main.Set("graphs", graphs)
	main.Set("functions", functions)
	main.Set("variables", variables)
	main.Set("signals", signals)
	main.Set("connections", conns)
	doc.Main = main
	return doc, nil
}

func orNil(v ir.Value) ir.Value {
	if v == nil {
		return ir.Nil{}
	}
	return v
}

func paramsValue(ps []program.Param) ir.Array {
	out := make(ir.Array, 0, len(ps))
	for _, p := range ps {
		out = append(out, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(p.Name)),
			ir.E(ir.String("type"), ir.String(p.Type.String())),
		))
	}
	return out
}

func nodeObject(n *program.Node) *Object {
	o := NewObject(NodeType, strconv.Itoa(n.ID))
	o.Set("id", ir.Int(n.ID))
	o.Set("kind", ir.String(n.Kind))
	o.Set("flags", ir.Int(n.Flags))
	o.Set("schema", ir.Int(n.SchemaVersion))
	o.Set("position", n.Position)

	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	props := ir.NewDictionary()
	for _, k := range keys {
		props.Set(ir.String(k), orNil(n.Props[k]))
	}
	o.Set("props", props)
	o.Set("inputs", pinsValue(n.Inputs))
	o.Set("outputs", pinsValue(n.Outputs))
	return o
}

func pinsValue(pins []program.Pin) ir.Array {
	out := make(ir.Array, 0, len(pins))
	for _, p := range pins {
		out = append(out, ir.NewDictionary(
			ir.E(ir.String("name"), ir.String(p.Name)),
			ir.E(ir.String("kind"), ir.String(p.Kind.String())),
			ir.E(ir.String("type"), ir.String(p.Type.String())),
			ir.E(ir.String("class"), ir.String(p.ClassName)),
			ir.E(ir.String("default"), orNil(p.Default)),
			ir.E(ir.String("required"), ir.Bool(p.Required)),
		))
	}
	return out
}

// shape reads typed fields out of document values. The first mismatch
// sticks; later reads return zero values so callers check err once.
type shape struct {
	err error
}

func (s *shape) failf(format string, args ...any) {
	if s.err == nil {
		s.err = newError(ErrCodeCorruptFile, -1, format, args...)
	}
}

func (s *shape) field(d *ir.Dictionary, key string) ir.Value {
	if d == nil {
		return nil
	}
	v, ok := d.Get(ir.String(key))
	if !ok {
		s.failf("missing field %q", key)
		return nil
	}
	return v
}

func (s *shape) str(v ir.Value, what string) string {
	x, ok := v.(ir.String)
	if !ok {
		s.failf("%s: want String, got %s", what, ir.TypeOf(v))
	}
	return string(x)
}

func (s *shape) integer(v ir.Value, what string) int64 {
	x, ok := v.(ir.Int)
	if !ok {
		s.failf("%s: want int, got %s", what, ir.TypeOf(v))
	}
	return int64(x)
}

func (s *shape) boolean(v ir.Value, what string) bool {
	x, ok := v.(ir.Bool)
	if !ok {
		s.failf("%s: want bool, got %s", what, ir.TypeOf(v))
	}
	return bool(x)
}

func (s *shape) array(v ir.Value, what string) ir.Array {
	x, ok := v.(ir.Array)
	if !ok {
		s.failf("%s: want Array, got %s", what, ir.TypeOf(v))
	}
	return x
}

func (s *shape) dict(v ir.Value, what string) *ir.Dictionary {
	x, ok := v.(*ir.Dictionary)
	if !ok {
		s.failf("%s: want Dictionary, got %s", what, ir.TypeOf(v))
	}
	return x
}

func (s *shape) typ(v ir.Value, what string) ir.Type {
	name := s.str(v, what)
	if s.err != nil {
		return ir.TypeNil
	}
	t, err := ir.ParseType(name)
	if err != nil {
		s.failf("%s: %v", what, err)
	}
	return t
}

func (s *shape) params(v ir.Value, what string) []program.Param {
	var out []program.Param
	for i, e := range s.array(v, what) {
		d := s.dict(e, fmt.Sprintf("%s[%d]", what, i))
		out = append(out, program.Param{
			Name: s.str(s.field(d, "name"), what+".name"),
			Type: s.typ(s.field(d, "type"), what+".type"),
		})
	}
	return out
}

// FromDocument rebuilds a program. Structure that an older writer could
// leave out is repaired, logged at warn level and recorded in log.
func FromDocument(doc *Document, log *diag.Log) (*program.Program, error) {
	if doc.Main == nil {
		return nil, newError(ErrCodeCorruptFile, -1, "document has no main object")
	}
	if doc.Type != "" && doc.Type != ProgramType {
		return nil, newError(ErrCodeCorruptFile, -1, "main object is a %q, not a %s", doc.Type, ProgramType)
	}
	s := &shape{}
	get := func(name string) ir.Value {
		v, ok := doc.Main.Get(name)
		if !ok {
			s.failf("main object has no %q", name)
		}
		return v
	}

	p := program.NewEmpty(s.str(get("base_class"), "base_class"))
	if uid, ok := doc.Main.Get("uid"); ok {
		p.SetUID(s.str(uid, "uid"))
	}

	placed := make(map[int]bool)
	for i, gv := range s.array(get("graphs"), "graphs") {
		what := fmt.Sprintf("graphs[%d]", i)
		g := s.dict(gv, what)
		name := s.str(s.field(g, "name"), what+".name")
		flags := s.integer(s.field(g, "flags"), what+".flags")
		nodes := s.array(s.field(g, "nodes"), what+".nodes")
		if s.err != nil {
			return nil, s.err
		}
		if err := p.AddGraph(name, program.GraphFlags(flags)); err != nil {
			return nil, &Error{Code: ErrCodeCorruptFile, Offset: -1, Message: what, Err: err}
		}
		for j, ref := range nodes {
			o, ok := ref.(ir.Object)
			if !ok || o.Kind != ir.ObjectInternal || o.Index < 0 || o.Index >= len(doc.Subs) {
				return nil, newError(ErrCodeBadReference, -1, "%s.nodes[%d] is not a node reference", what, j)
			}
			n, err := nodeFromObject(doc.Subs[o.Index])
			if err != nil {
				return nil, err
			}
			if err := p.AddNode(name, n); err != nil {
				return nil, &Error{Code: ErrCodeCorruptFile, Offset: -1, Message: what, Err: err}
			}
			placed[o.Index] = true
		}
	}
	for i, sub := range doc.Subs {
		if sub.Type == NodeType && !placed[i] {
			slog.Warn("dropping node outside every graph", "path", doc.Path, "object", sub.ID)
			log.Warnf(diag.Global("graphs"), WarnOrphanNode, "node object %q is not in any graph and was dropped", sub.ID)
		}
	}

	snap := p.Snapshot()
	if _, ok := snap.Graph(program.EventGraphName); !ok {
		slog.Warn("inserting missing event graph", "path", doc.Path, "uid", snap.UID())
		log.Warnf(diag.Global("graphs"), WarnMissingEventGraph, "program had no %s; an empty one was inserted", program.EventGraphName)
		if err := p.AddGraph(program.EventGraphName, program.GraphEvent); err != nil {
			return nil, err
		}
	}

	if v, ok := doc.Main.Get("functions"); ok {
		for i, fv := range s.array(v, "functions") {
			what := fmt.Sprintf("functions[%d]", i)
			d := s.dict(fv, what)
			fn := program.Function{
				Name:   s.str(s.field(d, "name"), what+".name"),
				Graph:  s.str(s.field(d, "graph"), what+".graph"),
				Params: s.params(s.field(d, "params"), what+".params"),
				Return: s.typ(s.field(d, "return"), what+".return"),
			}
			if s.err != nil {
				return nil, s.err
			}
			if err := p.AddFunction(fn); err != nil {
				return nil, &Error{Code: ErrCodeCorruptFile, Offset: -1, Message: what, Err: err}
			}
		}
	}
	if v, ok := doc.Main.Get("variables"); ok {
		for i, vv := range s.array(v, "variables") {
			what := fmt.Sprintf("variables[%d]", i)
			d := s.dict(vv, what)
			variable := program.Variable{
				Name:     s.str(s.field(d, "name"), what+".name"),
				Type:     s.typ(s.field(d, "type"), what+".type"),
				Default:  s.field(d, "default"),
				Exported: s.boolean(s.field(d, "exported"), what+".exported"),
				Hint:     s.str(s.field(d, "hint"), what+".hint"),
			}
			if s.err != nil {
				return nil, s.err
			}
			if err := p.AddVariable(variable); err != nil {
				return nil, &Error{Code: ErrCodeCorruptFile, Offset: -1, Message: what, Err: err}
			}
		}
	}
	if v, ok := doc.Main.Get("signals"); ok {
		for i, sv := range s.array(v, "signals") {
			what := fmt.Sprintf("signals[%d]", i)
			d := s.dict(sv, what)
			sig := program.Signal{
				Name: s.str(s.field(d, "name"), what+".name"),
				Args: s.params(s.field(d, "args"), what+".args"),
			}
			if s.err != nil {
				return nil, s.err
			}
			if err := p.AddSignal(sig); err != nil {
				return nil, &Error{Code: ErrCodeCorruptFile, Offset: -1, Message: what, Err: err}
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}

	if v, ok := doc.Main.Get("connections"); ok {
		quads, ok := v.(ir.PackedInt32Array)
		if !ok || len(quads)%4 != 0 {
			return nil, newError(ErrCodeCorruptFile, -1, "connections: want PackedInt32Array of quads")
		}
		for i := 0; i < len(quads); i += 4 {
			from := program.Out(int(quads[i]), int(quads[i+1]))
			to := program.In(int(quads[i+2]), int(quads[i+3]))
			if err := p.Link(from, to); err != nil {
				slog.Warn("dropping invalid connection", "path", doc.Path, "from", from, "to", to, "error", err)
				log.Warnf(diag.At("", to.Node, fmt.Sprintf("inputs[%d]", to.Port)), WarnDroppedLink,
					"connection %s -> %s dropped: %v", from, to, err)
			}
		}
	}
	return p, nil
}

func nodeFromObject(o *Object) (*program.Node, error) {
	if o.Type != NodeType {
		return nil, newError(ErrCodeCorruptFile, -1, "object %q is a %q, not a %s", o.ID, o.Type, NodeType)
	}
	s := &shape{}
	get := func(name string) ir.Value {
		v, ok := o.Get(name)
		if !ok {
			s.failf("node object %q has no %q", o.ID, name)
		}
		return v
	}
	n := &program.Node{
		ID:            int(s.integer(get("id"), "id")),
		Kind:          s.str(get("kind"), "kind"),
		SchemaVersion: 1,
		Props:         map[string]ir.Value{},
	}
	if v, ok := o.Get("flags"); ok {
		n.Flags = program.NodeFlags(s.integer(v, "flags"))
	}
	// Nodes written before layouts were versioned carry no schema field.
	if v, ok := o.Get("schema"); ok {
		n.SchemaVersion = int(s.integer(v, "schema"))
	}
	if v, ok := o.Get("position"); ok {
		pos, isVec := v.(ir.Vector2)
		if !isVec {
			s.failf("position: want Vector2, got %s", ir.TypeOf(v))
		}
		n.Position = pos
	}
	if v, ok := o.Get("props"); ok {
		if d := s.dict(v, "props"); d != nil {
			for _, e := range d.Entries() {
				n.Props[s.str(e.Key, "props key")] = e.Value
			}
		}
	}
	n.Inputs = s.pins(get("inputs"), "inputs", program.Input)
	n.Outputs = s.pins(get("outputs"), "outputs", program.Output)
	if s.err != nil {
		return nil, fmt.Errorf("node %q: %w", o.ID, s.err)
	}
	return n, nil
}

func (s *shape) pins(v ir.Value, what string, dir program.Direction) []program.Pin {
	var out []program.Pin
	for i, e := range s.array(v, what) {
		w := fmt.Sprintf("%s[%d]", what, i)
		d := s.dict(e, w)
		p := program.Pin{
			Name:      s.str(s.field(d, "name"), w+".name"),
			Dir:       dir,
			Type:      s.typ(s.field(d, "type"), w+".type"),
			ClassName: s.str(s.field(d, "class"), w+".class"),
			Default:   s.field(d, "default"),
			Required:  s.boolean(s.field(d, "required"), w+".required"),
		}
		switch kind := s.str(s.field(d, "kind"), w+".kind"); kind {
		case program.Control.String():
			p.Kind = program.Control
		case program.Data.String():
			p.Kind = program.Data
		default:
			s.failf("%s.kind: unknown pin kind %q", w, kind)
		}
		switch {
		case p.Kind == program.Control:
			p.Default = nil
		case p.Default == nil:
			p.Default = ir.Zero(p.Type)
		}
		out = append(out, p)
	}
	return out
}

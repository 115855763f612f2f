package codec

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/vscript/internal/ir"
)

// textWriter renders a document in the text format:
//
//	[program type="VisualScript" format=3 uid="uid://..."]
//
//	[ext_resource type="Texture" path="res://icon.png" id="icon"]
//
//	[sub_resource type="VisualScriptNode" id="1"]
//	kind = "event"
//
//	[resource]
//	base_class = "Node"
type textWriter struct {
	w      *bufio.Writer
	doc    *Document
	ids    []string
	extIDs []string
}

func encodeText(w io.Writer, doc *Document) error {
	if doc.Main == nil {
		return newError(ErrCodeCorruptFile, -1, "document has no main object")
	}
	tw := &textWriter{w: bufio.NewWriter(w), doc: doc}
	var err error
	if tw.ids, err = resourceIDs(len(doc.Subs), func(i int) string { return doc.Subs[i].ID }); err != nil {
		return err
	}
	if tw.extIDs, err = resourceIDs(len(doc.External), func(i int) string { return doc.External[i].ID }); err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[program type=%s format=%d", strconv.Quote(doc.Type), FormatVersion)
	if uid, ok := doc.Main.Get("uid"); ok {
		if s, ok := uid.(ir.String); ok && s != "" {
			fmt.Fprintf(&sb, " uid=%s", strconv.Quote(string(s)))
		}
	}
	if doc.HostVersion != [3]uint32{} {
		h := doc.HostVersion
		fmt.Fprintf(&sb, " host=\"%d.%d.%d\"", h[0], h[1], h[2])
	}
	sb.WriteString("]\n")
	tw.w.WriteString(sb.String())

	for i, ext := range doc.External {
		fmt.Fprintf(tw.w, "\n[ext_resource type=%s path=%s id=%s]\n",
			strconv.Quote(ext.Type), strconv.Quote(ext.Path), strconv.Quote(tw.extIDs[i]))
	}
	for i, o := range doc.Subs {
		fmt.Fprintf(tw.w, "\n[sub_resource type=%s id=%s]\n", strconv.Quote(o.Type), strconv.Quote(tw.ids[i]))
		if err := tw.props(o, i); err != nil {
			return err
		}
	}
	tw.w.WriteString("\n[resource]\n")
	if err := tw.props(doc.Main, len(doc.Subs)); err != nil {
		return err
	}
	return tw.w.Flush()
}

// resourceIDs names n resources by their own id, or by position when they
// have none. Ids must be unique within a document.
func resourceIDs(n int, id func(int) string) ([]string, error) {
	out := make([]string, n)
	seen := make(map[string]bool, n)
	for i := range out {
		out[i] = id(i)
		if out[i] == "" {
			out[i] = strconv.Itoa(i)
		}
		if seen[out[i]] {
			return nil, newError(ErrCodeCorruptFile, -1, "duplicate resource id %q", out[i])
		}
		seen[out[i]] = true
	}
	return out, nil
}

func (tw *textWriter) props(o *Object, limit int) error {
	for _, p := range o.Props {
		var sb strings.Builder
		if err := tw.value(&sb, p.Value, limit); err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
		fmt.Fprintf(tw.w, "%s = %s\n", propertyKey(p.Name), sb.String())
	}
	return nil
}

func propertyKey(name string) string {
	if isIdent(name) {
		return name
	}
	return strconv.Quote(name)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '/'):
		default:
			return false
		}
	}
	return true
}

// formatFloat renders a Float so it never reads back as an Int.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func formatReal(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return formatFloat(f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatReal32(f float32) string {
	if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
		return formatFloat(float64(f))
	}
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func call(sb *strings.Builder, name string, args ...string) {
	sb.WriteString(name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(args, ", "))
	sb.WriteByte(')')
}

func reals(fs ...float64) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = formatReal(f)
	}
	return out
}

func ints32(is ...int32) []string {
	out := make([]string, len(is))
	for i, v := range is {
		out[i] = strconv.FormatInt(int64(v), 10)
	}
	return out
}

func basisReals(b ir.Basis) []float64 {
	var out []float64
	for _, r := range b.Rows {
		out = append(out, r.X, r.Y, r.Z)
	}
	return out
}

func colorArgs(c ir.Color) []string {
	return []string{formatReal32(c.R), formatReal32(c.G), formatReal32(c.B), formatReal32(c.A)}
}

func (tw *textWriter) value(sb *strings.Builder, v ir.Value, limit int) error {
	switch x := v.(type) {
	case nil, ir.Nil:
		sb.WriteString("null")
	case ir.Bool:
		sb.WriteString(strconv.FormatBool(bool(x)))
	case ir.Int:
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case ir.Float:
		sb.WriteString(formatFloat(float64(x)))
	case ir.String:
		sb.WriteString(strconv.Quote(string(x)))
	case ir.Vector2:
		call(sb, "Vector2", reals(x.X, x.Y)...)
	case ir.Vector2i:
		call(sb, "Vector2i", ints32(x.X, x.Y)...)
	case ir.Rect2:
		call(sb, "Rect2", reals(x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)...)
	case ir.Rect2i:
		call(sb, "Rect2i", ints32(x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)...)
	case ir.Vector3:
		call(sb, "Vector3", reals(x.X, x.Y, x.Z)...)
	case ir.Vector3i:
		call(sb, "Vector3i", ints32(x.X, x.Y, x.Z)...)
	case ir.Transform2D:
		call(sb, "Transform2D", reals(x.X.X, x.X.Y, x.Y.X, x.Y.Y, x.Origin.X, x.Origin.Y)...)
	case ir.Vector4:
		call(sb, "Vector4", reals(x.X, x.Y, x.Z, x.W)...)
	case ir.Vector4i:
		call(sb, "Vector4i", ints32(x.X, x.Y, x.Z, x.W)...)
	case ir.Plane:
		call(sb, "Plane", reals(x.Normal.X, x.Normal.Y, x.Normal.Z, x.D)...)
	case ir.Quaternion:
		call(sb, "Quaternion", reals(x.X, x.Y, x.Z, x.W)...)
	case ir.AABB:
		call(sb, "AABB", reals(x.Position.X, x.Position.Y, x.Position.Z, x.Size.X, x.Size.Y, x.Size.Z)...)
	case ir.Basis:
		call(sb, "Basis", reals(basisReals(x)...)...)
	case ir.Transform3D:
		call(sb, "Transform3D", reals(append(basisReals(x.Basis), x.Origin.X, x.Origin.Y, x.Origin.Z)...)...)
	case ir.Projection:
		var fs []float64
		for _, c := range x.Columns {
			fs = append(fs, c.X, c.Y, c.Z, c.W)
		}
		call(sb, "Projection", reals(fs...)...)
	case ir.Color:
		call(sb, "Color", colorArgs(x)...)
	case ir.NodePath:
		tw.nodePath(sb, x)
	case ir.Object:
		return tw.objectRef(sb, x, limit)
	case *ir.Dictionary:
		if x.Len() == 0 {
			sb.WriteString("{}")
			return nil
		}
		sb.WriteString("{\n")
		for i, e := range x.Entries() {
			if err := tw.value(sb, e.Key, limit); err != nil {
				return err
			}
			sb.WriteString(": ")
			if err := tw.value(sb, e.Value, limit); err != nil {
				return err
			}
			if i < x.Len()-1 {
				sb.WriteByte(',')
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('}')
	case ir.Array:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := tw.value(sb, e, limit); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case ir.PackedByteArray:
		args := make([]string, len(x))
		for i, b := range x {
			args[i] = strconv.Itoa(int(b))
		}
		call(sb, "PackedByteArray", args...)
	case ir.PackedInt32Array:
		call(sb, "PackedInt32Array", ints32(x...)...)
	case ir.PackedInt64Array:
		args := make([]string, len(x))
		for i, n := range x {
			args[i] = strconv.FormatInt(n, 10)
		}
		call(sb, "PackedInt64Array", args...)
	case ir.PackedFloat32Array:
		args := make([]string, len(x))
		for i, f := range x {
			args[i] = formatReal32(f)
		}
		call(sb, "PackedFloat32Array", args...)
	case ir.PackedFloat64Array:
		call(sb, "PackedFloat64Array", reals(x...)...)
	case ir.PackedStringArray:
		args := make([]string, len(x))
		for i, s := range x {
			args[i] = strconv.Quote(s)
		}
		call(sb, "PackedStringArray", args...)
	case ir.PackedVector2Array:
		var fs []float64
		for _, e := range x {
			fs = append(fs, e.X, e.Y)
		}
		call(sb, "PackedVector2Array", reals(fs...)...)
	case ir.PackedVector3Array:
		var fs []float64
		for _, e := range x {
			fs = append(fs, e.X, e.Y, e.Z)
		}
		call(sb, "PackedVector3Array", reals(fs...)...)
	case ir.PackedVector4Array:
		var fs []float64
		for _, e := range x {
			fs = append(fs, e.X, e.Y, e.Z, e.W)
		}
		call(sb, "PackedVector4Array", reals(fs...)...)
	case ir.PackedColorArray:
		var args []string
		for _, c := range x {
			args = append(args, colorArgs(c)...)
		}
		call(sb, "PackedColorArray", args...)
	default:
		return newError(ErrCodeUnencodable, -1, "value of type %T", v)
	}
	return nil
}

// nodePath writes the short "a/b:c" form when it reads back unchanged and
// the explicit three-argument form otherwise.
func (tw *textWriter) nodePath(sb *strings.Builder, p ir.NodePath) {
	s := p.String()
	if ir.Equal(parseNodePath(s), p) {
		call(sb, "NodePath", strconv.Quote(s))
		return
	}
	names := make([]string, len(p.Names))
	for i, n := range p.Names {
		names[i] = strconv.Quote(n)
	}
	subs := make([]string, len(p.Subnames))
	for i, n := range p.Subnames {
		subs[i] = strconv.Quote(n)
	}
	var a, b strings.Builder
	call(&a, "PackedStringArray", names...)
	call(&b, "PackedStringArray", subs...)
	call(sb, "NodePath", a.String(), b.String(), strconv.FormatBool(p.Absolute))
}

func (tw *textWriter) objectRef(sb *strings.Builder, o ir.Object, limit int) error {
	switch o.Kind {
	case ir.ObjectEmpty:
		sb.WriteString("Object(null)")
	case ir.ObjectInternal:
		if o.Index < 0 || o.Index >= limit {
			return newError(ErrCodeBadReference, -1, "sub-object %d is not written before its referrer", o.Index)
		}
		call(sb, "SubResource", strconv.Quote(tw.ids[o.Index]))
	case ir.ObjectExternal:
		if o.Index < 0 || o.Index >= len(tw.doc.External) {
			return newError(ErrCodeBadReference, -1, "external resource %d does not exist", o.Index)
		}
		call(sb, "ExtResource", strconv.Quote(tw.extIDs[o.Index]))
	default:
		return newError(ErrCodeUnencodable, -1, "host object references are not persistable")
	}
	return nil
}

// parseNodePath is the inverse of ir.NodePath.String for paths whose names
// contain no separators.
func parseNodePath(s string) ir.NodePath {
	var p ir.NodePath
	if strings.HasPrefix(s, "/") {
		p.Absolute = true
		s = s[1:]
	}
	names, subs, hasSubs := strings.Cut(s, ":")
	if names != "" {
		p.Names = strings.Split(names, "/")
	}
	if hasSubs {
		p.Subnames = strings.Split(subs, ":")
	}
	return p
}

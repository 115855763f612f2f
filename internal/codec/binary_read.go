package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/roach88/vscript/internal/ir"
)

// binaryReader decodes one document. All state lives in the reader, so an
// abandoned load leaves nothing behind for the next one.
type binaryReader struct {
	data    []byte
	pos     int
	order   binary.ByteOrder
	wide    bool
	version uint32
	strings []string
	doc     *Document

	// cache holds sub-objects already parsed, keyed by cacheKey. Internal
	// references resolve through it, so a reference to a sub-object that
	// has not been parsed yet is an error.
	cache map[string]*Object
}

type indexEntry struct {
	path   string
	offset uint64
}

func decodeBinary(data []byte, path string) (*Document, error) {
	r := &binaryReader{
		data:  data,
		order: binary.LittleEndian,
		doc:   &Document{Path: path},
		cache: make(map[string]*Object),
	}
	if err := r.header(); err != nil {
		return nil, err
	}
	entries, err := r.tables()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, newError(ErrCodeCorruptFile, int64(r.pos), "document has no main object")
	}
	for i, e := range entries {
		if e.offset >= uint64(len(data)) {
			return nil, newError(ErrCodeTruncated, int64(len(data)), "object %q starts past the end of input", e.path)
		}
		r.pos = int(e.offset)
		o, err := r.object()
		if err != nil {
			return nil, err
		}
		if i == len(entries)-1 {
			if e.path != "main" {
				o.ID = e.path
			}
			r.doc.Main = o
			break
		}
		o.ID = strings.TrimPrefix(e.path, "local://")
		r.doc.Subs = append(r.doc.Subs, o)
		r.cache[cacheKey(path, i)] = o
	}
	if len(data) < 4 || !bytes.Equal(data[len(data)-4:], magic[:]) {
		return nil, newError(ErrCodeTruncated, int64(len(data)), "missing trailer")
	}
	return r.doc, nil
}

func (r *binaryReader) header() error {
	if len(r.data) < 4 || !bytes.Equal(r.data[:4], magic[:]) {
		return newError(ErrCodeBadMagic, 0, "not a binary program")
	}
	r.pos = 4
	flag, err := r.raw(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(flag, []byte{0, 0, 0, 0}) {
		r.order = binary.BigEndian
	}
	wide, err := r.u32()
	if err != nil {
		return err
	}
	r.wide = wide != 0
	if r.version, err = r.u32(); err != nil {
		return err
	}
	if r.version == 0 {
		return newError(ErrCodeCorruptFile, int64(r.pos-4), "format version 0")
	}
	if r.version > FormatVersion {
		return newError(ErrCodeUnsupportedVersion, int64(r.pos-4), "format version %d is newer than %d", r.version, FormatVersion)
	}
	r.doc.Format = r.version
	for i := range r.doc.HostVersion {
		if r.doc.HostVersion[i], err = r.u32(); err != nil {
			return err
		}
	}
	if r.doc.Type, err = r.inline(); err != nil {
		return err
	}
	_, err = r.raw(4 * reservedFields)
	return err
}

// tables reads the string table, the external table (format 3 and later)
// and the object index.
func (r *binaryReader) tables() ([]indexEntry, error) {
	n, err := r.count(4)
	if err != nil {
		return nil, err
	}
	r.strings = make([]string, 0, n)
	for range n {
		s, err := r.inline()
		if err != nil {
			return nil, err
		}
		r.strings = append(r.strings, s)
	}

	if r.version >= 3 {
		n, err := r.count(12)
		if err != nil {
			return nil, err
		}
		for range n {
			var ext External
			if ext.Type, err = r.inline(); err != nil {
				return nil, err
			}
			if ext.Path, err = r.inline(); err != nil {
				return nil, err
			}
			if ext.ID, err = r.inline(); err != nil {
				return nil, err
			}
			r.doc.External = append(r.doc.External, ext)
		}
	}

	n, err = r.count(12)
	if err != nil {
		return nil, err
	}
	entries := make([]indexEntry, 0, n)
	for range n {
		var e indexEntry
		if e.path, err = r.inline(); err != nil {
			return nil, err
		}
		if e.offset, err = r.u64(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *binaryReader) object() (*Object, error) {
	typ, err := r.tableString()
	if err != nil {
		return nil, err
	}
	n, err := r.count(8)
	if err != nil {
		return nil, err
	}
	o := &Object{Type: typ, Props: make([]Property, 0, n)}
	for range n {
		name, err := r.tableString()
		if err != nil {
			return nil, err
		}
		v, err := r.value(0)
		if err != nil {
			return nil, err
		}
		o.Props = append(o.Props, Property{Name: name, Value: v})
	}
	return o, nil
}

func (r *binaryReader) truncated(want int) error {
	return newError(ErrCodeTruncated, int64(r.pos), "need %d bytes, %d left", want, len(r.data)-r.pos)
}

func (r *binaryReader) raw(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, r.truncated(n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *binaryReader) u32() (uint32, error) {
	b, err := r.raw(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *binaryReader) u64() (uint64, error) {
	b, err := r.raw(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *binaryReader) f32() (float32, error) {
	u, err := r.u32()
	return math.Float32frombits(u), err
}

func (r *binaryReader) f64() (float64, error) {
	u, err := r.u64()
	return math.Float64frombits(u), err
}

// count reads an element count and rejects counts that cannot fit in the
// remaining input at minSize bytes per element.
func (r *binaryReader) count(minSize int) (int, error) {
	u, err := r.u32()
	if err != nil {
		return 0, err
	}
	n := int(u)
	if n < 0 || uint64(n)*uint64(minSize) > uint64(len(r.data)-r.pos) {
		return 0, r.truncated(n * minSize)
	}
	return n, nil
}

func (r *binaryReader) skipPad() error {
	if rem := r.pos % 4; rem != 0 {
		_, err := r.raw(4 - rem)
		return err
	}
	return nil
}

func (r *binaryReader) inline() (string, error) {
	n, err := r.count(1)
	if err != nil {
		return "", err
	}
	b, err := r.raw(n)
	if err != nil {
		return "", err
	}
	s := string(b)
	return s, r.skipPad()
}

func (r *binaryReader) tableString() (string, error) {
	i, err := r.u32()
	if err != nil {
		return "", err
	}
	if int(i) >= len(r.strings) {
		return "", newError(ErrCodeBadReference, int64(r.pos-4), "string index %d out of %d", i, len(r.strings))
	}
	return r.strings[i], nil
}

// stringValue reads a string header: a table index when the high bit is
// set, an inline length otherwise.
func (r *binaryReader) stringValue() (string, error) {
	h, err := r.u32()
	if err != nil {
		return "", err
	}
	if h&stringIndexBit != 0 {
		i := int(h &^ stringIndexBit)
		if i >= len(r.strings) {
			return "", newError(ErrCodeBadReference, int64(r.pos-4), "string index %d out of %d", i, len(r.strings))
		}
		return r.strings[i], nil
	}
	b, err := r.raw(int(h))
	if err != nil {
		return "", err
	}
	s := string(b)
	return s, r.skipPad()
}

func (r *binaryReader) reals(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		var err error
		if r.wide {
			out[i], err = r.f64()
		} else {
			var f float32
			f, err = r.f32()
			out[i] = float64(f)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *binaryReader) int32s(n int) ([]int32, error) {
	out := make([]int32, n)
	for i := range out {
		u, err := r.u32()
		if err != nil {
			return nil, err
		}
		out[i] = int32(u)
	}
	return out, nil
}

func (r *binaryReader) realSize() int {
	if r.wide {
		return 8
	}
	return 4
}

func (r *binaryReader) value(depth int) (ir.Value, error) {
	if depth > maxNesting {
		return nil, newError(ErrCodeCorruptFile, int64(r.pos), "values nested deeper than %d", maxNesting)
	}
	at := r.pos
	t, err := r.u32()
	if err != nil {
		return nil, err
	}
	switch tag(t) {
	case tagNil:
		return ir.Nil{}, nil
	case tagBool:
		u, err := r.u32()
		return ir.Bool(u != 0), err
	case tagInt:
		u, err := r.u32()
		return ir.Int(int32(u)), err
	case tagInt64:
		u, err := r.u64()
		return ir.Int(int64(u)), err
	case tagFloat:
		f, err := r.f32()
		return ir.Float(f), err
	case tagDouble:
		f, err := r.f64()
		return ir.Float(f), err
	case tagString:
		s, err := r.stringValue()
		return ir.String(s), err
	case tagVector2:
		f, err := r.reals(2)
		if err != nil {
			return nil, err
		}
		return ir.Vector2{X: f[0], Y: f[1]}, nil
	case tagVector2i:
		i, err := r.int32s(2)
		if err != nil {
			return nil, err
		}
		return ir.Vector2i{X: i[0], Y: i[1]}, nil
	case tagRect2:
		f, err := r.reals(4)
		if err != nil {
			return nil, err
		}
		return ir.Rect2{Position: ir.Vector2{X: f[0], Y: f[1]}, Size: ir.Vector2{X: f[2], Y: f[3]}}, nil
	case tagRect2i:
		i, err := r.int32s(4)
		if err != nil {
			return nil, err
		}
		return ir.Rect2i{Position: ir.Vector2i{X: i[0], Y: i[1]}, Size: ir.Vector2i{X: i[2], Y: i[3]}}, nil
	case tagVector3:
		f, err := r.reals(3)
		if err != nil {
			return nil, err
		}
		return vec3(f), nil
	case tagVector3i:
		i, err := r.int32s(3)
		if err != nil {
			return nil, err
		}
		return ir.Vector3i{X: i[0], Y: i[1], Z: i[2]}, nil
	case tagTransform2D:
		f, err := r.reals(6)
		if err != nil {
			return nil, err
		}
		return ir.Transform2D{
			X:      ir.Vector2{X: f[0], Y: f[1]},
			Y:      ir.Vector2{X: f[2], Y: f[3]},
			Origin: ir.Vector2{X: f[4], Y: f[5]},
		}, nil
	case tagVector4:
		f, err := r.reals(4)
		if err != nil {
			return nil, err
		}
		return vec4(f), nil
	case tagVector4i:
		i, err := r.int32s(4)
		if err != nil {
			return nil, err
		}
		return ir.Vector4i{X: i[0], Y: i[1], Z: i[2], W: i[3]}, nil
	case tagPlane:
		f, err := r.reals(4)
		if err != nil {
			return nil, err
		}
		return ir.Plane{Normal: vec3(f), D: f[3]}, nil
	case tagQuaternion:
		f, err := r.reals(4)
		if err != nil {
			return nil, err
		}
		return ir.Quaternion{X: f[0], Y: f[1], Z: f[2], W: f[3]}, nil
	case tagAABB:
		f, err := r.reals(6)
		if err != nil {
			return nil, err
		}
		return ir.AABB{Position: vec3(f), Size: vec3(f[3:])}, nil
	case tagBasis:
		f, err := r.reals(9)
		if err != nil {
			return nil, err
		}
		return basis(f), nil
	case tagTransform3D:
		f, err := r.reals(12)
		if err != nil {
			return nil, err
		}
		return ir.Transform3D{Basis: basis(f), Origin: vec3(f[9:])}, nil
	case tagProjection:
		f, err := r.reals(16)
		if err != nil {
			return nil, err
		}
		var p ir.Projection
		for c := range p.Columns {
			p.Columns[c] = vec4(f[c*4:])
		}
		return p, nil
	case tagColor:
		var c [4]float32
		for i := range c {
			if c[i], err = r.f32(); err != nil {
				return nil, err
			}
		}
		return ir.Color{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
	case tagNodePath:
		return r.nodePath()
	case tagObject:
		return r.objectRef()
	case tagDictionary:
		n, err := r.count(8)
		if err != nil {
			return nil, err
		}
		d := ir.NewDictionary()
		for range n {
			k, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			v, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			d.Set(k, v)
		}
		return d, nil
	case tagArray:
		n, err := r.count(4)
		if err != nil {
			return nil, err
		}
		a := make(ir.Array, 0, n)
		for range n {
			v, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
		return a, nil
	case tagPackedByteArray:
		n, err := r.count(1)
		if err != nil {
			return nil, err
		}
		b, err := r.raw(n)
		if err != nil {
			return nil, err
		}
		return ir.PackedByteArray(bytes.Clone(b)), r.skipPad()
	case tagPackedInt32Array:
		n, err := r.count(4)
		if err != nil {
			return nil, err
		}
		i, err := r.int32s(n)
		return ir.PackedInt32Array(i), err
	case tagPackedInt64Array:
		n, err := r.count(8)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedInt64Array, n)
		for i := range out {
			u, err := r.u64()
			if err != nil {
				return nil, err
			}
			out[i] = int64(u)
		}
		return out, nil
	case tagPackedFloat32Array:
		n, err := r.count(4)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedFloat32Array, n)
		for i := range out {
			if out[i], err = r.f32(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagPackedFloat64Array:
		n, err := r.count(8)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedFloat64Array, n)
		for i := range out {
			if out[i], err = r.f64(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagPackedStringArray:
		n, err := r.count(4)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedStringArray, n)
		for i := range out {
			if out[i], err = r.inline(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagPackedVector2Array:
		n, err := r.count(2 * r.realSize())
		if err != nil {
			return nil, err
		}
		f, err := r.reals(2 * n)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector2Array, n)
		for i := range out {
			out[i] = ir.Vector2{X: f[2*i], Y: f[2*i+1]}
		}
		return out, nil
	case tagPackedVector3Array:
		n, err := r.count(3 * r.realSize())
		if err != nil {
			return nil, err
		}
		f, err := r.reals(3 * n)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector3Array, n)
		for i := range out {
			out[i] = vec3(f[3*i:])
		}
		return out, nil
	case tagPackedVector4Array:
		n, err := r.count(4 * r.realSize())
		if err != nil {
			return nil, err
		}
		f, err := r.reals(4 * n)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector4Array, n)
		for i := range out {
			out[i] = vec4(f[4*i:])
		}
		return out, nil
	case tagPackedColorArray:
		n, err := r.count(16)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedColorArray, n)
		for i := range out {
			var c [4]float32
			for j := range c {
				if c[j], err = r.f32(); err != nil {
					return nil, err
				}
			}
			out[i] = ir.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
		}
		return out, nil
	}
	return nil, newError(ErrCodeCorruptTag, int64(at), "unknown value tag %d", t)
}

func (r *binaryReader) nodePath() (ir.Value, error) {
	names, err := r.u32()
	if err != nil {
		return nil, err
	}
	subs, err := r.u32()
	if err != nil {
		return nil, err
	}
	p := ir.NodePath{Absolute: names&nodePathAbsoluteBit != 0}
	nn, ns := int(names&^nodePathAbsoluteBit), int(subs)
	if uint64(nn+ns)*4 > uint64(len(r.data)-r.pos) {
		return nil, r.truncated((nn + ns) * 4)
	}
	for range nn {
		s, err := r.tableString()
		if err != nil {
			return nil, err
		}
		p.Names = append(p.Names, s)
	}
	for range ns {
		s, err := r.tableString()
		if err != nil {
			return nil, err
		}
		p.Subnames = append(p.Subnames, s)
	}
	return p, nil
}

func (r *binaryReader) objectRef() (ir.Value, error) {
	kind, err := r.u32()
	if err != nil {
		return nil, err
	}
	switch kind {
	case objectEmpty:
		return ir.Object{Kind: ir.ObjectEmpty}, nil
	case objectInternal:
		i, err := r.u32()
		if err != nil {
			return nil, err
		}
		if _, ok := r.cache[cacheKey(r.doc.Path, int(i))]; !ok {
			return nil, newError(ErrCodeBadReference, int64(r.pos-4), "sub-object %d referenced before it was loaded", i)
		}
		return ir.Object{Kind: ir.ObjectInternal, Index: int(i)}, nil
	case objectExternal:
		i, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(i) >= len(r.doc.External) {
			return nil, newError(ErrCodeBadReference, int64(r.pos-4), "external resource %d out of %d", i, len(r.doc.External))
		}
		return ir.Object{Kind: ir.ObjectExternal, Index: int(i)}, nil
	}
	return nil, newError(ErrCodeCorruptTag, int64(r.pos-4), "unknown object reference kind %d", kind)
}

func vec3(f []float64) ir.Vector3 { return ir.Vector3{X: f[0], Y: f[1], Z: f[2]} }
func vec4(f []float64) ir.Vector4 { return ir.Vector4{X: f[0], Y: f[1], Z: f[2], W: f[3]} }

func basis(f []float64) ir.Basis {
	return ir.Basis{Rows: [3]ir.Vector3{vec3(f), vec3(f[3:]), vec3(f[6:])}}
}

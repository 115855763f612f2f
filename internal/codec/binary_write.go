package codec

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"

	"github.com/roach88/vscript/internal/ir"
)

// byteOrder is a binary.ByteOrder that can also append.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// buffer appends fixed-width fields in one byte order.
type buffer struct {
	b     []byte
	order byteOrder
}

func (b *buffer) u32(v uint32) { b.b = b.order.AppendUint32(b.b, v) }
func (b *buffer) u64(v uint64) { b.b = b.order.AppendUint64(b.b, v) }
func (b *buffer) f32(f float32) { b.u32(math.Float32bits(f)) }
func (b *buffer) f64(f float64) { b.u64(math.Float64bits(f)) }

func (b *buffer) pad() {
	for len(b.b)%4 != 0 {
		b.b = append(b.b, 0)
	}
}

// inline writes a length-prefixed string padded to four bytes.
func (b *buffer) inline(s string) {
	b.u32(uint32(len(s)))
	b.b = append(b.b, s...)
	b.pad()
}

type binaryWriter struct {
	order   byteOrder
	wide    bool
	doc     *Document
	strings []string
	index   map[string]uint32

	// internal references must point below this sub-object index
	limit int
}

// encodeBinary writes doc in the binary format. Sub-object bodies are
// encoded first so the string table is complete before the header is
// written; the index offsets are patched once the prefix length is known.
func encodeBinary(w io.Writer, doc *Document, s settings) error {
	if doc.Main == nil {
		return newError(ErrCodeCorruptFile, -1, "document has no main object")
	}
	bw := &binaryWriter{
		order: binary.LittleEndian,
		wide:  s.wideFloats,
		doc:   doc,
		index: make(map[string]uint32),
	}
	if s.bigEndian {
		bw.order = binary.BigEndian
	}

	objects := append(append([]*Object(nil), doc.Subs...), doc.Main)
	bodies := make([][]byte, len(objects))
	for i, o := range objects {
		bw.limit = i
		body, err := bw.object(o)
		if err != nil {
			return err
		}
		bodies[i] = body
	}

	head := &buffer{order: bw.order}
	head.b = append(head.b, magic[:]...)
	if s.bigEndian {
		head.u32(1)
	} else {
		head.u32(0)
	}
	if bw.wide {
		head.u32(1)
	} else {
		head.u32(0)
	}
	head.u32(FormatVersion)
	for _, v := range doc.HostVersion {
		head.u32(v)
	}
	head.inline(doc.Type)
	for range reservedFields {
		head.u32(0)
	}

	head.u32(uint32(len(bw.strings)))
	for _, str := range bw.strings {
		head.inline(str)
	}

	head.u32(uint32(len(doc.External)))
	for _, ext := range doc.External {
		head.inline(ext.Type)
		head.inline(ext.Path)
		head.inline(ext.ID)
	}

	head.u32(uint32(len(objects)))
	slots := make([]int, len(objects))
	for i, o := range objects {
		head.inline(objectPath(o, i, i == len(objects)-1))
		slots[i] = len(head.b)
		head.u64(0)
	}

	offset := uint64(len(head.b))
	for i, body := range bodies {
		bw.order.PutUint64(head.b[slots[i]:], offset)
		offset += uint64(len(body))
	}

	for _, body := range bodies {
		head.b = append(head.b, body...)
	}
	head.b = append(head.b, magic[:]...)

	_, err := w.Write(head.b)
	return err
}

// objectPath is the index path of an object: local://<id> for sub-objects,
// the object's own id (or "main") for the main object.
func objectPath(o *Object, i int, main bool) string {
	if main {
		if o.ID != "" {
			return o.ID
		}
		return "main"
	}
	if o.ID != "" {
		return "local://" + o.ID
	}
	return "local://" + strconv.Itoa(i)
}

func (w *binaryWriter) intern(s string) uint32 {
	if i, ok := w.index[s]; ok {
		return i
	}
	i := uint32(len(w.strings))
	w.strings = append(w.strings, s)
	w.index[s] = i
	return i
}

func (w *binaryWriter) object(o *Object) ([]byte, error) {
	b := &buffer{order: w.order}
	b.u32(w.intern(o.Type))
	b.u32(uint32(len(o.Props)))
	for _, p := range o.Props {
		b.u32(w.intern(p.Name))
		if err := w.value(b, p.Value); err != nil {
			return nil, err
		}
	}
	return b.b, nil
}

func (w *binaryWriter) real(b *buffer, fs ...float64) {
	for _, f := range fs {
		if w.wide {
			b.f64(f)
		} else {
			b.f32(float32(f))
		}
	}
}

func ints(b *buffer, is ...int32) {
	for _, i := range is {
		b.u32(uint32(i))
	}
}

func (w *binaryWriter) value(b *buffer, v ir.Value) error {
	switch x := v.(type) {
	case nil, ir.Nil:
		b.u32(uint32(tagNil))
	case ir.Bool:
		b.u32(uint32(tagBool))
		if x {
			b.u32(1)
		} else {
			b.u32(0)
		}
	case ir.Int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			b.u32(uint32(tagInt))
			b.u32(uint32(int32(x)))
		} else {
			b.u32(uint32(tagInt64))
			b.u64(uint64(x))
		}
	case ir.Float:
		f := float64(x)
		if math.Float64bits(float64(float32(f))) == math.Float64bits(f) {
			b.u32(uint32(tagFloat))
			b.f32(float32(f))
		} else {
			b.u32(uint32(tagDouble))
			b.f64(f)
		}
	case ir.String:
		b.u32(uint32(tagString))
		b.u32(stringIndexBit | w.intern(string(x)))
	case ir.Vector2:
		b.u32(uint32(tagVector2))
		w.real(b, x.X, x.Y)
	case ir.Vector2i:
		b.u32(uint32(tagVector2i))
		ints(b, x.X, x.Y)
	case ir.Rect2:
		b.u32(uint32(tagRect2))
		w.real(b, x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)
	case ir.Rect2i:
		b.u32(uint32(tagRect2i))
		ints(b, x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)
	case ir.Vector3:
		b.u32(uint32(tagVector3))
		w.real(b, x.X, x.Y, x.Z)
	case ir.Vector3i:
		b.u32(uint32(tagVector3i))
		ints(b, x.X, x.Y, x.Z)
	case ir.Transform2D:
		b.u32(uint32(tagTransform2D))
		w.real(b, x.X.X, x.X.Y, x.Y.X, x.Y.Y, x.Origin.X, x.Origin.Y)
	case ir.Vector4:
		b.u32(uint32(tagVector4))
		w.real(b, x.X, x.Y, x.Z, x.W)
	case ir.Vector4i:
		b.u32(uint32(tagVector4i))
		ints(b, x.X, x.Y, x.Z, x.W)
	case ir.Plane:
		b.u32(uint32(tagPlane))
		w.real(b, x.Normal.X, x.Normal.Y, x.Normal.Z, x.D)
	case ir.Quaternion:
		b.u32(uint32(tagQuaternion))
		w.real(b, x.X, x.Y, x.Z, x.W)
	case ir.AABB:
		b.u32(uint32(tagAABB))
		w.real(b, x.Position.X, x.Position.Y, x.Position.Z, x.Size.X, x.Size.Y, x.Size.Z)
	case ir.Basis:
		b.u32(uint32(tagBasis))
		w.basis(b, x)
	case ir.Transform3D:
		b.u32(uint32(tagTransform3D))
		w.basis(b, x.Basis)
		w.real(b, x.Origin.X, x.Origin.Y, x.Origin.Z)
	case ir.Projection:
		b.u32(uint32(tagProjection))
		for _, c := range x.Columns {
			w.real(b, c.X, c.Y, c.Z, c.W)
		}
	case ir.Color:
		b.u32(uint32(tagColor))
		b.f32(x.R)
		b.f32(x.G)
		b.f32(x.B)
		b.f32(x.A)
	case ir.NodePath:
		b.u32(uint32(tagNodePath))
		count := uint32(len(x.Names))
		if x.Absolute {
			count |= nodePathAbsoluteBit
		}
		b.u32(count)
		b.u32(uint32(len(x.Subnames)))
		for _, n := range x.Names {
			b.u32(w.intern(n))
		}
		for _, n := range x.Subnames {
			b.u32(w.intern(n))
		}
	case ir.Object:
		return w.objectRef(b, x)
	case *ir.Dictionary:
		b.u32(uint32(tagDictionary))
		b.u32(uint32(x.Len()))
		for _, e := range x.Entries() {
			if err := w.value(b, e.Key); err != nil {
				return err
			}
			if err := w.value(b, e.Value); err != nil {
				return err
			}
		}
	case ir.Array:
		b.u32(uint32(tagArray))
		b.u32(uint32(len(x)))
		for _, e := range x {
			if err := w.value(b, e); err != nil {
				return err
			}
		}
	case ir.PackedByteArray:
		b.u32(uint32(tagPackedByteArray))
		b.u32(uint32(len(x)))
		b.b = append(b.b, x...)
		b.pad()
	case ir.PackedInt32Array:
		b.u32(uint32(tagPackedInt32Array))
		b.u32(uint32(len(x)))
		ints(b, x...)
	case ir.PackedInt64Array:
		b.u32(uint32(tagPackedInt64Array))
		b.u32(uint32(len(x)))
		for _, i := range x {
			b.u64(uint64(i))
		}
	case ir.PackedFloat32Array:
		b.u32(uint32(tagPackedFloat32Array))
		b.u32(uint32(len(x)))
		for _, f := range x {
			b.f32(f)
		}
	case ir.PackedFloat64Array:
		b.u32(uint32(tagPackedFloat64Array))
		b.u32(uint32(len(x)))
		for _, f := range x {
			b.f64(f)
		}
	case ir.PackedStringArray:
		b.u32(uint32(tagPackedStringArray))
		b.u32(uint32(len(x)))
		for _, s := range x {
			b.inline(s)
		}
	case ir.PackedVector2Array:
		b.u32(uint32(tagPackedVector2Array))
		b.u32(uint32(len(x)))
		for _, e := range x {
			w.real(b, e.X, e.Y)
		}
	case ir.PackedVector3Array:
		b.u32(uint32(tagPackedVector3Array))
		b.u32(uint32(len(x)))
		for _, e := range x {
			w.real(b, e.X, e.Y, e.Z)
		}
	case ir.PackedVector4Array:
		b.u32(uint32(tagPackedVector4Array))
		b.u32(uint32(len(x)))
		for _, e := range x {
			w.real(b, e.X, e.Y, e.Z, e.W)
		}
	case ir.PackedColorArray:
		b.u32(uint32(tagPackedColorArray))
		b.u32(uint32(len(x)))
		for _, c := range x {
			b.f32(c.R)
			b.f32(c.G)
			b.f32(c.B)
			b.f32(c.A)
		}
	default:
		return newError(ErrCodeUnencodable, -1, "value of type %T", v)
	}
	return nil
}

func (w *binaryWriter) basis(b *buffer, m ir.Basis) {
	for _, r := range m.Rows {
		w.real(b, r.X, r.Y, r.Z)
	}
}

func (w *binaryWriter) objectRef(b *buffer, o ir.Object) error {
	switch o.Kind {
	case ir.ObjectEmpty:
		b.u32(uint32(tagObject))
		b.u32(objectEmpty)
	case ir.ObjectInternal:
		if o.Index < 0 || o.Index >= w.limit {
			return newError(ErrCodeBadReference, -1, "sub-object %d is not written before its referrer", o.Index)
		}
		b.u32(uint32(tagObject))
		b.u32(objectInternal)
		b.u32(uint32(o.Index))
	case ir.ObjectExternal:
		if o.Index < 0 || o.Index >= len(w.doc.External) {
			return newError(ErrCodeBadReference, -1, "external resource %d does not exist", o.Index)
		}
		b.u32(uint32(tagObject))
		b.u32(objectExternal)
		b.u32(uint32(o.Index))
	default:
		return newError(ErrCodeUnencodable, -1, "host object references are not persistable")
	}
	return nil
}

package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// ToJSON renders v as deterministic JSON for traces and CLI output.
//
// Scalars map onto their JSON counterparts. Dictionaries become objects in
// insertion order when every key is a String, otherwise an array of
// [key, value] pairs. Structured math types and packed arrays become arrays
// of their components. Non-finite floats render as the strings "inf", "-inf"
// and "nan". Strings are NFC normalized and not HTML escaped.
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case nil, Nil:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		writeJSONFloat(buf, float64(x))
	case String:
		return writeJSONString(buf, string(x))
	case Vector2:
		writeJSONFloats(buf, x.X, x.Y)
	case Vector2i:
		writeJSONInts(buf, x.X, x.Y)
	case Rect2:
		writeJSONFloats(buf, x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)
	case Rect2i:
		writeJSONInts(buf, x.Position.X, x.Position.Y, x.Size.X, x.Size.Y)
	case Vector3:
		writeJSONFloats(buf, x.X, x.Y, x.Z)
	case Vector3i:
		writeJSONInts(buf, x.X, x.Y, x.Z)
	case Transform2D:
		writeJSONFloats(buf, x.X.X, x.X.Y, x.Y.X, x.Y.Y, x.Origin.X, x.Origin.Y)
	case Vector4:
		writeJSONFloats(buf, x.X, x.Y, x.Z, x.W)
	case Vector4i:
		writeJSONInts(buf, x.X, x.Y, x.Z, x.W)
	case Plane:
		writeJSONFloats(buf, x.Normal.X, x.Normal.Y, x.Normal.Z, x.D)
	case Quaternion:
		writeJSONFloats(buf, x.X, x.Y, x.Z, x.W)
	case AABB:
		writeJSONFloats(buf, x.Position.X, x.Position.Y, x.Position.Z, x.Size.X, x.Size.Y, x.Size.Z)
	case Basis:
		writeJSONFloats(buf, basisComponents(x)...)
	case Transform3D:
		writeJSONFloats(buf, append(basisComponents(x.Basis), x.Origin.X, x.Origin.Y, x.Origin.Z)...)
	case Projection:
		var fs []float64
		for _, c := range x.Columns {
			fs = append(fs, c.X, c.Y, c.Z, c.W)
		}
		writeJSONFloats(buf, fs...)
	case Color:
		writeJSONFloats(buf, float64(x.R), float64(x.G), float64(x.B), float64(x.A))
	case NodePath:
		return writeJSONString(buf, x.String())
	case Object:
		return writeJSONString(buf, Stringify(x))
	case Array:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case *Dictionary:
		return writeJSONDictionary(buf, x)
	default:
		if v.Type().IsPacked() {
			return writeJSON(buf, packedToArray(v))
		}
		return fmt.Errorf("unsupported value type %s", v.Type())
	}
	return nil
}

func writeJSONDictionary(buf *bytes.Buffer, d *Dictionary) error {
	stringKeys := true
	for _, e := range d.Entries() {
		if TypeOf(e.Key) != TypeString {
			stringKeys = false
			break
		}
	}
	if !stringKeys {
		buf.WriteByte('[')
		for i, e := range d.Entries() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, Array{e.Key, e.Value}); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	}
	buf.WriteByte('{')
	for i, e := range d.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(buf, string(e.Key.(String))); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJSON(buf, e.Value); err != nil {
			return fmt.Errorf("value for key %q: %w", e.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func basisComponents(b Basis) []float64 {
	out := make([]float64, 0, 9)
	for _, r := range b.Rows {
		out = append(out, r.X, r.Y, r.Z)
	}
	return out
}

func writeJSONFloats(buf *bytes.Buffer, fs ...float64) {
	buf.WriteByte('[')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONFloat(buf, f)
	}
	buf.WriteByte(']')
}

func writeJSONInts(buf *bytes.Buffer, is ...int32) {
	buf.WriteByte('[')
	for i, n := range is {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatInt(int64(n), 10))
	}
	buf.WriteByte(']')
}

func writeJSONFloat(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`"nan"`)
	case math.IsInf(f, 1):
		buf.WriteString(`"inf"`)
	case math.IsInf(f, -1):
		buf.WriteString(`"-inf"`)
	default:
		s := strconv.FormatFloat(f, 'g', -1, 64)
		// Keep floats distinguishable from ints in traces.
		if !bytes.ContainsAny([]byte(s), ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// ParseJSON decodes JSON into a Value. Objects become Dictionaries with
// String keys in document order, integral numbers become Int and all other
// numbers Float.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func parseJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return Nil{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '[':
			arr := Array{}
			for dec.More() {
				e, err := parseJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, e)
			}
			_, err := dec.Token()
			return arr, err
		case '{':
			d := NewDictionary()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := kt.(string)
				val, err := parseJSONValue(dec)
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", key, err)
				}
				d.Set(String(key), val)
			}
			_, err := dec.Token()
			return d, err
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return Float(f), nil
}

// FromGo converts a decoded YAML or JSON tree (maps, slices, scalars) into a
// Value. map[string]any keys are visited in sorted order since Go maps carry
// no order; callers needing document order should use ParseJSON.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Nil{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return Int(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		arr := make(Array, len(x))
		for i, e := range x {
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		d := NewDictionary()
		for _, k := range sortedKeys(x) {
			ev, err := FromGo(x[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			d.Set(String(k), ev)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

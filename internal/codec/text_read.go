package codec

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/vscript/internal/ir"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLBrack
	tokRBrack
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
	tokColon
	tokEquals
	tokString
	tokNumber
	tokIdent
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of input",
	tokLBrack: "'['",
	tokRBrack: "']'",
	tokLParen: "'('",
	tokRParen: "')'",
	tokLBrace: "'{'",
	tokRBrace: "'}'",
	tokComma:  "','",
	tokColon:  "':'",
	tokEquals: "'='",
	tokString: "string",
	tokNumber: "number",
	tokIdent:  "identifier",
}

var punctuation = map[byte]tokenKind{
	'[': tokLBrack, ']': tokRBrack, '(': tokLParen, ')': tokRParen,
	'{': tokLBrace, '}': tokRBrace, ',': tokComma, ':': tokColon, '=': tokEquals,
}

type token struct {
	kind tokenKind
	text string
	off  int
}

// lexer splits text format input into tokens. Comments run from ';' to the
// end of the line.
type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) errorf(off int, format string, args ...any) *Error {
	line := 1 + bytes.Count(l.data[:off], []byte("\n"))
	col := off - bytes.LastIndexByte(l.data[:off], '\n')
	e := newError(ErrCodeParse, int64(off), format, args...)
	e.Message = strconv.Itoa(line) + ":" + strconv.Itoa(col) + ": " + e.Message
	return e
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == ';' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			break
		}
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.data) {
		return token{kind: tokEOF, off: start}, nil
	}
	c := l.data[l.pos]
	if k, ok := punctuation[c]; ok {
		l.pos++
		return token{kind: k, text: string(c), off: start}, nil
	}
	switch {
	case c == '"':
		return l.quoted()
	case c == '-' && l.pos+1 < len(l.data) && isLetter(l.data[l.pos+1]):
		l.pos++
		l.ident()
		return token{kind: tokIdent, text: string(l.data[start:l.pos]), off: start}, nil
	case c == '-' || c == '+' || isDigit(c):
		l.pos++
		for l.pos < len(l.data) {
			d := l.data[l.pos]
			if isDigit(d) || d == '.' {
				l.pos++
				continue
			}
			if d == 'e' || d == 'E' {
				l.pos++
				if l.pos < len(l.data) && (l.data[l.pos] == '+' || l.data[l.pos] == '-') {
					l.pos++
				}
				continue
			}
			break
		}
		return token{kind: tokNumber, text: string(l.data[start:l.pos]), off: start}, nil
	case isLetter(c):
		l.ident()
		return token{kind: tokIdent, text: string(l.data[start:l.pos]), off: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q", c)
}

func (l *lexer) ident() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if !isLetter(c) && !isDigit(c) && c != '/' {
			return
		}
		l.pos++
	}
}

func (l *lexer) quoted() (token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.data) {
		switch l.data[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '\n':
			return token{}, l.errorf(start, "newline in string")
		case '"':
			l.pos++
			s, err := strconv.Unquote(string(l.data[start:l.pos]))
			if err != nil {
				return token{}, l.errorf(start, "bad string literal: %v", err)
			}
			return token{kind: tokString, text: s, off: start}, nil
		}
		l.pos++
	}
	return token{}, l.errorf(start, "unterminated string")
}

func isLetter(c byte) bool { return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// textReader parses one text document. Like the binary reader it owns all
// of its state.
type textReader struct {
	lex  lexer
	tok  token
	doc  *Document
	path string

	subIDs    map[string]int
	extIDs    map[string]int
	cache     map[string]*Object
	current   *Object
	openSub   int
	headerUID string
}

func decodeText(data []byte, path string) (*Document, error) {
	r := &textReader{
		lex:     lexer{data: data},
		doc:     &Document{Path: path},
		path:    path,
		subIDs:  make(map[string]int),
		extIDs:  make(map[string]int),
		cache:   make(map[string]*Object),
		openSub: -1,
	}
	if err := r.advance(); err != nil {
		return nil, err
	}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r.doc, nil
}

func (r *textReader) advance() error {
	t, err := r.lex.next()
	if err != nil {
		return err
	}
	r.tok = t
	return nil
}

func (r *textReader) expect(k tokenKind) (token, error) {
	t := r.tok
	if t.kind != k {
		return t, r.lex.errorf(t.off, "expected %s, found %s", tokenNames[k], describe(t))
	}
	return t, r.advance()
}

func describe(t token) string {
	switch t.kind {
	case tokString, tokNumber, tokIdent:
		return tokenNames[t.kind] + " " + strconv.Quote(t.text)
	}
	return tokenNames[t.kind]
}

func (r *textReader) parse() error {
	sawHeader := false
	for r.tok.kind != tokEOF {
		switch r.tok.kind {
		case tokLBrack:
			if err := r.section(&sawHeader); err != nil {
				return err
			}
		case tokIdent, tokString:
			if !sawHeader || r.current == nil {
				return r.lex.errorf(r.tok.off, "property outside of a resource section")
			}
			if err := r.property(); err != nil {
				return err
			}
		default:
			return r.lex.errorf(r.tok.off, "unexpected %s", describe(r.tok))
		}
	}
	if !sawHeader {
		return r.lex.errorf(0, "missing [program] header")
	}
	r.closeSub()
	if r.doc.Main == nil {
		return newError(ErrCodeCorruptFile, int64(len(r.lex.data)), "no [resource] section")
	}
	if _, ok := r.doc.Main.Get("uid"); !ok && r.headerUID != "" {
		r.doc.Main.Set("uid", ir.String(r.headerUID))
	}
	return nil
}

// closeSub makes the sub-resource being parsed available to references
// from later sections.
func (r *textReader) closeSub() {
	if r.openSub >= 0 {
		r.cache[cacheKey(r.path, r.openSub)] = r.doc.Subs[r.openSub]
		r.openSub = -1
	}
}

func (r *textReader) section(sawHeader *bool) error {
	open := r.tok
	if err := r.advance(); err != nil {
		return err
	}
	name, err := r.expect(tokIdent)
	if err != nil {
		return err
	}
	attrs := map[string]ir.Value{}
	for r.tok.kind == tokIdent {
		key := r.tok.text
		if err := r.advance(); err != nil {
			return err
		}
		if _, err := r.expect(tokEquals); err != nil {
			return err
		}
		v, err := r.value(0)
		if err != nil {
			return err
		}
		attrs[key] = v
	}
	if _, err := r.expect(tokRBrack); err != nil {
		return err
	}

	str := func(key string) string {
		s, _ := attrs[key].(ir.String)
		return string(s)
	}

	if !*sawHeader {
		if name.text != "program" {
			return r.lex.errorf(open.off, "expected [program] header, found [%s]", name.text)
		}
		*sawHeader = true
		return r.header(open.off, attrs, str)
	}

	r.closeSub()
	switch name.text {
	case "ext_resource":
		id := str("id")
		if _, dup := r.extIDs[id]; dup {
			return r.lex.errorf(open.off, "duplicate ext_resource id %q", id)
		}
		r.extIDs[id] = len(r.doc.External)
		r.doc.External = append(r.doc.External, External{Type: str("type"), Path: str("path"), ID: id})
		r.current = nil
	case "sub_resource":
		if r.doc.Main != nil {
			return r.lex.errorf(open.off, "sub_resource after [resource]")
		}
		id := str("id")
		if _, dup := r.subIDs[id]; dup {
			return r.lex.errorf(open.off, "duplicate sub_resource id %q", id)
		}
		o := NewObject(str("type"), id)
		r.openSub = len(r.doc.Subs)
		r.subIDs[id] = r.openSub
		r.doc.Subs = append(r.doc.Subs, o)
		r.current = o
	case "resource":
		if r.doc.Main != nil {
			return r.lex.errorf(open.off, "more than one [resource] section")
		}
		r.doc.Main = NewObject(r.doc.Type, "")
		r.current = r.doc.Main
	default:
		return r.lex.errorf(open.off, "unknown section [%s]", name.text)
	}
	return nil
}

func (r *textReader) header(off int, attrs map[string]ir.Value, str func(string) string) error {
	format, ok := attrs["format"].(ir.Int)
	if !ok {
		return r.lex.errorf(off, "[program] header has no format")
	}
	if format <= 0 {
		return newError(ErrCodeCorruptFile, int64(off), "format version %d", format)
	}
	if uint64(format) > uint64(FormatVersion) {
		return newError(ErrCodeUnsupportedVersion, int64(off), "format version %d is newer than %d", format, FormatVersion)
	}
	r.doc.Format = uint32(format)
	r.doc.Type = str("type")
	r.headerUID = str("uid")
	if host := str("host"); host != "" {
		parts := strings.Split(host, ".")
		for i := 0; i < len(parts) && i < 3; i++ {
			n, err := strconv.ParseUint(parts[i], 10, 32)
			if err != nil {
				return r.lex.errorf(off, "bad host version %q", host)
			}
			r.doc.HostVersion[i] = uint32(n)
		}
	}
	return nil
}

func (r *textReader) property() error {
	key := r.tok.text
	if err := r.advance(); err != nil {
		return err
	}
	if _, err := r.expect(tokEquals); err != nil {
		return err
	}
	v, err := r.value(0)
	if err != nil {
		return err
	}
	r.current.Set(key, v)
	return nil
}

func (r *textReader) value(depth int) (ir.Value, error) {
	if depth > maxNesting {
		return nil, r.lex.errorf(r.tok.off, "values nested deeper than %d", maxNesting)
	}
	t := r.tok
	switch t.kind {
	case tokString:
		return ir.String(t.text), r.advance()
	case tokNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, r.lex.errorf(t.off, "bad number %q", t.text)
		}
		return v, r.advance()
	case tokLBrack:
		return r.array(depth)
	case tokLBrace:
		return r.dictionary(depth)
	case tokIdent:
		switch t.text {
		case "null":
			return ir.Nil{}, r.advance()
		case "true", "false":
			return ir.Bool(t.text == "true"), r.advance()
		case "inf":
			return ir.Float(math.Inf(1)), r.advance()
		case "-inf":
			return ir.Float(math.Inf(-1)), r.advance()
		case "nan":
			return ir.Float(math.NaN()), r.advance()
		}
		return r.constructor(depth)
	}
	return nil, r.lex.errorf(t.off, "expected a value, found %s", describe(t))
}

func parseNumber(s string) (ir.Value, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		return ir.Float(f), err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	return ir.Int(i), err
}

func (r *textReader) array(depth int) (ir.Value, error) {
	if err := r.advance(); err != nil {
		return nil, err
	}
	a := ir.Array{}
	for r.tok.kind != tokRBrack {
		v, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		a = append(a, v)
		if r.tok.kind != tokComma {
			break
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
	}
	_, err := r.expect(tokRBrack)
	return a, err
}

func (r *textReader) dictionary(depth int) (ir.Value, error) {
	if err := r.advance(); err != nil {
		return nil, err
	}
	d := ir.NewDictionary()
	for r.tok.kind != tokRBrace {
		k, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err := r.expect(tokColon); err != nil {
			return nil, err
		}
		v, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		d.Set(k, v)
		if r.tok.kind != tokComma {
			break
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
	}
	_, err := r.expect(tokRBrace)
	return d, err
}

// constructor parses Name(arg, ...) and builds the typed value.
func (r *textReader) constructor(depth int) (ir.Value, error) {
	name := r.tok
	if err := r.advance(); err != nil {
		return nil, err
	}
	if _, err := r.expect(tokLParen); err != nil {
		return nil, err
	}
	var args []ir.Value
	for r.tok.kind != tokRParen {
		v, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if r.tok.kind != tokComma {
			break
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := r.expect(tokRParen); err != nil {
		return nil, err
	}
	v, err := r.build(name, args)
	if err != nil {
		if ce, ok := err.(*Error); ok {
			return nil, ce
		}
		return nil, r.lex.errorf(name.off, "%s: %v", name.text, err)
	}
	return v, nil
}

type argError string

func (e argError) Error() string { return string(e) }

func floatArgs(args []ir.Value, n int) ([]float64, error) {
	if n >= 0 && len(args) != n {
		return nil, argError("want " + strconv.Itoa(n) + " arguments, got " + strconv.Itoa(len(args)))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		switch x := a.(type) {
		case ir.Int:
			out[i] = float64(x)
		case ir.Float:
			out[i] = float64(x)
		default:
			return nil, argError("argument " + strconv.Itoa(i+1) + " is not a number")
		}
	}
	return out, nil
}

func intArgs(args []ir.Value, n int, lo, hi int64) ([]int64, error) {
	if n >= 0 && len(args) != n {
		return nil, argError("want " + strconv.Itoa(n) + " arguments, got " + strconv.Itoa(len(args)))
	}
	out := make([]int64, len(args))
	for i, a := range args {
		x, ok := a.(ir.Int)
		if !ok || int64(x) < lo || int64(x) > hi {
			return nil, argError("argument " + strconv.Itoa(i+1) + " is not an integer in range")
		}
		out[i] = int64(x)
	}
	return out, nil
}

func int32Args(args []ir.Value, n int) ([]int32, error) {
	is, err := intArgs(args, n, math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(is))
	for i, v := range is {
		out[i] = int32(v)
	}
	return out, nil
}

func groups(n, size int) (int, error) {
	if n%size != 0 {
		return 0, argError("argument count " + strconv.Itoa(n) + " is not a multiple of " + strconv.Itoa(size))
	}
	return n / size, nil
}

func stringArgs(args []ir.Value) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(ir.String)
		if !ok {
			return nil, argError("argument " + strconv.Itoa(i+1) + " is not a string")
		}
		out[i] = string(s)
	}
	return out, nil
}

func (r *textReader) build(name token, args []ir.Value) (ir.Value, error) {
	switch name.text {
	case "Vector2":
		f, err := floatArgs(args, 2)
		if err != nil {
			return nil, err
		}
		return ir.Vector2{X: f[0], Y: f[1]}, nil
	case "Vector2i":
		i, err := int32Args(args, 2)
		if err != nil {
			return nil, err
		}
		return ir.Vector2i{X: i[0], Y: i[1]}, nil
	case "Rect2":
		f, err := floatArgs(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Rect2{Position: ir.Vector2{X: f[0], Y: f[1]}, Size: ir.Vector2{X: f[2], Y: f[3]}}, nil
	case "Rect2i":
		i, err := int32Args(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Rect2i{Position: ir.Vector2i{X: i[0], Y: i[1]}, Size: ir.Vector2i{X: i[2], Y: i[3]}}, nil
	case "Vector3":
		f, err := floatArgs(args, 3)
		if err != nil {
			return nil, err
		}
		return vec3(f), nil
	case "Vector3i":
		i, err := int32Args(args, 3)
		if err != nil {
			return nil, err
		}
		return ir.Vector3i{X: i[0], Y: i[1], Z: i[2]}, nil
	case "Transform2D":
		f, err := floatArgs(args, 6)
		if err != nil {
			return nil, err
		}
		return ir.Transform2D{
			X:      ir.Vector2{X: f[0], Y: f[1]},
			Y:      ir.Vector2{X: f[2], Y: f[3]},
			Origin: ir.Vector2{X: f[4], Y: f[5]},
		}, nil
	case "Vector4":
		f, err := floatArgs(args, 4)
		if err != nil {
			return nil, err
		}
		return vec4(f), nil
	case "Vector4i":
		i, err := int32Args(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Vector4i{X: i[0], Y: i[1], Z: i[2], W: i[3]}, nil
	case "Plane":
		f, err := floatArgs(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Plane{Normal: vec3(f), D: f[3]}, nil
	case "Quaternion":
		f, err := floatArgs(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Quaternion{X: f[0], Y: f[1], Z: f[2], W: f[3]}, nil
	case "AABB":
		f, err := floatArgs(args, 6)
		if err != nil {
			return nil, err
		}
		return ir.AABB{Position: vec3(f), Size: vec3(f[3:])}, nil
	case "Basis":
		f, err := floatArgs(args, 9)
		if err != nil {
			return nil, err
		}
		return basis(f), nil
	case "Transform3D":
		f, err := floatArgs(args, 12)
		if err != nil {
			return nil, err
		}
		return ir.Transform3D{Basis: basis(f), Origin: vec3(f[9:])}, nil
	case "Projection":
		f, err := floatArgs(args, 16)
		if err != nil {
			return nil, err
		}
		var p ir.Projection
		for c := range p.Columns {
			p.Columns[c] = vec4(f[c*4:])
		}
		return p, nil
	case "Color":
		f, err := floatArgs(args, 4)
		if err != nil {
			return nil, err
		}
		return ir.Color{R: float32(f[0]), G: float32(f[1]), B: float32(f[2]), A: float32(f[3])}, nil
	case "NodePath":
		return nodePathArgs(args)
	case "Object":
		if len(args) != 1 || ir.TypeOf(args[0]) != ir.TypeNil {
			return nil, argError("only Object(null) is supported")
		}
		return ir.Object{Kind: ir.ObjectEmpty}, nil
	case "SubResource":
		id, err := singleString(args)
		if err != nil {
			return nil, err
		}
		i, ok := r.subIDs[id]
		if !ok {
			return nil, newError(ErrCodeBadReference, int64(name.off), "unknown sub_resource %q", id)
		}
		if _, loaded := r.cache[cacheKey(r.path, i)]; !loaded {
			return nil, newError(ErrCodeBadReference, int64(name.off), "sub_resource %q referenced before it was loaded", id)
		}
		return ir.Object{Kind: ir.ObjectInternal, Index: i}, nil
	case "ExtResource":
		id, err := singleString(args)
		if err != nil {
			return nil, err
		}
		i, ok := r.extIDs[id]
		if !ok {
			return nil, newError(ErrCodeBadReference, int64(name.off), "unknown ext_resource %q", id)
		}
		return ir.Object{Kind: ir.ObjectExternal, Index: i}, nil
	case "PackedByteArray":
		is, err := intArgs(args, -1, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedByteArray, len(is))
		for i, v := range is {
			out[i] = byte(v)
		}
		return out, nil
	case "PackedInt32Array":
		is, err := int32Args(args, -1)
		return ir.PackedInt32Array(is), err
	case "PackedInt64Array":
		is, err := intArgs(args, -1, math.MinInt64, math.MaxInt64)
		return ir.PackedInt64Array(is), err
	case "PackedFloat32Array":
		f, err := floatArgs(args, -1)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedFloat32Array, len(f))
		for i, v := range f {
			out[i] = float32(v)
		}
		return out, nil
	case "PackedFloat64Array":
		f, err := floatArgs(args, -1)
		return ir.PackedFloat64Array(f), err
	case "PackedStringArray":
		s, err := stringArgs(args)
		return ir.PackedStringArray(s), err
	case "PackedVector2Array":
		f, err := floatArgs(args, -1)
		if err != nil {
			return nil, err
		}
		n, err := groups(len(f), 2)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector2Array, n)
		for i := range out {
			out[i] = ir.Vector2{X: f[2*i], Y: f[2*i+1]}
		}
		return out, nil
	case "PackedVector3Array":
		f, err := floatArgs(args, -1)
		if err != nil {
			return nil, err
		}
		n, err := groups(len(f), 3)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector3Array, n)
		for i := range out {
			out[i] = vec3(f[3*i:])
		}
		return out, nil
	case "PackedVector4Array":
		f, err := floatArgs(args, -1)
		if err != nil {
			return nil, err
		}
		n, err := groups(len(f), 4)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedVector4Array, n)
		for i := range out {
			out[i] = vec4(f[4*i:])
		}
		return out, nil
	case "PackedColorArray":
		f, err := floatArgs(args, -1)
		if err != nil {
			return nil, err
		}
		n, err := groups(len(f), 4)
		if err != nil {
			return nil, err
		}
		out := make(ir.PackedColorArray, n)
		for i := range out {
			c := f[4*i:]
			out[i] = ir.Color{R: float32(c[0]), G: float32(c[1]), B: float32(c[2]), A: float32(c[3])}
		}
		return out, nil
	}
	return nil, argError("unknown constructor")
}

func singleString(args []ir.Value) (string, error) {
	if len(args) != 1 {
		return "", argError("want 1 argument, got " + strconv.Itoa(len(args)))
	}
	s, ok := args[0].(ir.String)
	if !ok {
		return "", argError("argument is not a string")
	}
	return string(s), nil
}

func nodePathArgs(args []ir.Value) (ir.Value, error) {
	if len(args) == 1 {
		s, err := singleString(args)
		if err != nil {
			return nil, err
		}
		return parseNodePath(s), nil
	}
	if len(args) != 3 {
		return nil, argError("want 1 or 3 arguments, got " + strconv.Itoa(len(args)))
	}
	names, ok1 := args[0].(ir.PackedStringArray)
	subs, ok2 := args[1].(ir.PackedStringArray)
	abs, ok3 := args[2].(ir.Bool)
	if !ok1 || !ok2 || !ok3 {
		return nil, argError("want (PackedStringArray, PackedStringArray, bool)")
	}
	p := ir.NodePath{Absolute: bool(abs)}
	if len(names) > 0 {
		p.Names = []string(names)
	}
	if len(subs) > 0 {
		p.Subnames = []string(subs)
	}
	return p, nil
}

package codec

import (
	"strconv"

	"github.com/roach88/vscript/internal/ir"
)

// FormatVersion is the newest format version this package reads and the one
// it writes.
const FormatVersion uint32 = 3

// Document is the persisted form of one resource: an optional table of
// external references, sub-objects in dependency order, and the main
// object. Values of type ir.Object with Kind ObjectInternal index Subs;
// ObjectExternal indexes External.
type Document struct {
	// Type is the class of the main object.
	Type string

	// Format is the version the document was read with. Writers always emit
	// FormatVersion.
	Format uint32

	// HostVersion is informational and never gates loading.
	HostVersion [3]uint32

	// Path names the resource. Loaders key their back-reference cache with
	// it.
	Path string

	External []External
	Subs     []*Object
	Main     *Object
}

// External is a reference to another resource.
type External struct {
	Type string
	Path string
	ID   string
}

// Object is a typed bag of ordered properties.
type Object struct {
	Type  string
	ID    string
	Props []Property
}

// Property is one named value of an Object.
type Property struct {
	Name  string
	Value ir.Value
}

// NewObject creates an empty object of the given type.
func NewObject(typ, id string) *Object {
	return &Object{Type: typ, ID: id}
}

// Get returns the named property.
func (o *Object) Get(name string) (ir.Value, bool) {
	for _, p := range o.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Set stores a property, keeping the position of an existing one.
func (o *Object) Set(name string, v ir.Value) {
	for i := range o.Props {
		if o.Props[i].Name == name {
			o.Props[i].Value = v
			return
		}
	}
	o.Props = append(o.Props, Property{Name: name, Value: v})
}

// cacheKey addresses the idx-th sub-object of the resource at path in a
// loader's back-reference cache.
func cacheKey(path string, idx int) string {
	return path + "::" + strconv.Itoa(idx)
}

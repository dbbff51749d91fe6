// Package registry implements the host function registry: metadata is built
// incrementally through a mutable builder, committed into an immutable Map,
// and the Map is handed to instance creation. The registry does not enforce
// copy-on-write; a map referenced by a live instance is committed and must
// not be mutated by the caller (clone it instead).
package registry

import (
	"strings"

	"github.com/modforge/scriptrt/errors"
	"github.com/modforge/scriptrt/interop"
)

// Callback is a host function invokable from script code. It receives the
// decoded arguments and returns one tagged value; error conditions are
// reported as error-kind values, never as panics.
type Callback func(params *interop.Params) interop.Value

// Metadata is a committed host function signature. Read-only after Build.
type Metadata struct {
	capability string
	callback   Callback
	paramKinds []interop.Kind
	returnKind interop.Kind
	doc        string
}

func (m *Metadata) Capability() string         { return m.capability }
func (m *Metadata) Callback() Callback         { return m.callback }
func (m *Metadata) ParamKinds() []interop.Kind { return m.paramKinds }
func (m *Metadata) ReturnKind() interop.Kind   { return m.returnKind }
func (m *Metadata) Doc() string                { return m.doc }

// Builder accumulates one function's metadata. Separate from Metadata so
// committed signatures cannot be mutated after the map is built.
type Builder struct {
	capability string
	callback   Callback
	paramKinds []interop.Kind
	returnKind interop.Kind
	doc        string
}

// NewBuilder starts metadata for a host function exported under the given
// capability tag.
func NewBuilder(capability string, callback Callback) *Builder {
	return &Builder{
		capability: capability,
		callback:   callback,
		returnKind: interop.KindVoid,
	}
}

// Doc attaches an optional doc comment, surfaced in generated specs.
func (b *Builder) Doc(doc string) *Builder {
	b.doc = doc
	return b
}

// AddParamKind appends one expected parameter kind.
func (b *Builder) AddParamKind(k interop.Kind) error {
	if !k.ValidParam() {
		return errors.New(errors.PhaseRegistry, errors.KindInvalidInput).
			Detail("kind %s is not a valid parameter kind", k).
			Build()
	}
	b.paramKinds = append(b.paramKinds, k)
	return nil
}

// SetReturnKind sets the single expected return kind.
func (b *Builder) SetReturnKind(k interop.Kind) error {
	if !k.ValidReturn() {
		return errors.New(errors.PhaseRegistry, errors.KindInvalidInput).
			Detail("kind %s is not a valid return kind", k).
			Build()
	}
	b.returnKind = k
	return nil
}

// Build commits the accumulated signature.
func (b *Builder) Build() *Metadata {
	kinds := make([]interop.Kind, len(b.paramKinds))
	copy(kinds, b.paramKinds)
	return &Metadata{
		capability: b.capability,
		callback:   b.callback,
		paramKinds: kinds,
		returnKind: b.returnKind,
		doc:        b.doc,
	}
}

// NameClass distinguishes how a qualified name surfaces in script code.
type NameClass uint8

const (
	// NameBare is a free function.
	NameBare NameClass = iota
	// NameStatic is "Class:method"; the script engine synthesizes a
	// constructor-style class table for these.
	NameStatic
	// NameInstance is "Class.method", a method on existing objects.
	NameInstance
)

// QualifiedName is a parsed registry key. Matching is case-insensitive on
// both qualifier and method; the separator choice is significant.
type QualifiedName struct {
	Qualifier string
	Method    string
	Class     NameClass
}

// ParseName splits on the first ':' or '.'; a name containing neither is a
// bare function.
func ParseName(name string) QualifiedName {
	ci := strings.IndexByte(name, ':')
	di := strings.IndexByte(name, '.')

	sep := -1
	class := NameBare
	switch {
	case ci >= 0 && (di < 0 || ci < di):
		sep, class = ci, NameStatic
	case di >= 0:
		sep, class = di, NameInstance
	}

	if sep < 0 {
		return QualifiedName{Method: strings.ToLower(name)}
	}
	return QualifiedName{
		Qualifier: strings.ToLower(name[:sep]),
		Method:    strings.ToLower(name[sep+1:]),
		Class:     class,
	}
}

// key returns the canonical map key for a parsed name.
func (q QualifiedName) key() string {
	switch q.Class {
	case NameStatic:
		return q.Qualifier + ":" + q.Method
	case NameInstance:
		return q.Qualifier + "." + q.Method
	default:
		return q.Method
	}
}

// String returns the canonical form of the name.
func (q QualifiedName) String() string { return q.key() }

// Map is the name-to-metadata mapping consumed at instance creation.
type Map struct {
	fns map[string]*Metadata
}

// NewMap creates an empty registry map.
func NewMap() *Map {
	return &Map{fns: make(map[string]*Metadata)}
}

// Add commits md under the qualified name. Re-adding a name replaces it; the
// map must not yet be held by a live instance when that happens.
func (m *Map) Add(name string, md *Metadata) {
	m.fns[ParseName(name).key()] = md
}

// Lookup resolves a qualified name, case-insensitively.
func (m *Map) Lookup(name string) (*Metadata, bool) {
	md, ok := m.fns[ParseName(name).key()]
	return md, ok
}

// Clone returns an independent copy so multiple instances can share a base
// registry without aliasing mutation. Metadata values are immutable and
// shared by reference.
func (m *Map) Clone() *Map {
	out := make(map[string]*Metadata, len(m.fns))
	for k, v := range m.fns {
		out[k] = v
	}
	return &Map{fns: out}
}

// Len returns the number of registered functions.
func (m *Map) Len() int { return len(m.fns) }

// Each iterates over every entry with its parsed name.
func (m *Map) Each(fn func(QualifiedName, *Metadata) bool) {
	for k, v := range m.fns {
		if !fn(ParseName(k), v) {
			return
		}
	}
}

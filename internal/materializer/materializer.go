// Package materializer maps runtime object types to serializers. A
// materializer turns an object into a set of files in a staging directory and
// back again; the registry front-end picks one per object by type identity,
// falling back to registered interface types when no exact match exists.
package materializer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var ErrNoMaterializer = errors.New("no materializer registered")

// Materializer serializes objects of one type family into files under a
// staging directory, and reconstructs them from pulled files.
type Materializer interface {
	// Name identifies the materializer in registry-level metadata.
	Name() string

	// Save writes obj as one or more files under dir and returns the
	// slash-relative file list plus extra metadata to persist alongside.
	Save(obj any, dir string) (files []string, meta map[string]string, err error)

	// Load reconstructs the object from files previously written by Save.
	Load(dir string, files []string, meta map[string]string) (any, error)
}

// ClassName returns the fully qualified type name used as the `class` field
// in object metadata.
func ClassName(obj any) string {
	return classNameOf(reflect.TypeOf(obj))
}

func classNameOf(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

type ifaceEntry struct {
	typ reflect.Type
	m   Materializer
}

// Registry resolves materializers by exact type first, then by registered
// interface types in registration order.
type Registry struct {
	mu      sync.RWMutex
	exact   map[reflect.Type]Materializer
	ifaces  []ifaceEntry
	byClass map[string]Materializer
	byName  map[string]Materializer
}

func NewRegistry() *Registry {
	return &Registry{
		exact:   make(map[reflect.Type]Materializer),
		byClass: make(map[string]Materializer),
		byName:  make(map[string]Materializer),
	}
}

// Default returns a registry with the built-in materializers wired: raw bytes
// for []byte and plain file trees for Dir.
func Default() *Registry {
	r := NewRegistry()
	Register[[]byte](r, Bytes{})
	Register[Dir](r, Tree{})
	return r
}

// Register binds a materializer to type T. When T is an interface, objects of
// any type implementing it resolve to m unless a more specific registration
// exists; interfaces registered earlier win.
func Register[T any](r *Registry, m Materializer) {
	r.register(reflect.TypeOf((*T)(nil)).Elem(), m)
}

func (r *Registry) register(t reflect.Type, m Materializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Kind() == reflect.Interface {
		for i, e := range r.ifaces {
			if e.typ == t {
				r.ifaces[i].m = m
				r.byName[m.Name()] = m
				return
			}
		}
		r.ifaces = append(r.ifaces, ifaceEntry{typ: t, m: m})
	} else {
		r.exact[t] = m
		r.byClass[classNameOf(t)] = m
	}
	r.byName[m.Name()] = m
}

// For resolves the materializer for obj's runtime type.
func (r *Registry) For(obj any) (Materializer, error) {
	t := reflect.TypeOf(obj)
	if t == nil {
		return nil, fmt.Errorf("%w: nil object", ErrNoMaterializer)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.exact[t]; ok {
		return m, nil
	}
	for _, e := range r.ifaces {
		if t.Implements(e.typ) {
			return e.m, nil
		}
	}
	return nil, fmt.Errorf("%w: type %s", ErrNoMaterializer, classNameOf(t))
}

// ForClass resolves by the `class` field of stored metadata.
func (r *Registry) ForClass(class string) (Materializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byClass[class]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: class %s", ErrNoMaterializer, class)
}

// ByName resolves by materializer name, as recorded in registry-level
// metadata for classes matched via an interface registration.
func (r *Registry) ByName(name string) (Materializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byName[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: name %s", ErrNoMaterializer, name)
}

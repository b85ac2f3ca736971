// Package registry holds the table of vars a pod serves.
//
// Vars are registered on a Builder at startup. Build freezes the table into a
// Registry that is never mutated again, so connection goroutines share it by
// reference without locking.
//
// Example usage:
//
//	b := registry.NewBuilder()
//	b.Register("math/add", addHandler)
//	b.RegisterNamespace("str", map[string]registry.Handler{"upper": upper})
//	reg := b.Build()
//
//	h, ok := reg.Lookup("math/add")
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Separator splits a key into namespace and var name at its first occurrence.
const Separator = "/"

var (
	ErrEmptyKey     = errors.New("registry: empty key")
	ErrNilHandler   = errors.New("registry: nil handler")
	ErrDuplicateKey = errors.New("registry: duplicate key")
)

// Builder collects handlers before the registry is frozen. It is not safe
// for concurrent use.
type Builder struct {
	handlers map[string]Handler
}

func NewBuilder() *Builder {
	return &Builder{handlers: make(map[string]Handler)}
}

// Register adds a handler under key.
//
// Keys are expected to look like "namespace/name". A key without a separator
// is accepted and can still be invoked, but describe will not list it.
func (b *Builder) Register(key string, h Handler) error {
	if key == "" {
		return ErrEmptyKey
	}
	if h == nil {
		return fmt.Errorf("%w for %q", ErrNilHandler, key)
	}
	if _, exists := b.handlers[key]; exists {
		return fmt.Errorf("%w %q", ErrDuplicateKey, key)
	}

	b.handlers[key] = h
	return nil
}

// RegisterNamespace registers every entry of vars under "ns/name".
// Registration stops at the first failure.
func (b *Builder) RegisterNamespace(ns string, vars map[string]Handler) error {
	if ns == "" {
		return fmt.Errorf("%w: namespace name", ErrEmptyKey)
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: var name in namespace %q", ErrEmptyKey, ns)
		}
		if err := b.Register(ns+Separator+name, vars[name]); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the collected handlers. The builder may keep being used
// afterwards; later registrations do not affect registries already built.
func (b *Builder) Build() *Registry {
	handlers := make(map[string]Handler, len(b.handlers))
	keys := make([]string, 0, len(b.handlers))
	for k, h := range b.handlers {
		handlers[k] = h
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Registry{handlers: handlers, keys: keys}
}

// Registry is an immutable key to handler table.
type Registry struct {
	handlers map[string]Handler
	keys     []string
}

// Lookup matches key verbatim against the registered keys. No normalization
// is applied: "math/add" and "math//add" are different vars.
func (r *Registry) Lookup(key string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[key]
	return h, ok
}

// Keys returns the registered keys in sorted order. The slice is a copy.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// SplitKey splits key at the first separator. ok is false when key has none.
func SplitKey(key string) (namespace, name string, ok bool) {
	return strings.Cut(key, Separator)
}

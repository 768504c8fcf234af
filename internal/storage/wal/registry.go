package wal

import (
	"fmt"
	"sort"
)

// KindSpec is one row of the kind table.
type KindSpec struct {
	Kind Kind
	Name string
	New  func() Op

	// Deferred operations are replayed after the main recovery pass.
	Deferred bool

	// IsDelete marks destructive operations.
	IsDelete bool
}

// Registry maps kind tags to their specs. It is immutable once built and
// safe for concurrent use.
type Registry struct {
	specs map[Kind]KindSpec
}

// NewRegistry builds a registry from specs. The control kinds are always
// present. Registering a tag twice, or a reserved tag, is an error.
func NewRegistry(specs ...KindSpec) (*Registry, error) {
	r := &Registry{specs: make(map[Kind]KindSpec, len(specs)+3)}
	for _, s := range controlSpecs() {
		r.specs[s.Kind] = s
	}
	for _, s := range specs {
		if s.Kind == KindUnknown || s.Kind.IsControl() {
			return nil, fmt.Errorf("wal: kind %d is reserved", s.Kind)
		}
		if prev, ok := r.specs[s.Kind]; ok {
			return nil, fmt.Errorf("wal: kind %d registered twice (%s, %s)", s.Kind, prev.Name, s.Name)
		}
		if s.New == nil || s.Name == "" {
			return nil, fmt.Errorf("wal: kind %d needs a name and constructor", s.Kind)
		}
		r.specs[s.Kind] = s
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error. It is meant for
// package-level catalogs.
func MustRegistry(specs ...KindSpec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the spec registered for k.
func (r *Registry) Lookup(k Kind) (KindSpec, bool) {
	s, ok := r.specs[k]
	return s, ok
}

// New returns a zero operation of kind k.
func (r *Registry) New(k Kind) (Op, error) {
	s, ok := r.specs[k]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownKind, uint32(k))
	}
	return s.New(), nil
}

// Name returns the registered name of k.
func (r *Registry) Name(k Kind) string {
	if s, ok := r.specs[k]; ok {
		return s.Name
	}
	return k.String()
}

// Kinds returns every registered kind in tag order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Package registry holds the named source declarations for the lifetime of a process.
// Sources are registered once at startup, then the registry is sealed and
// served to concurrent readers without locking.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// ErrSealed is returned by Register after Seal.
var ErrSealed = errors.New("registry is sealed")

// SourceRegistry maps source names to their descriptors.
type SourceRegistry struct {
	mu sync.Mutex

	// byName maps source names to descriptors: "sales" → {Kind: csv, ...}
	byName map[string]core.SourceDescriptor

	// order keeps declaration order for listing
	order []string

	sealed atomic.Bool
}

// New creates an empty registry.
func New() *SourceRegistry {
	return &SourceRegistry{byName: make(map[string]core.SourceDescriptor)}
}

// FromDescriptors registers every descriptor in order and seals the registry.
// The first invalid or duplicate descriptor aborts construction.
func FromDescriptors(descs []core.SourceDescriptor) (*SourceRegistry, error) {
	r := New()
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	r.Seal()
	return r, nil
}

// Register adds a descriptor. The descriptor's options are copied so later
// changes by the caller are not observed.
func (r *SourceRegistry) Register(desc core.SourceDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrSealed
	}
	if _, ok := r.byName[desc.Name]; ok {
		return &core.DuplicateSourceError{Name: desc.Name}
	}

	if desc.Options != nil {
		opts := make(map[string]string, len(desc.Options))
		for k, v := range desc.Options {
			opts[k] = v
		}
		desc.Options = opts
	}
	r.byName[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return nil
}

// Seal ends the registration phase.
func (r *SourceRegistry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *SourceRegistry) Sealed() bool {
	return r.sealed.Load()
}

// Resolve returns the descriptor registered under name.
func (r *SourceRegistry) Resolve(name string) (core.SourceDescriptor, error) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	desc, ok := r.byName[name]
	if !ok {
		return core.SourceDescriptor{}, &core.UnknownSourceError{Name: name, Available: r.namesLocked()}
	}
	return desc, nil
}

// Has reports whether name is registered.
func (r *SourceRegistry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// List returns all descriptors in declaration order.
func (r *SourceRegistry) List() []core.SourceDescriptor {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]core.SourceDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the source names in declaration order.
func (r *SourceRegistry) Names() []string {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return r.namesLocked()
}

// Count returns the number of registered sources.
func (r *SourceRegistry) Count() int {
	return len(r.Names())
}

func (r *SourceRegistry) namesLocked() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

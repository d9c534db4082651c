package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Factory creates an unconnected adapter. A nil logger means discard.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[core.SourceKind]Factory)
)

// Register adds an adapter factory to the registry.
// Called by adapter implementations in their init() functions.
func Register(kind core.SourceKind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Get retrieves an adapter factory by kind.
func Get(kind core.SourceKind) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// NewAdapter creates an unconnected adapter for the descriptor's kind.
func NewAdapter(desc core.SourceDescriptor, logger *slog.Logger) (Adapter, error) {
	if desc.Kind == "" {
		return nil, fmt.Errorf("source %q: type not specified", desc.Name)
	}

	factory, ok := Get(desc.Kind)
	if !ok {
		return nil, &UnknownAdapterError{
			Kind:      string(desc.Kind),
			Available: ListAdapters(),
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger.With("source", desc.Name, "kind", string(desc.Kind))), nil
}

// ListAdapters returns all registered kinds (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for kind := range registry {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an adapter kind is registered.
func IsRegistered(kind core.SourceKind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// UnknownAdapterError is returned when no adapter is registered for a kind.
type UnknownAdapterError struct {
	Kind      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("no adapter for source type %q\nAvailable adapters: %v\nHint: Check the source type in leapdata.yaml", e.Kind, e.Available)
}

package adapter

import (
	"context"
	"sync"

	"github.com/trellishq/trellis/internal/db/capability"
)

// Registry maps adapter kinds to their implementations. The lifecycle facade
// builds one at startup and hands it to whoever needs to resolve a kind; no
// package-global registry exists.
type Registry struct {
	mu       sync.RWMutex
	adapters map[capability.Kind]PersistenceAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[capability.Kind]PersistenceAdapter)}
}

// Register adds an adapter, replacing any previous one for the same kind.
func (r *Registry) Register(a PersistenceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind capability.Kind) (PersistenceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, &UnsupportedAdapterError{Kind: string(kind)}
	}
	return a, nil
}

// GetByName resolves a kind name or alias and returns its adapter.
func (r *Registry) GetByName(name string) (PersistenceAdapter, error) {
	kind, ok := capability.ParseKind(name)
	if !ok {
		return nil, &UnsupportedAdapterError{Kind: name}
	}
	return r.Get(kind)
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []capability.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]capability.Kind, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Connect validates the config, resolves its kind and delegates to the
// adapter's bootstrapper.
func (r *Registry) Connect(ctx context.Context, config ConnectionConfig) (Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a, err := r.Get(config.Kind)
	if err != nil {
		return nil, err
	}
	return a.Connect(ctx, config)
}

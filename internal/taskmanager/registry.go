package taskmanager

import (
	"sort"
	"sync"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// Registry maps transformation types to their operation builders. Only
// registered types are processed by the agent; it doubles as the allow-list.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]OperationBuilder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]OperationBuilder)}
}

// DefaultRegistry registers the builders for the given types. Types without a
// known builder are returned so the caller can reject the configuration.
func DefaultRegistry(types []string) (*Registry, []string) {
	known := map[string]OperationBuilder{
		domain.TypeReplication: ReplicationOps{},
		domain.TypeRemoval:     RemovalOps{},
	}
	r := NewRegistry()
	var unknown []string
	for _, t := range types {
		b, ok := known[t]
		if !ok {
			unknown = append(unknown, t)
			continue
		}
		r.Register(b)
	}
	return r, unknown
}

// Register adds a builder. Safe to call concurrently.
func (r *Registry) Register(b OperationBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[b.TransformationType()] = b
}

// Get returns the builder for a transformation type or a TypeNotEnabledError.
func (r *Registry) Get(transType string) (OperationBuilder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[transType]
	if !ok {
		return nil, &domain.TypeNotEnabledError{TransformationType: transType}
	}
	return b, nil
}

// Types returns the enabled transformation types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

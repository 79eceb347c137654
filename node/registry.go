package node

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps node names to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates a node name with a handler, replacing any
// existing registration for that name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get returns the handler for the given node name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Execute resolves the handler for req.Node and invokes it. An
// unregistered name returns ErrNotRegistered wrapped with the node name.
func (r *Registry) Execute(ctx context.Context, req Request) ([]byte, error) {
	h, ok := r.Get(req.Node)
	if !ok {
		return nil, fmt.Errorf("node %q: %w", req.Node, ErrNotRegistered)
	}
	return h(ctx, req)
}

// Names returns all registered node names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

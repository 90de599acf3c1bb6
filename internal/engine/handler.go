package engine

import (
	"context"
	"sort"
)

// Handler performs the work of one step. input holds the digests of the
// step's dependencies, or is empty for a step without any.
type Handler interface {
	Invoke(ctx context.Context, task, input string) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task, input string) (string, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, task, input string) (string, error) {
	return f(ctx, task, input)
}

// Registry is an immutable mapping from handler id to Handler, built once at
// setup and shared by every run.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry copies handlers into a Registry. Nil entries are dropped.
func NewRegistry(handlers map[string]Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for id, h := range handlers {
		if h != nil {
			r.handlers[id] = h
		}
	}
	return r
}

// Lookup returns the handler registered under id.
func (r *Registry) Lookup(id string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[id]
	return h, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

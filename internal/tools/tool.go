package tools

import (
	"context"
	"sort"
)

// Tool defines the interface for all handler capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages a set of tools keyed by name.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		Tools: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// List returns the registered tools ordered by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.Tools))
	for _, t := range r.Tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Subset returns a new registry holding only the named tools that exist.
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	for _, n := range names {
		if t := r.Get(n); t != nil {
			sub.Register(t)
		}
	}
	return sub
}

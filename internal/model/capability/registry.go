package capability

import (
	"fmt"
	"strings"
)

// Registry maps handler names to implementations. It is built once at startup
// and never mutated afterwards.
type Registry struct {
	handlers map[string]Handler
	order    []string
}

// NewRegistry builds a registry from the given handlers. Empty or duplicate
// descriptor names are construction errors.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]Handler, len(handlers)),
		order:    make([]string, 0, len(handlers)),
	}
	for _, h := range handlers {
		name := strings.TrimSpace(h.Descriptor().Name)
		if name == "" {
			return nil, fmt.Errorf("handler with empty name")
		}
		if _, exists := r.handlers[name]; exists {
			return nil, fmt.Errorf("duplicate handler name %q", name)
		}
		r.handlers[name] = h
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get resolves a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns handler names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Descriptors returns every handler's descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handlers[name].Descriptor())
	}
	return out
}

// Package engine owns the converter registry and the IR transform
// pipeline that runs between a request/response's source and target
// dialects, per §4.E.
package engine

import (
	"fmt"

	"github.com/toolbridge/toolbridge/internal/dialect"
)

// Registry maps a provider tag to the converter that speaks its wire
// dialect.
type Registry struct {
	converters map[string]dialect.Converter
}

func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]dialect.Converter)}
}

// Register adds a converter under its own provider tag.
func (r *Registry) Register(c dialect.Converter) {
	r.converters[c.ProviderTag()] = c
}

// Get retrieves a converter by provider tag.
func (r *Registry) Get(providerTag string) (dialect.Converter, bool) {
	c, ok := r.converters[providerTag]
	return c, ok
}

// MustGet is Get, panicking on an unregistered tag; only safe to call
// with tags validated upstream by internal/detect or request config.
func (r *Registry) MustGet(providerTag string) dialect.Converter {
	c, ok := r.converters[providerTag]
	if !ok {
		panic(fmt.Sprintf("engine: no converter registered for provider tag %q", providerTag))
	}
	return c
}

// List returns all registered provider tags.
func (r *Registry) List() []string {
	tags := make([]string, 0, len(r.converters))
	for tag := range r.converters {
		tags = append(tags, tag)
	}
	return tags
}

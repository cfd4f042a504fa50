package scraper

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Registry maps source names to their implementations.
type Registry struct {
	sources map[string]Source
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	name := s.Name()
	r.sources[name] = s
	r.order = append(r.order, name)
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("scraper: unknown source %q (registered: %s)",
			name, strings.Join(r.AllNames(), ", "))
	}
	return s, nil
}

// Select returns sources matching the given criteria. If names is non-empty,
// only those named sources are considered. If category is non-nil, only
// sources in that category are returned.
func (r *Registry) Select(category *Category, names []string) ([]Source, error) {
	if len(names) == 0 {
		if category != nil {
			return r.ByCategory(*category), nil
		}
		return r.All(), nil
	}

	var result []Source
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if category != nil && s.Category() != *category {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

// ByCategory returns all sources in the given category, in registration order.
func (r *Registry) ByCategory(cat Category) []Source {
	var result []Source
	for _, name := range r.order {
		if r.sources[name].Category() == cat {
			result = append(result, r.sources[name])
		}
	}
	return result
}

// All returns all sources in registration order.
func (r *Registry) All() []Source {
	result := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result
}

// AllNames returns all registered source names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

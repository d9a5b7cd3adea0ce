package grammar

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds loaded grammars keyed by DSL id. Registrations happen
// during process initialization; lookups are cheap reads after that.
type Registry struct {
	mu       sync.RWMutex
	grammars map[string]*Grammar
}

// NewRegistry creates an empty grammar registry.
func NewRegistry() *Registry {
	return &Registry{grammars: make(map[string]*Grammar)}
}

// Register adds a grammar to the registry. Registering a second grammar
// with the same DSL id fails.
func (r *Registry) Register(g *Grammar) error {
	if g == nil {
		return fmt.Errorf("register grammar: nil grammar")
	}
	id := g.ID()
	if id == "" {
		return fmt.Errorf("register grammar: empty dsl id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grammars[id]; ok {
		return fmt.Errorf("register grammar: dsl %q already registered", id)
	}
	r.grammars[id] = g
	return nil
}

// Lookup resolves a grammar by DSL id.
func (r *Registry) Lookup(id string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[id]
	return g, ok
}

// IDs returns the registered DSL ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.grammars))
	for id := range r.grammars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Grammars returns the registered grammars ordered by DSL id.
func (r *Registry) Grammars() []*Grammar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.grammars))
	for id := range r.grammars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Grammar, len(ids))
	for i, id := range ids {
		out[i] = r.grammars[id]
	}
	return out
}

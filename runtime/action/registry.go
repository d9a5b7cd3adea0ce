package action

import (
	"sort"
	"sync"
)

// Registry holds the registered action descriptors. Hosts register during
// initialization; lookups afterwards are read-only and safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	actions map[ID]*Descriptor
}

// NewRegistry returns an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[ID]*Descriptor)}
}

// Register validates the descriptor and adds it to the registry. It
// returns a DuplicateActionError when the id is already taken.
func (r *Registry) Register(d *Descriptor) error {
	nd, err := d.normalize()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[nd.ID]; ok {
		return &DuplicateActionError{ID: nd.ID}
	}
	r.actions[nd.ID] = nd
	return nil
}

// MustRegister registers the descriptor and panics on error. Intended for
// host initialization where a bad descriptor is a programming error.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor registered under id, or an
// UnknownActionError.
func (r *Registry) Lookup(id ID) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.actions[id]
	if !ok {
		return nil, &UnknownActionError{ID: id}
	}
	return d, nil
}

// Actions returns all registered descriptors sorted by id.
func (r *Registry) Actions() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Descriptor, 0, len(r.actions))
	for _, d := range r.actions {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

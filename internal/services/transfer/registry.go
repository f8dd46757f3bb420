package transfer

import "sync"

// Registry tracks the running transfers by job hash so pause and delete
// operations can reach their subprocesses
type Registry struct {
	mu     sync.Mutex
	active map[string]*Transfer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Transfer)}
}

// Add registers a running transfer
func (r *Registry) Add(hash string, t *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[hash] = t
}

// Remove forgets a finished transfer
func (r *Registry) Remove(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, hash)
}

// Get returns a running transfer
func (r *Registry) Get(hash string) (*Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[hash]
	return t, ok
}

// Stop kills a running transfer, reporting whether one was found
func (r *Registry) Stop(hash string) bool {
	r.mu.Lock()
	t, ok := r.active[hash]
	r.mu.Unlock()
	if ok {
		t.Stop()
	}
	return ok
}

// Count returns the number of registered transfers
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

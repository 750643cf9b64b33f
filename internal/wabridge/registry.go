package wabridge

import "sync"

// Registry is the in-memory index of live managers, keyed by session id.
type Registry struct {
	mu       sync.RWMutex
	managers map[int64]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[int64]*Manager)}
}

func (r *Registry) Get(id int64) *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[id]
}

func (r *Registry) Put(m *Manager) {
	r.mu.Lock()
	r.managers[m.SessionID()] = m
	r.mu.Unlock()
}

func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.managers, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// IDs returns a snapshot of registered session ids.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	return ids
}

// Range calls f on a snapshot of managers, outside the registry lock.
func (r *Registry) Range(f func(m *Manager)) {
	r.mu.RLock()
	snapshot := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		snapshot = append(snapshot, m)
	}
	r.mu.RUnlock()
	for _, m := range snapshot {
		f(m)
	}
}

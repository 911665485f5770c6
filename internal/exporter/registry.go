package exporter

import "sync"

// Registry hands out and looks up exporter State by Key. A Dispatcher
// worker owns the State objects it is handed, but State creation itself
// is shared and therefore guarded, since the UDP listener may shard
// packets to a worker based on a hash that a new exporter hasn't been
// assigned a slot in yet.
type Registry struct {
	mu      sync.Mutex
	states  map[Key]*State
	nextSys uint16
}

// NewRegistry returns an empty exporter Registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[Key]*State)}
}

// Get returns the existing State for key, or creates, stores, and returns
// a new one. The bool result reports whether the State already existed.
func (r *Registry) Get(key Key) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[key]; ok {
		return s, true
	}
	r.nextSys++
	s := NewState(key, r.nextSys)
	r.states[key] = s
	return s, false
}

// Remove drops an exporter's state entirely, used when an operator
// retires a known-dead exporter or a collector shard restarts clean.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// Len reports the number of exporters currently tracked, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Snapshot returns a copy of the tracked exporter keys, for the monitor UI
// to enumerate without holding the registry lock while rendering.
func (r *Registry) Snapshot() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.states))
	for k := range r.states {
		keys = append(keys, k)
	}
	return keys
}

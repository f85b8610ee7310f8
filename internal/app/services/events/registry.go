package events

import "sync"

// Registry tracks which nodes currently have an open raw-event feed so the
// collector never opens two feeds for the same node.
type Registry struct {
	mu     sync.RWMutex
	active map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

// Register marks a node feed as live. It returns false without side effects
// when the node already has a live feed; concurrent calls for the same node
// resolve to exactly one winner.
func (r *Registry) Register(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[nodeID]; exists {
		return false
	}
	r.active[nodeID] = struct{}{}
	return true
}

// Deregister removes a node feed. Removing an absent node is a no-op.
func (r *Registry) Deregister(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, nodeID)
}

// Active reports whether a node currently has a live feed.
func (r *Registry) Active(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[nodeID]
	return ok
}

// Count returns the number of live feeds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

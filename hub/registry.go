package hub

import (
	"sync"

	"github.com/floorlink/floorlink/errors"
)

// Registry owns the set of live connections. It is the single source of
// truth for liveness: a connection id absent from the registry must not
// appear anywhere else in the system (enforced by the hub's cascade
// removal).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Add registers a connection. Registering a duplicate id is an internal
// fault: ids are generated, never reused.
func (r *Registry) Add(conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID]; exists {
		return errors.WrapInternal(errors.ErrInvalidConfig, "Registry", "Add", "duplicate connection id "+conn.ID)
	}
	r.conns[conn.ID] = conn
	return nil
}

// remove deletes and returns the connection, or nil if absent. Removal is
// idempotent at this level; the hub layers cascade cleanup on top.
func (r *Registry) remove(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	return conn
}

// Get returns the connection for id, or nil if not registered
func (r *Registry) Get(id string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// List returns a snapshot of all registered connections
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// IDs returns a snapshot of all registered connection ids
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

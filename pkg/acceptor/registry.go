package acceptor

import "sync"

// Registry tracks the connections currently handled by the server.
// Counts returned by Add and Remove are taken under the same lock as the
// mutation, so they are exact at the time of the call.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Add registers a connection and returns the new size.
func (r *Registry) Add(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	return len(r.conns)
}

// Remove deregisters a connection and returns the new size.
// Safe to call on absent connections.
func (r *Registry) Remove(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID())
	return len(r.conns)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every registered connection without removing it.
// Handlers observe the close and deregister themselves.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		_ = c.Close()
	}
	return len(r.conns)
}

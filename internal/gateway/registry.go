package gateway

import "sync"

// Registry enforces the single-writer-per-session invariant (spec §4.5:
// "Rejects with 4409 on second connection to an already-connected
// session"). Grounded on rjsadow-sortie's SessionRegistry, simplified from
// "get or create a shared backend" to "claim exclusively or refuse".
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// TryClaim registers conn as the sole connection for sessionID. Returns
// false without modifying the registry if a connection is already
// claimed for that session.
func (r *Registry) TryClaim(sessionID string, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.conns[sessionID]; taken {
		return false
	}
	r.conns[sessionID] = conn
	return true
}

// Lookup returns the connection currently claimed for sessionID, if any.
func (r *Registry) Lookup(sessionID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[sessionID]
	return conn, ok
}

// Release removes conn's claim on sessionID, but only if conn is still the
// registered connection — guards against a stale goroutine releasing a
// slot a newer connection has since claimed.
func (r *Registry) Release(sessionID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[sessionID]; ok && current == conn {
		delete(r.conns, sessionID)
	}
}

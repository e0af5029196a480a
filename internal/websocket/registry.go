package websocket

import (
	"log/slog"
	"sync"
)

// SessionRegistry is the process-wide table mapping an authenticated user
// identifier to its single live connection. It is the only place that
// answers "which connection currently represents user U", and the sole
// cross-connection synchronization point in the server.
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[string]*Connection
	logger *slog.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]*Connection),
		logger: logger,
	}
}

// Bind associates userID with conn, superseding any prior binding. The
// superseded connection is not closed; it simply stops being the delivery
// target and cleans itself up when its own socket dies.
func (r *SessionRegistry) Bind(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byUser[userID]; ok && prior != conn {
		r.logger.Info("superseding live binding",
			"user_id", userID, "old_conn", prior.ID(), "new_conn", conn.ID())
	}

	conn.setUserID(userID)
	r.byUser[userID] = conn
}

// Unbind removes the entry whose value is exactly conn. When conn was
// already superseded by a newer binding for the same user, the newer entry
// is left untouched.
func (r *SessionRegistry) Unbind(conn *Connection) {
	userID := conn.UserID()
	if userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[userID] == conn {
		delete(r.byUser, userID)
	}
}

// Lookup returns the live connection bound to userID, if any.
func (r *SessionRegistry) Lookup(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byUser[userID]
	return conn, ok
}

// Count returns the number of bound users.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}

// CloseAll closes every bound connection and clears the registry.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byUser))
	for _, conn := range r.byUser {
		conns = append(conns, conn)
	}
	r.byUser = make(map[string]*Connection)
	r.mu.Unlock()

	// Close outside the lock: Close re-enters Unbind.
	for _, conn := range conns {
		_ = conn.Close()
	}
}

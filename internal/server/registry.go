// Package server tracks the session state of every live connection through
// the Registry type, the authoritative connection table of the gateway.
package server

import (
	"log/slog"
	"sync"
)

// SessionState is the per-connection record of identity and room membership.
// Both fields are empty until set: Identity is bound once by the credential
// gate, Room is set and cleared only through join/leave.
type SessionState struct {
	Identity string
	Room     string
}

// RoomMember is one row of a room-scoped registry snapshot.
type RoomMember struct {
	Client   *Client
	Identity string
	Room     string
}

// Registry maps live connections to their session state. It owns the table
// exclusively; all access goes through its methods, which are safe for
// concurrent use. Lookups on unregistered connections report absence
// explicitly rather than returning a zero state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Client]*SessionState
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Client]*SessionState),
	}
}

// Register inserts a fresh session state for the connection. Registering the
// same connection twice overwrites its state; callers must not double-register.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[c] = &SessionState{}
}

// Unregister removes the connection's session state. Removing an unknown
// connection is a no-op, logged so that double-cleanup is visible.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	_, known := r.sessions[c]
	delete(r.sessions, c)
	r.mu.Unlock()

	if !known {
		slog.Debug("unregister of unknown connection ignored", "addr", c.addr)
	}
}

// Get returns a copy of the connection's session state, and whether the
// connection is registered at all.
func (r *Registry) Get(c *Client) (SessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[c]
	if !ok {
		return SessionState{}, false
	}
	return *state, true
}

// SetIdentity binds an identity to the connection. No-op if the connection
// is not registered.
func (r *Registry) SetIdentity(c *Client, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.sessions[c]; ok {
		state.Identity = identity
	}
}

// SetRoom records the connection's current room; an empty room clears it.
// No-op if the connection is not registered.
func (r *Registry) SetRoom(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.sessions[c]; ok {
		state.Room = room
	}
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.sessions))
	for c := range r.sessions {
		clients = append(clients, c)
	}
	return clients
}

// ConnectionsFor returns every registered connection bound to the identity.
func (r *Registry) ConnectionsFor(identity string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for c, state := range r.sessions {
		if state.Identity == identity {
			clients = append(clients, c)
		}
	}
	return clients
}

// Authenticated returns every connection with a bound identity.
func (r *Registry) Authenticated() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for c, state := range r.sessions {
		if state.Identity != "" {
			clients = append(clients, c)
		}
	}
	return clients
}

// InRoom returns a snapshot of the connections currently in the room along
// with their session state. The scan is linear over the whole table, which
// is fine for the connection counts this gateway serves.
func (r *Registry) InRoom(room string) []RoomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []RoomMember
	for c, state := range r.sessions {
		if state.Room == room && room != "" {
			members = append(members, RoomMember{Client: c, Identity: state.Identity, Room: state.Room})
		}
	}
	return members
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

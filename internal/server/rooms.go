// Package server manages room membership through the RoomDirectory type.
// Rooms are created lazily on first join and pruned the moment their member
// set becomes empty; no empty room entry ever persists.
package server

import "sync"

// RoomDirectory tracks which connections (and through them, identities)
// occupy which rooms. It keeps the registry's per-session room field in
// lockstep with its own member sets: every mutation updates both under the
// directory lock, with the registry lock always acquired second.
type RoomDirectory struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]string
	registry *Registry

	// onDepart, when set, is invoked with the room still intact so the
	// router can broadcast a departure notice to the remaining members.
	onDepart func(room, identity string, leaving *Client)
}

// NewRoomDirectory creates an empty directory backed by the given registry.
func NewRoomDirectory(registry *Registry) *RoomDirectory {
	return &RoomDirectory{
		rooms:    make(map[string]map[*Client]string),
		registry: registry,
	}
}

// Join adds the connection's identity to the room and records the room on
// its session state. A connection already in a different room leaves it as
// part of the same operation; no connection is ever a member of two rooms.
func (d *RoomDirectory) Join(c *Client, identity, room string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(c)

	members, ok := d.rooms[room]
	if !ok {
		members = make(map[*Client]string)
		d.rooms[room] = members
	}
	members[c] = identity

	d.registry.SetRoom(c, room)
}

// Leave removes the connection from its current room, if any, and clears the
// session's room field. With notifyRoom set, the remaining members receive a
// departure notice before the removal completes.
func (d *RoomDirectory) Leave(c *Client, identity string, notifyRoom bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.roomOfLocked(c)
	if room == "" {
		return
	}

	if notifyRoom && d.onDepart != nil {
		d.onDepart(room, identity, c)
	}

	d.removeLocked(c)
}

// CleanupForIdentity removes every connection bound to the identity from
// whatever rooms they occupy. Called on disconnect; it covers the case of an
// identity holding several connections.
func (d *RoomDirectory) CleanupForIdentity(identity string) {
	if identity == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for room, members := range d.rooms {
		for c, member := range members {
			if member != identity {
				continue
			}
			delete(members, c)
			d.registry.SetRoom(c, "")
		}
		if len(members) == 0 {
			delete(d.rooms, room)
		}
	}
}

// Remove drops a single connection from its room without touching the other
// connections of its identity. Used when an unauthenticated or room-less
// connection goes away.
func (d *RoomDirectory) Remove(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(c)
}

// MembersOf returns the distinct identities currently in the room. A
// never-joined or fully vacated room yields an empty slice.
func (d *RoomDirectory) MembersOf(room string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members, ok := d.rooms[room]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{}, len(members))
	identities := make([]string, 0, len(members))
	for _, identity := range members {
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		identities = append(identities, identity)
	}
	return identities
}

// RoomOf returns the room the connection is currently in, or "".
func (d *RoomDirectory) RoomOf(c *Client) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roomOfLocked(c)
}

func (d *RoomDirectory) roomOfLocked(c *Client) string {
	for room, members := range d.rooms {
		if _, ok := members[c]; ok {
			return room
		}
	}
	return ""
}

// removeLocked drops the connection from whichever room holds it, prunes the
// room if it became empty, and clears the session's room field.
func (d *RoomDirectory) removeLocked(c *Client) {
	for room, members := range d.rooms {
		if _, ok := members[c]; !ok {
			continue
		}
		delete(members, c)
		if len(members) == 0 {
			delete(d.rooms, room)
		}
		d.registry.SetRoom(c, "")
		return
	}
}

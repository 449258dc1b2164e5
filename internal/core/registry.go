package core

import "sort"

// Registry tracks which user identities are currently connected to which
// room. It is owned by the Hub goroutine and is not safe for concurrent use.
type Registry struct {
	rooms map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// Ensure creates an empty membership set for room if none exists.
func (r *Registry) Ensure(room string) {
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]struct{})
	}
}

// Add inserts user into room. Re-adding is a no-op.
func (r *Registry) Add(room, user string) {
	r.Ensure(room)
	r.rooms[room][user] = struct{}{}
}

// Remove deletes user from room and drops the room entry once it is empty.
// Returns true if the user was a member.
func (r *Registry) Remove(room, user string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, present := members[user]
	delete(members, user)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	return present
}

// CountOf returns the number of users in room, or 0 if it has no entry.
func (r *Registry) CountOf(room string) int {
	return len(r.rooms[room])
}

// Has reports whether room has an entry.
func (r *Registry) Has(room string) bool {
	_, ok := r.rooms[room]
	return ok
}

// Contains reports whether user is a member of room.
func (r *Registry) Contains(room, user string) bool {
	_, ok := r.rooms[room][user]
	return ok
}

// Members returns the sorted identities in room.
func (r *Registry) Members(room string) []string {
	members := make([]string, 0, len(r.rooms[room]))
	for user := range r.rooms[room] {
		members = append(members, user)
	}
	sort.Strings(members)
	return members
}

// Snapshot returns a copy of the per-room occupant counts.
func (r *Registry) Snapshot() map[string]int {
	out := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		out[room] = len(members)
	}
	return out
}

package core

import "github.com/vovakirdan/roomchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage EventKind = iota
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventRoomUsersUpdate carries the room's current occupant count.
	EventRoomUsersUpdate
	// EventHistory delivers message history to a client upon joining a room.
	EventHistory
)

func (k EventKind) String() string {
	switch k {
	case EventRoomMessage:
		return "message"
	case EventUserJoined:
		return "userJoined"
	case EventUserLeft:
		return "userLeft"
	case EventRoomUsersUpdate:
		return "roomUsersUpdate"
	case EventHistory:
		return "messages"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Count    int
	Message  store.Message
	Messages []store.Message // For EventHistory
}

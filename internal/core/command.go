package core

import "github.com/vovakirdan/roomchat-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage CommandKind = iota
	// CommandJoinRoom subscribes the client to a room, leaving any previous one.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from its current room.
	CommandLeaveRoom
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendRoomMessage:
		return "message"
	case CommandJoinRoom:
		return "joinRoom"
	case CommandLeaveRoom:
		return "leaveRoom"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Room    string
	Message store.Message
}

package core

import "errors"

var (
	// ErrUnauthenticated is returned by Connect when the token is rejected.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrHubClosed is returned once the Hub has stopped running.
	ErrHubClosed = errors.New("hub closed")
	// ErrClientClosed is returned when enqueueing to a finished session.
	ErrClientClosed = errors.New("client closed")
	// ErrNotInRoom marks messages addressed to a room the client has not joined.
	ErrNotInRoom = errors.New("not in room")
	// ErrInvalidMessage marks messages with an unknown kind.
	ErrInvalidMessage = errors.New("invalid message")
)

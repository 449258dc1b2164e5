package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user, room or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key (email, room id) is already taken.
	ErrConflict = errors.New("already exists")
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// MessageKind is the payload type of a chat message.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindAudio MessageKind = "audio"
)

// Valid reports whether k is one of the supported kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindAudio:
		return true
	default:
		return false
	}
}

// Message is an immutable entry in a room's history.
type Message struct {
	ID        string
	Kind      MessageKind
	Text      string
	Data      string // base64 or data URL for image/audio payloads
	Sender    string
	Timestamp time.Time
}

// Room represents a password-protected chat room with its message history.
type Room struct {
	RoomID       string
	PasswordHash string
	CreatedAt    time.Time
	LastActive   time.Time
	Messages     []Message // insertion order
}

// Location is a coarse IP-derived geographic position.
type Location struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ActivityAction distinguishes join and exit records.
type ActivityAction string

const (
	ActivityJoin ActivityAction = "join"
	ActivityExit ActivityAction = "exit"
)

// Activity is an append-only log entry for a room join or exit.
type Activity struct {
	ID        string
	UserEmail string
	IPAddress string
	Location  Location
	RoomID    string
	JoinTime  time.Time
	ExitTime  *time.Time // set only for exit records
	Action    ActivityAction
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room. Returns ErrConflict if the id is taken.
	CreateRoom(ctx context.Context, roomID, passwordHash string) (*Room, error)

	// FindRoom retrieves a room together with its full message history.
	FindRoom(ctx context.Context, roomID string) (*Room, error)

	// ListRooms lists every room with its message history.
	ListRooms(ctx context.Context) ([]*Room, error)

	// TouchRoomActivity sets the room's lastActive timestamp.
	TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error

	// ClearMessages drops the room's message history.
	ClearMessages(ctx context.Context, roomID string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage adds a message at the end of the room's history.
	// Returns ErrNotFound if the room does not exist.
	AppendMessage(ctx context.Context, roomID string, msg *Message) error
}

// ActivityStore handles the join/exit activity log.
type ActivityStore interface {
	// AppendActivity appends a record to the log.
	AppendActivity(ctx context.Context, rec *Activity) error

	// ListActivity returns all records, newest join time first.
	ListActivity(ctx context.Context) ([]*Activity, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	ActivityStore

	// Migrate brings the underlying schema or indexes up to date.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}

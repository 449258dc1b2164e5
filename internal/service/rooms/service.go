package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/store"
)

// Common errors for room operations.
var (
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrInvalidPassword = errors.New("invalid password")
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrWrongPassword   = errors.New("wrong room password")
)

const maxRoomIDLength = 64

// Service provides room management business logic.
type Service struct {
	store store.RoomStore
}

// New creates a new room service.
func New(st store.RoomStore) *Service {
	return &Service{store: st}
}

func normalizeRoomID(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || len(roomID) > maxRoomIDLength {
		return "", ErrInvalidRoomID
	}
	return roomID, nil
}

// Create registers a new password-protected room.
func (s *Service) Create(ctx context.Context, roomID, password string) (*store.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	room, err := s.store.CreateRoom(ctx, roomID, hash)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// Join checks the room password. The real-time join happens over the
// WebSocket once this succeeds.
func (s *Service) Join(ctx context.Context, roomID, password string) (*store.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}

	if !auth.CheckPassword(room.PasswordHash, password) {
		return nil, ErrWrongPassword
	}
	return room, nil
}

// ClearMessages drops the history of a room.
func (s *Service) ClearMessages(ctx context.Context, roomID string) error {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return err
	}

	if err := s.store.ClearMessages(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

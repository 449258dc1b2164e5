// Package admin serves the password-gated admin views over rooms and the
// activity log.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// ErrForbidden is returned when the admin password does not match.
var ErrForbidden = errors.New("forbidden")

// Occupancy reports the number of users currently online per room.
type Occupancy interface {
	Occupancy() map[string]int
}

// RoomView is a room with its live occupant count.
type RoomView struct {
	Room   *store.Room
	Online int
}

// Service implements the admin queries.
type Service struct {
	password  string
	rooms     store.RoomStore
	activity  store.ActivityStore
	occupancy Occupancy
}

// New creates an admin service. An empty password disables every query.
func New(password string, rooms store.RoomStore, activity store.ActivityStore, occupancy Occupancy) *Service {
	return &Service{
		password:  password,
		rooms:     rooms,
		activity:  activity,
		occupancy: occupancy,
	}
}

func (s *Service) authorize(password string) error {
	if s.password == "" {
		return ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
		return ErrForbidden
	}
	return nil
}

// Rooms lists every room with its history and online count.
func (s *Service) Rooms(ctx context.Context, password string) ([]RoomView, error) {
	if err := s.authorize(password); err != nil {
		return nil, err
	}

	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	var online map[string]int
	if s.occupancy != nil {
		online = s.occupancy.Occupancy()
	}

	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, RoomView{Room: room, Online: online[room.RoomID]})
	}
	return views, nil
}

// Activity lists the activity log, newest join time first.
func (s *Service) Activity(ctx context.Context, password string) ([]*store.Activity, error) {
	if err := s.authorize(password); err != nil {
		return nil, err
	}

	records, err := s.activity.ListActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return records, nil
}

package core

import (
	"context"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// Store is the persistence surface the Hub needs.
type Store interface {
	FindRoom(ctx context.Context, roomID string) (*store.Room, error)
	AppendMessage(ctx context.Context, roomID string, msg *store.Message) error
	TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error
	AppendActivity(ctx context.Context, rec *store.Activity) error
}

// TokenVerifier resolves a session token to a user identity.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// LocationResolver maps an address to a coarse location. It never fails;
// implementations return a placeholder instead.
type LocationResolver interface {
	Resolve(ctx context.Context, addr string) store.Location
}

// ActivitySink receives a copy of every activity record after it is stored.
type ActivitySink interface {
	PublishActivity(ctx context.Context, rec store.Activity) error
}

// Observer is notified of every completed coordinator operation.
type Observer interface {
	ObserveOutcome(Outcome)
}

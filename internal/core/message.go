package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// prepareMessage turns a client payload into the persisted form. Text and
// data are kept verbatim; the sender is always the authenticated identity
// and a missing timestamp means now.
func prepareMessage(in store.Message, sender string, now time.Time) (store.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = store.MessageKindText
	}
	if !kind.Valid() {
		return store.Message{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, in.Kind)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return store.Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      in.Text,
		Data:      in.Data,
		Sender:    sender,
		Timestamp: ts.UTC(),
	}, nil
}

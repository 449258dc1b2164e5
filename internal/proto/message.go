// Package proto defines the JSON envelopes of the real-time protocol.
package proto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin  = "joinRoom"
	InboundTypeLeave = "leaveRoom"
	InboundTypeMsg   = "message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventRoomUsersUpdate = "roomUsersUpdate"
	EventMessages        = "messages"
	EventMessage         = "message"

	ErrCodeBadRequest  = "bad_request"
	ErrCodeRateLimited = "rate_limited"
)

// JoinData requests to join a room. It accepts either a bare room id string
// or an object {"roomId": "..."}.
type JoinData struct {
	RoomID string `json:"roomId"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *JoinData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.RoomID)
	}
	type plain JoinData
	return json.Unmarshal(b, (*plain)(d))
}

// MsgData is a chat message from the client. Sender is accepted for
// compatibility but ignored by the server.
type MsgData struct {
	RoomID    string    `json:"roomId"`
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	Data      string    `json:"data,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

// ToMessage converts the payload to the store model.
func (m MsgData) ToMessage() store.Message {
	return store.Message{
		Kind:      store.MessageKind(m.Type),
		Text:      m.Text,
		Data:      m.Data,
		Sender:    m.Sender,
		Timestamp: m.Timestamp.Time,
	}
}

// Timestamp decodes RFC3339 strings or epoch milliseconds. Anything else
// decodes to the zero time, which the server replaces with its own clock.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = ts
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			t.Time = time.UnixMilli(ms)
		}
		return nil
	}

	if ms, err := strconv.ParseFloat(string(b), 64); err == nil && ms > 0 {
		t.Time = time.UnixMilli(int64(ms))
	}
	return nil
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RoomUsersUpdate carries the occupant count of a room.
type RoomUsersUpdate struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// Message is a chat message as sent to clients.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId,omitempty"`
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	Data      string    `json:"data,omitempty"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage converts a stored message for the wire.
func NewMessage(roomID string, m store.Message) Message {
	return Message{
		ID:        m.ID,
		RoomID:    roomID,
		Type:      string(m.Kind),
		Text:      m.Text,
		Data:      m.Data,
		Sender:    m.Sender,
		Timestamp: m.Timestamp.UTC(),
	}
}

// NewMessages converts a room history; it never returns nil so clients
// always receive an array.
func NewMessages(roomID string, msgs []store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessage(roomID, m))
	}
	return out
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

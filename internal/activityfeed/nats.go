// Package activityfeed mirrors room activity records to NATS so other
// services can follow joins and exits without reading the store.
package activityfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "roomchat.activity"

// Record is the JSON payload published for each activity entry.
type Record struct {
	UserEmail string         `json:"userEmail"`
	IPAddress string         `json:"ipAddress"`
	Location  store.Location `json:"location"`
	RoomID    string         `json:"roomId"`
	JoinTime  time.Time      `json:"joinTime"`
	ExitTime  *time.Time     `json:"exitTime,omitempty"`
	Action    string         `json:"action"`
}

// NewRecord converts a stored activity entry to its wire form.
func NewRecord(rec store.Activity) Record {
	return Record{
		UserEmail: rec.UserEmail,
		IPAddress: rec.IPAddress,
		Location:  rec.Location,
		RoomID:    rec.RoomID,
		JoinTime:  rec.JoinTime.UTC(),
		ExitTime:  rec.ExitTime,
		Action:    string(rec.Action),
	}
}

// Subject returns the subject an action is published on.
func Subject(prefix string, action store.ActivityAction) string {
	return prefix + "." + string(action)
}

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes activity records on "<prefix>.join" and
// "<prefix>.exit".
type NATSPublisher struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server at url.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("roomchat-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(nc, prefix)
	p.conn = nc
	return p, nil
}

// NewPublisher wraps an existing publisher.
func NewPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: prefix}
}

// PublishActivity publishes rec. Delivery is fire-and-forget.
func (p *NATSPublisher) PublishActivity(_ context.Context, rec store.Activity) error {
	data, err := json.Marshal(NewRecord(rec))
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	if err := p.pub.Publish(Subject(p.prefix, rec.Action), data); err != nil {
		return fmt.Errorf("publish activity: %w", err)
	}
	return nil
}

// Close drains the connection if this publisher opened it.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

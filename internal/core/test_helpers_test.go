package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// tokens maps a token to the identity it authenticates.
type tokens map[string]string

func (f tokens) VerifyToken(token string) (string, error) {
	if user, ok := f[token]; ok {
		return user, nil
	}
	return "", errors.New("bad token")
}

type fixedLocator struct{ loc store.Location }

func (f fixedLocator) Resolve(context.Context, string) store.Location { return f.loc }

var testLocation = store.Location{City: "Lisbon", Country: "Portugal", Latitude: 38.7, Longitude: -9.1}

// memStore is an in-memory Store with per-step failure injection.
type memStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room
	activity []store.Activity
	touches  int

	failAppend   error
	failActivity error
	failTouch    error
}

func newMemStore(rooms ...string) *memStore {
	s := &memStore{rooms: make(map[string]*store.Room)}
	for _, id := range rooms {
		s.rooms[id] = &store.Room{RoomID: id, CreatedAt: time.Now()}
	}
	return s
}

func (s *memStore) FindRoom(_ context.Context, roomID string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *room
	cp.Messages = append([]store.Message(nil), room.Messages...)
	return &cp, nil
}

func (s *memStore) AppendMessage(_ context.Context, roomID string, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.Messages = append(room.Messages, *msg)
	return nil
}

func (s *memStore) TouchRoomActivity(_ context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch != nil {
		return s.failTouch
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.LastActive = at
	s.touches++
	return nil
}

func (s *memStore) AppendActivity(_ context.Context, rec *store.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failActivity != nil {
		return s.failActivity
	}
	s.activity = append(s.activity, *rec)
	return nil
}

func (s *memStore) history(roomID string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return append([]store.Message(nil), room.Messages...)
	}
	return nil
}

func (s *memStore) activities() []store.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Activity(nil), s.activity...)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *outcomeRecorder) ObserveOutcome(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) byOp(op Op) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Outcome
	for _, o := range r.outcomes {
		if o.Op == op {
			out = append(out, o)
		}
	}
	return out
}

type sinkRecorder struct {
	mu      sync.Mutex
	records []store.Activity
}

func (s *sinkRecorder) PublishActivity(_ context.Context, rec store.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var testTokens = tokens{"tok-a": "a@x.com", "tok-b": "b@y.com", "tok-c": "c@z.com"}

// startHub runs a hub over st until the test ends.
func startHub(t *testing.T, st Store, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, testTokens, fixedLocator{loc: testLocation}, opts...)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()
		if err := hub.Wait(waitCtx); err != nil {
			t.Errorf("sessions did not finish: %v", err)
		}
	})
	return hub
}

func mustConnect(t *testing.T, hub *Hub, token string) *Client {
	t.Helper()

	c, err := hub.Connect(token, "8.8.8.8")
	if err != nil {
		t.Fatalf("connect %s: %v", token, err)
	}
	return c
}

// joinRoom joins c to room and waits for the count update of that room,
// skipping anything still queued from earlier rooms.
func joinRoom(t *testing.T, c *Client, room string) {
	t.Helper()

	if err := c.Enqueue(context.Background(), &Command{Kind: CommandJoinRoom, Room: room}); err != nil {
		t.Fatalf("enqueue join: %v", err)
	}
	for {
		if ev := mustEvent(t, c.Events, EventRoomUsersUpdate); ev.Room == room {
			return
		}
	}
}

func send(t *testing.T, c *Client, room, text string) {
	t.Helper()

	cmd := &Command{
		Kind:    CommandSendRoomMessage,
		Room:    room,
		Message: store.Message{Kind: store.MessageKindText, Text: text},
	}
	if err := c.Enqueue(context.Background(), cmd); err != nil {
		t.Fatalf("enqueue message: %v", err)
	}
}

func disconnect(t *testing.T, hub *Hub, c *Client) {
	t.Helper()

	hub.Disconnect(c)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session of %s did not finish", c.User)
	}
}

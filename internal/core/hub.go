package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

const defaultClientBuffer = 64

// Hub coordinates presence and messaging. A single goroutine (Run) owns the
// Registry and the broadcast groups; each connection runs a session
// goroutine that executes its commands in order and performs the external
// calls, submitting in-memory mutations to the Hub goroutine.
//
// External calls are not tied to the connection: a disconnect never cancels
// a store write that is already in flight.
//
// A connection is in at most one room at a time; joining another room leaves
// the current one first. The rule holds per connection, not per identity: the
// same user on two connections may be present in two rooms at once.
type Hub struct {
	store    Store
	verifier TokenVerifier
	locator  LocationResolver
	sink     ActivitySink
	observer Observer
	log      *zerolog.Logger
	now      func() time.Time
	buffer   int

	ops  chan func()
	done chan struct{}

	// owned by the Run goroutine
	registry *Registry
	rooms    map[string]*Room

	sessions conc.WaitGroup
}

// Option customizes a Hub.
type Option func(*Hub)

// WithLogger sets the Hub logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithObserver registers an observer for operation outcomes.
func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observer = o }
}

// WithActivitySink mirrors activity records to an external feed.
func WithActivitySink(s ActivitySink) Option {
	return func(h *Hub) { h.sink = s }
}

// WithClientBuffer sets the per-connection command and event queue depth.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a new chat hub instance.
func NewHub(st Store, verifier TokenVerifier, locator LocationResolver, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		store:    st,
		verifier: verifier,
		locator:  locator,
		log:      &nop,
		now:      time.Now,
		buffer:   defaultClientBuffer,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		registry: NewRegistry(),
		rooms:    make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes Hub mutations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("hub started")
	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			close(h.done)
			h.log.Info().Msg("hub stopped")
			return
		}
	}
}

// exec runs fn on the Hub goroutine and waits for it. It returns false if
// the Hub has stopped.
func (h *Hub) exec(fn func()) bool {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(finished) }:
	case <-h.done:
		return false
	}
	<-finished
	return true
}

// Connect authenticates a new connection and starts its session. On failure
// nothing is registered and no event is ever produced.
func (h *Hub) Connect(token, addr string) (*Client, error) {
	select {
	case <-h.done:
		return nil, ErrHubClosed
	default:
	}

	user, err := h.verifier.VerifyToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	c := newClient(uuid.NewString(), user, addr, h.buffer)
	h.sessions.Go(func() { h.session(c) })

	h.log.Debug().Str("client_id", c.ID).Str("user", user).Str("addr", addr).Msg("client connected")
	return c, nil
}

// Disconnect ends the client's session once its queued commands are handled.
// The transport must not enqueue after calling it.
func (h *Hub) Disconnect(c *Client) {
	c.closeCommands()
}

// Wait blocks until every session has finished or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CountOf returns the number of distinct users currently in room.
func (h *Hub) CountOf(room string) int {
	var n int
	h.exec(func() { n = h.registry.CountOf(room) })
	return n
}

// Members returns the identities currently in room.
func (h *Hub) Members(room string) []string {
	var members []string
	h.exec(func() { members = h.registry.Members(room) })
	return members
}

// Occupancy returns the occupant count of every non-empty room.
func (h *Hub) Occupancy() map[string]int {
	out := map[string]int{}
	h.exec(func() { out = h.registry.Snapshot() })
	return out
}

func (h *Hub) session(c *Client) {
	defer h.finish(c)

	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			h.handle(c, cmd)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if cmd == nil {
		return
	}
	switch cmd.Kind {
	case CommandJoinRoom:
		h.join(c, cmd.Room)
	case CommandSendRoomMessage:
		h.message(c, cmd.Room, cmd.Message)
	case CommandLeaveRoom:
		h.leave(c)
	default:
		h.log.Warn().Str("client_id", c.ID).Int("kind", int(cmd.Kind)).Msg("unknown command")
	}
}

// finish leaves the current room and closes the event stream.
func (h *Hub) finish(c *Client) {
	h.leave(c)

	if !h.exec(func() { close(c.Events) }) {
		// Run has returned, so no goroutine can still write to Events.
		close(c.Events)
	}
	close(c.finished)

	h.log.Debug().Str("client_id", c.ID).Str("user", c.User).Msg("client disconnected")
}

func hubErr(ok bool) error {
	if ok {
		return nil
	}
	return ErrHubClosed
}

func (h *Hub) join(c *Client, roomID string) {
	if roomID == "" {
		h.log.Warn().Str("client_id", c.ID).Msg("join without room id ignored")
		return
	}
	ctx := context.Background()

	if c.room == roomID {
		// Already a member: only resend history.
		out := Outcome{Op: OpJoin, Room: roomID, User: c.User, ClientID: c.ID}
		h.sendHistory(ctx, c, roomID, &out)
		h.report(out)
		return
	}
	if c.room != "" {
		h.leave(c)
	}

	out := Outcome{Op: OpJoin, Room: roomID, User: c.User, ClientID: c.ID}

	ok := h.exec(func() {
		group, exists := h.rooms[roomID]
		if !exists {
			group = NewRoom(roomID)
			h.rooms[roomID] = group
		}
		group.AddClient(c)
		h.registry.Ensure(roomID)
		h.registry.Add(roomID, c.User)
	})
	out.record(StepRegistry, hubErr(ok))
	c.room = roomID

	now := h.now()
	h.logActivity(ctx, &out, store.Activity{
		UserEmail: c.User,
		IPAddress: c.Addr,
		Location:  h.locator.Resolve(ctx, c.Addr),
		RoomID:    roomID,
		JoinTime:  now,
		Action:    store.ActivityJoin,
	})
	out.record(StepTouch, h.store.TouchRoomActivity(ctx, roomID, now))

	ok = h.exec(func() {
		out.Dropped += h.broadcastPresence(roomID, EventUserJoined, c.User)
	})
	out.record(StepBroadcast, hubErr(ok))

	h.sendHistory(ctx, c, roomID, &out)
	h.report(out)
}

func (h *Hub) sendHistory(ctx context.Context, c *Client, roomID string, out *Outcome) {
	room, err := h.store.FindRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		// Unknown rooms have no history to send.
		return
	}
	if err != nil {
		out.record(StepHistory, err)
		return
	}

	ev := &Event{Kind: EventHistory, Room: roomID, Messages: room.Messages}
	var delivered bool
	ok := h.exec(func() { delivered = c.deliver(ev) })
	if ok && !delivered {
		out.Dropped++
	}
	out.record(StepHistory, hubErr(ok))
}

func (h *Hub) message(c *Client, roomID string, in store.Message) {
	if roomID == "" || roomID != c.room {
		h.log.Warn().
			Err(ErrNotInRoom).
			Str("client_id", c.ID).
			Str("user", c.User).
			Str("room", roomID).
			Msg("message dropped")
		return
	}

	now := h.now()
	msg, err := prepareMessage(in, c.User, now)
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", c.ID).Str("room", roomID).Msg("message dropped")
		return
	}

	ctx := context.Background()
	out := Outcome{Op: OpMessage, Room: roomID, User: c.User, ClientID: c.ID}
	out.record(StepPersist, h.store.AppendMessage(ctx, roomID, &msg))
	out.record(StepTouch, h.store.TouchRoomActivity(ctx, roomID, now))

	ev := &Event{Kind: EventRoomMessage, Room: roomID, User: c.User, Message: msg}
	ok := h.exec(func() {
		if group, exists := h.rooms[roomID]; exists {
			out.Dropped += group.Broadcast(ev).Dropped
		}
	})
	out.record(StepBroadcast, hubErr(ok))
	h.report(out)
}

// leave removes the client from its current room. It is a no-op when the
// client never joined one.
func (h *Hub) leave(c *Client) {
	roomID := c.room
	if roomID == "" {
		return
	}
	c.room = ""
	ctx := context.Background()

	out := Outcome{Op: OpLeave, Room: roomID, User: c.User, ClientID: c.ID}

	ok := h.exec(func() {
		group, exists := h.rooms[roomID]
		if !exists {
			return
		}
		group.RemoveClient(c)
		// Another connection of the same user keeps the identity present.
		if !group.HasUser(c.User) {
			h.registry.Remove(roomID, c.User)
		}
		if group.Empty() {
			delete(h.rooms, roomID)
		}
	})
	out.record(StepRegistry, hubErr(ok))

	now := h.now()
	exit := now
	h.logActivity(ctx, &out, store.Activity{
		UserEmail: c.User,
		IPAddress: c.Addr,
		Location:  h.locator.Resolve(ctx, c.Addr),
		RoomID:    roomID,
		JoinTime:  now,
		ExitTime:  &exit,
		Action:    store.ActivityExit,
	})
	out.record(StepTouch, h.store.TouchRoomActivity(ctx, roomID, now))

	ok = h.exec(func() {
		out.Dropped += h.broadcastPresence(roomID, EventUserLeft, c.User)
	})
	out.record(StepBroadcast, hubErr(ok))
	h.report(out)
}

func (h *Hub) logActivity(ctx context.Context, out *Outcome, rec store.Activity) {
	out.record(StepActivity, h.store.AppendActivity(ctx, &rec))
	if h.sink != nil {
		out.record(StepFeed, h.sink.PublishActivity(ctx, rec))
	}
}

// broadcastPresence sends a presence event followed by the occupant count.
// Must run on the Hub goroutine. Returns the number of dropped deliveries.
func (h *Hub) broadcastPresence(roomID string, kind EventKind, user string) int {
	group, exists := h.rooms[roomID]
	if !exists {
		return 0
	}
	dropped := group.Broadcast(&Event{Kind: kind, Room: roomID, User: user}).Dropped
	dropped += group.Broadcast(&Event{
		Kind:  EventRoomUsersUpdate,
		Room:  roomID,
		Count: h.registry.CountOf(roomID),
	}).Dropped
	return dropped
}

func (h *Hub) report(out Outcome) {
	for _, s := range out.Steps {
		if s.Err == nil {
			continue
		}
		h.log.Warn().
			Err(s.Err).
			Str("op", string(out.Op)).
			Str("step", string(s.Step)).
			Str("room", out.Room).
			Str("user", out.User).
			Str("client_id", out.ClientID).
			Msg("step failed")
	}
	if out.Dropped > 0 {
		h.log.Warn().Str("op", string(out.Op)).Str("room", out.Room).Int("dropped", out.Dropped).Msg("slow consumers evicted")
	}
	if h.observer != nil {
		h.observer.ObserveOutcome(out)
	}
}

package core

import (
	"context"
	"sync"
)

// Client is one authenticated real-time connection as seen by the core layer.
// The transport feeds Commands and drains Events; the Hub closes Events once
// the session has fully left its room.
type Client struct {
	ID       string
	User     string
	Addr     string
	Commands chan *Command
	Events   chan *Event

	// room is the joined room; touched only by the session goroutine.
	room string

	closeOnce sync.Once
	finished  chan struct{}

	slowOnce sync.Once
	slow     chan struct{}
}

func newClient(id, user, addr string, buffer int) *Client {
	return &Client{
		ID:       id,
		User:     user,
		Addr:     addr,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		finished: make(chan struct{}),
		slow:     make(chan struct{}),
	}
}

// Enqueue hands a command to the client's session. It fails if the session
// has ended or ctx is done.
func (c *Client) Enqueue(ctx context.Context, cmd *Command) error {
	select {
	case <-c.finished:
		return ErrClientClosed
	default:
	}

	select {
	case c.Commands <- cmd:
		return nil
	case <-c.finished:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after the session has left its room and Events is closed.
func (c *Client) Done() <-chan struct{} {
	return c.finished
}

func (c *Client) closeCommands() {
	c.closeOnce.Do(func() { close(c.Commands) })
}

// Evicted is closed once an event could not be queued because Events was
// full. The transport must then drop the connection; the client reconnects
// and receives the history again on join.
func (c *Client) Evicted() <-chan struct{} {
	return c.slow
}

func (c *Client) evict() {
	c.slowOnce.Do(func() { close(c.slow) })
}

// deliver performs a non-blocking send; it must run on the Hub goroutine.
// A full queue evicts the client.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.slow:
		return false
	default:
	}

	select {
	case c.Events <- ev:
		return true
	default:
		c.evict()
		return false
	}
}

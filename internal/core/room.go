package core

// Room is the broadcast group of connections subscribed to a room id.
// Only the Hub goroutine touches it.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// PublishResult reports how a broadcast fanned out.
type PublishResult struct {
	Delivered int
	Dropped   int
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// HasUser reports whether any connection in the room belongs to user.
func (r *Room) HasUser(user string) bool {
	for c := range r.clients {
		if c.User == user {
			return true
		}
	}
	return false
}

// Broadcast sends an event to all clients in the room.
func (r *Room) Broadcast(event *Event) PublishResult {
	var res PublishResult
	for client := range r.clients {
		if client.deliver(event) {
			res.Delivered++
		} else {
			// Slow consumer; deliver has evicted it.
			res.Dropped++
		}
	}
	return res
}

// Len returns the number of connections in the room.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

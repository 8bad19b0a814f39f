package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Frame is what a socket receives.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one connected socket as the hub sees it.
type Client struct {
	UserID string

	send  chan []byte
	rooms map[string]struct{} // guarded by Hub.mu
}

// Send exposes the outbound queue to the connection writer.
func (c *Client) Send() <-chan []byte { return c.send }

// Hub is the process-local registry of sockets and their rooms.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	buffer  int
	logger  *slog.Logger

	dropped atomic.Int64
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Register adds a client and joins it to its own user room.
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		UserID: userID,
		send:   make(chan []byte, h.buffer),
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(userID))
	h.mu.Unlock()
	return c
}

// Unregister removes the client from every room and closes its queue.
// Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.joinLocked(c, room)
	}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Deliver queues d for every client in its room. A client whose queue is
// full misses the event. Returns how many clients it was queued for.
func (h *Hub) Deliver(d Delivery) int {
	frame, err := json.Marshal(Frame{Event: d.Event, Data: d.Data})
	if err != nil {
		h.logger.Error("failed to encode frame", "event", d.Event, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.rooms[d.Room] {
		if d.Exclude != "" && c.UserID == d.Exclude {
			continue
		}
		select {
		case c.send <- frame:
			sent++
		default:
			h.dropped.Add(1)
			h.logger.Warn("socket queue full, event dropped", "user_id", c.UserID, "event", d.Event)
		}
	}
	return sent
}

// InRoom reports whether c currently belongs to room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// RoomSize returns the number of sockets in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Online reports whether the user has at least one socket on this instance.
func (h *Hub) Online(userID string) bool {
	return h.RoomSize(UserRoom(userID)) > 0
}

// Dropped is the number of events discarded because a queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

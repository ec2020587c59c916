// ABOUTME: In-process transport channel and relay hub
// ABOUTME: Lets several sessions share rooms without a network or global state
package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

// Hub is an in-process relay. It rebroadcasts sync-action frames to every
// other member of the sender's room and never echoes them back to the sender.
// Delivery is synchronous: Emit returns after every peer handler has run.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*MemoryChannel]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*MemoryChannel]struct{})}
}

// Channel creates a channel attached to this hub
func (h *Hub) Channel(id string) *MemoryChannel {
	return &MemoryChannel{
		hub:       h,
		id:        id,
		reachable: true,
		handlers:  make(map[string]Handler),
		rooms:     make(map[string]struct{}),
		status:    make(chan bool, 8),
	}
}

// Members returns how many channels are in a room
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) join(roomID string, c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*MemoryChannel]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(roomID string, c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) leaveAll(c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) broadcast(sender *MemoryChannel, roomID string, data json.RawMessage) {
	h.mu.RLock()
	members := h.rooms[roomID]
	if _, ok := members[sender]; !ok {
		h.mu.RUnlock()
		return
	}
	peers := make([]*MemoryChannel, 0, len(members))
	for m := range members {
		if m != sender {
			peers = append(peers, m)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.deliver(protocol.EventSyncAction, data)
	}
}

// MemoryChannel is a Channel attached to a Hub
type MemoryChannel struct {
	hub *Hub
	id  string

	mu        sync.RWMutex
	connected bool
	reachable bool
	dials     int
	handlers  map[string]Handler
	rooms     map[string]struct{}
	status    chan bool
}

// ID returns the channel name given to the hub
func (c *MemoryChannel) ID() string {
	return c.id
}

// Connect attaches to the hub unless the link is marked unreachable
func (c *MemoryChannel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.connected || !c.reachable {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.dials++
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.mu.Unlock()

	for _, roomID := range rooms {
		c.hub.join(roomID, c)
	}
	c.publishStatus(true)
}

// Disconnect detaches from the hub
func (c *MemoryChannel) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	c.hub.leaveAll(c)
	c.publishStatus(false)
}

// SetReachable simulates the relay becoming (un)reachable. Going unreachable
// drops an established link.
func (c *MemoryChannel) SetReachable(reachable bool) {
	c.mu.Lock()
	c.reachable = reachable
	c.mu.Unlock()

	if !reachable {
		c.Disconnect()
	}
}

// Dials returns how many links have been established
func (c *MemoryChannel) Dials() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dials
}

// JoinRoom records membership, connecting first when needed
func (c *MemoryChannel) JoinRoom(ctx context.Context, roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()

	if c.Connected() {
		c.hub.join(roomID, c)
		return
	}
	c.Connect(ctx)
}

// LeaveRoom withdraws membership
func (c *MemoryChannel) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	c.hub.leave(roomID, c)
}

// Emit routes an event through the hub; dropped while disconnected
func (c *MemoryChannel) Emit(event string, data any) {
	if !c.Connected() {
		return
	}

	switch event {
	case protocol.EventJoinRoom:
		if roomID, ok := data.(string); ok {
			c.hub.join(roomID, c)
		}
	case protocol.EventLeaveRoom:
		if roomID, ok := data.(string); ok {
			c.hub.leave(roomID, c)
		}
	case protocol.EventSyncAction:
		raw, err := json.Marshal(data)
		if err != nil {
			return
		}
		var target struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(raw, &target); err != nil {
			return
		}
		c.hub.broadcast(c, target.RoomID, raw)
	}
}

// On registers the single handler for an event name
func (c *MemoryChannel) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Off removes the handler for an event name
func (c *MemoryChannel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Connected returns connection status
func (c *MemoryChannel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// StatusChanges delivers link transitions
func (c *MemoryChannel) StatusChanges() <-chan bool {
	return c.status
}

func (c *MemoryChannel) deliver(event string, data json.RawMessage) {
	c.mu.RLock()
	handler := c.handlers[event]
	connected := c.connected
	c.mu.RUnlock()

	if connected && handler != nil {
		handler(data)
	}
}

func (c *MemoryChannel) publishStatus(connected bool) {
	select {
	case c.status <- connected:
	default:
	}
}

package ws

import (
	"log"
	"sync"
)

// Hub is the event router: it maps room codes to the live sessions
// subscribed to them and fans events out to exactly that set. One hub is
// constructed at process start and injected wherever broadcasts originate.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

// Subscribe registers a session for a room's events.
func (h *Hub) Subscribe(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[*Client]bool)
	}
	h.rooms[code][c] = true
	c.subscribe(code)
}

// Unsubscribe removes a session from one room.
func (h *Hub) Unsubscribe(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(code, c)
	c.unsubscribe(code)
}

// RemoveClient purges a session from every room it was subscribed to,
// preventing subscriber-set leaks on disconnect.
func (h *Hub) RemoveClient(c *Client) {
	codes := c.subscriptions()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, code := range codes {
		h.removeLocked(code, c)
		c.unsubscribe(code)
	}
}

func (h *Hub) removeLocked(code string, c *Client) {
	if conns, ok := h.rooms[code]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, code)
		}
	}
}

// Subscribers reports how many live sessions a room currently has.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// Broadcast delivers an event to every session subscribed to the room,
// sender included, in the order broadcasts are issued.
func (h *Hub) Broadcast(code, event string, data any) {
	h.broadcast(code, nil, event, data)
}

// BroadcastExcept delivers an event to every subscriber except the sender;
// used for presence and typing signals.
func (h *Hub) BroadcastExcept(code string, sender *Client, event string, data any) {
	h.broadcast(code, sender, event, data)
}

func (h *Hub) broadcast(code string, skip *Client, event string, data any) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		log.Printf("marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[code]))
	for c := range h.rooms[code] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomchat-service/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// ConnInfo carries per-connection metadata for observability events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one live authenticated session: a verified identity, the set of
// room codes it is subscribed to, and a buffered outbound queue drained by a
// single writer goroutine so per-room delivery order is preserved.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity auth.Identity
	info     ConnInfo

	send chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	closed bool

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity, info ConnInfo) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		info:     info,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]bool),
	}
}

// Identity returns the verified user behind this session.
func (c *Client) Identity() auth.Identity {
	return c.identity
}

func (c *Client) subscribe(code string) {
	c.mu.Lock()
	c.rooms[code] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(code string) {
	c.mu.Lock()
	delete(c.rooms, code)
	c.mu.Unlock()
}

func (c *Client) subscribed(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[code]
}

func (c *Client) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, 0, len(c.rooms))
	for code := range c.rooms {
		codes = append(codes, code)
	}
	return codes
}

// enqueue queues an event for delivery. A session that cannot keep up is
// closed rather than allowed to stall everyone else. The closed check and
// the channel send share c.mu with close(), so a broadcaster holding a
// stale subscriber snapshot can never send on a closed channel.
func (c *Client) enqueue(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- payload:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.close()
	}
}

func (c *Client) sendEvent(event string, data any) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		log.Printf("marshal %s event: %v", event, err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, ErrorData{Message: message})
}

// close tears the session down exactly once: the hub forgets it, the writer
// drains out, and the connection is closed. The send channel is closed under
// c.mu after the closed flag is set so in-flight enqueues either complete
// first or observe the flag and drop the payload.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.RemoveClient(c)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. One writer per connection; nothing else touches conn writes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

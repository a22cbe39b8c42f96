package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the transport a connection writes to. *websocket.Conn satisfies
// it; tests substitute an in-memory implementation.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one registered socket with its identity and liveness state.
// Writes are serialized through the connection's own mutex so concurrent
// broadcasts never interleave frames.
type Connection struct {
	ID         string
	UserID     string
	SessionID  string
	GuestToken string

	sock        Socket
	writeWait   time.Duration
	connectedAt time.Time

	mu            sync.Mutex
	lastHeartbeat time.Time
	closed        bool
}

// Guest reports whether the connection is unauthenticated.
func (c *Connection) Guest() bool {
	return c.UserID == ""
}

// Type returns the connection type label used on the wire.
func (c *Connection) Type() string {
	if c.Guest() {
		return "guest"
	}
	return "user"
}

// write sends one text frame under the write lock and deadline.
func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame and shuts the socket. Safe to call twice.
func (c *Connection) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeWait))
	_ = c.sock.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = c.sock.Close()
}

// touch records a liveness signal.
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// lastSeen returns the time of the most recent liveness signal.
func (c *Connection) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// ConnectionInfo is a point-in-time snapshot of one connection.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

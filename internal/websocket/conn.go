package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/invigilo/invigilo-backend/internal/response"
)

const writeWait = 10 * time.Second

// Conn wraps a gorilla websocket connection with a write mutex so multiple
// goroutines (reader loop, clock ticks, remediation directives) can send
// frames safely.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteEvent sends a typed server event.
func (c *Conn) WriteEvent(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ServerMessage{Event: event, Payload: payload})
}

// WriteError sends an error event with a domain error code.
func (c *Conn) WriteError(code response.ErrCode) error {
	return c.WriteEvent(EventError, ErrorPayload{
		Code:    string(code),
		Message: response.GetMessage(code),
	})
}

// ReadMessage blocks for the next client frame.
func (c *Conn) ReadMessage() (*ClientMessage, error) {
	var msg ClientMessage
	if err := c.ws.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

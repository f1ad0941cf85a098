package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 512
	sendBuffer     = 128
)

// ErrConnectionClosed is returned by Send after the connection has closed.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// Connection forwards events to one websocket client. Writes go through a
// buffered channel drained by a single write loop.
type Connection struct {
	ID     string
	UserID uuid.UUID

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

// NewConnection wraps ws for userID.
func NewConnection(userID uuid.UUID, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		close:  make(chan struct{}),
	}
}

// Start launches the read and write loops. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// Done is closed when the connection has shut down for any reason.
func (c *Connection) Done() <-chan struct{} {
	return c.close
}

// SendEvent encodes e and queues it for the client.
func (c *Connection) SendEvent(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Send queues payload. A client too slow to drain its buffer is disconnected.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}

	select {
	case <-c.close:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		// Send runs on the publisher's goroutine and must not wait behind
		// a stalled write.
		c.shutdown(websocket.CloseGoingAway, "send buffer full", true)
		return errors.New("realtime: connection buffer exceeded")
	}
}

// Close sends a close frame and tears the socket down.
func (c *Connection) Close(code int, reason string) {
	c.shutdown(code, reason, false)
}

func (c *Connection) shutdown(code int, reason string, background bool) {
	c.once.Do(func() {
		close(c.close)
		if background {
			go c.teardown(code, reason)
			return
		}
		c.teardown(code, reason)
	})
}

func (c *Connection) teardown(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.ws.Close()
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

// readLoop discards client frames. It exists to process pongs and to notice
// when the client goes away.
func (c *Connection) readLoop() {
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.Close(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// sendBuffer is how many outgoing messages may queue before the client is considered stuck.
const sendBuffer = 64

// Client serializes writes to one connection. Session callbacks fire from several
// goroutines, so every write goes through Send and a single write pump.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	send   chan any
	closed bool

	done chan struct{}
}

// NewClient wraps conn. Call WritePump on its own goroutine.
func NewClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn: conn,
		log:  log,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues v for writing. It never blocks: a client whose buffer is full is dropped.
func (c *Client) Send(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- v:
		return true
	default:
		c.log.Warn().Msg("WebSocket send buffer full, dropping client")
		c.closed = true
		close(c.send)
		return false
	}
}

// Finish sends v as the last message, then closes the connection normally.
func (c *Client) Finish(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- v:
	default:
	}
	c.closed = true
	close(c.send)
}

// Close stops the write pump without a final message.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	<-c.done
}

// Done is closed once the write pump has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump drains the send queue and pings the peer until the queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := WriteTyped(c.conn, msg); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write failed")
				c.drain()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drain()
				return
			}
		}
	}
}

// drain marks the client closed after a write failure so Send stops queueing.
func (c *Client) drain() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
}

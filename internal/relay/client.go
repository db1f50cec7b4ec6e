package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Client is one accepted connection as seen by the hub
type Client struct {
	ID uuid.UUID

	conn *websocket.Conn

	// Buffered frames waiting for the write pump; closed by the hub under its lock
	send      chan []byte
	closeOnce sync.Once

	// Cleared once the write pump stops
	ready atomic.Bool
}

// NewClient wraps conn. conn may be nil when the caller drains the queue
// itself.
func NewClient(conn *websocket.Conn, buffer int) *Client {
	c := &Client{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan []byte, buffer),
	}
	c.ready.Store(true)
	return c
}

// Queue exposes the frames queued for this client
func (c *Client) Queue() <-chan []byte {
	return c.send
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend must be called with the hub lock held for writing.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) closeConn(deadline time.Time) error {
	if c.conn == nil {
		return nil
	}
	var err error
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
	if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !isClosedErr(werr) {
		err = multierr.Append(err, werr)
	}
	if cerr := c.conn.Close(); cerr != nil && !isClosedErr(cerr) {
		err = multierr.Append(err, cerr)
	}
	return err
}

package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/swiftsocket/internal/errors"
)

// Transport is one open, message-framed connection to the relay
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, url string) (Transport, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

// Timer is a pending scheduled call
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WebsocketDialer dials the relay with gorilla/websocket
type WebsocketDialer struct {
	Dialer    *websocket.Dialer
	WriteWait time.Duration

	// ReadTimeout bounds the silence tolerated from the relay. The relay
	// pings idle connections, so a live peer always resets it.
	ReadTimeout time.Duration
}

// NewWebsocketDialer creates a dialer with the given handshake and read
// timeouts. A non-positive readTimeout selects DefaultReadTimeout.
func NewWebsocketDialer(handshakeTimeout, readTimeout time.Duration) *WebsocketDialer {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		WriteWait:   10 * time.Second,
		ReadTimeout: readTimeout,
	}
}

// Dial opens a websocket to url
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "dial %s: %v", url, err)
	}
	return newWsTransport(conn, d.WriteWait, d.ReadTimeout), nil
}

type wsTransport struct {
	conn        *websocket.Conn
	writeWait   time.Duration
	readTimeout time.Duration
}

func newWsTransport(conn *websocket.Conn, writeWait, readTimeout time.Duration) *wsTransport {
	t := &wsTransport{conn: conn, writeWait: writeWait, readTimeout: readTimeout}
	conn.SetPingHandler(func(appData string) error {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		err := t.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(t.writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return t
}

// ReadMessage fails once readTimeout passes without a frame or a ping
func (t *wsTransport) ReadMessage() ([]byte, error) {
	t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yourusername/swiftsocket/internal/config"
)

// Server owns the HTTP side of the relay: the websocket upgrade and the
// per-connection pumps.
type Server struct {
	hub      *Hub
	cfg      config.RelayConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the relay server around hub
func NewServer(cfg *config.Config, hub *Hub, log zerolog.Logger) *Server {
	return &Server{
		hub: hub,
		cfg: cfg.Relay,
		log: log.With().Str("component", "relay").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Hub returns the hub this server feeds
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeWs upgrades the request and serves the connection until it closes
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.cfg.SendBuffer)
	if err := s.hub.Register(client); err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Refusing connection")
		client.closeConn(time.Now().Add(s.cfg.WriteWait))
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleStats reports hub counters as JSON
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.log.Error().Err(err).Msg("Failed to write stats")
	}
}

// readPump feeds frames from the connection to the hub. It unregisters the
// client when the connection fails or closes.
func (s *Server) readPump(c *Client) {
	defer func() {
		s.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Str("client", c.ID.String()).Msg("Connection error")
			}
			return
		}

		// Rejected frames are logged by the hub; the connection stays up
		_ = s.hub.Dispatch(c, message)
	}
}

// writePump drains the client's queue onto the connection. Every write is
// bounded by WriteWait so a stuck peer only stalls itself.
func (s *Server) writePump(c *Client) {
	pingPeriod := (s.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ready.Store(false)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug().Err(err).Str("client", c.ID.String()).Msg("Write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

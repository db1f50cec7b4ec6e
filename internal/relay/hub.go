package relay

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/yourusername/swiftsocket/internal/errors"
	"github.com/yourusername/swiftsocket/internal/protocol"
)

// Hub maintains the set of open connections and fans envelopes out to them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Guards clients and closed; broadcasts iterate under the read lock
	mutex  sync.RWMutex
	closed bool

	log   zerolog.Logger
	stats hubStats
}

type hubStats struct {
	broadcasts atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	rejected   atomic.Uint64
}

// Stats is a snapshot of hub counters
type Stats struct {
	Connections int    `json:"connections"`
	Broadcasts  uint64 `json:"broadcasts"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Rejected    uint64 `json:"rejected"`
}

// NewHub creates a new hub instance
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// Register adds a client and announces it to every registered client,
// the newcomer included. After Shutdown the client is refused and its queue
// is closed.
func (h *Hub) Register(c *Client) error {
	h.mutex.Lock()
	if h.closed {
		c.closeSend()
		h.mutex.Unlock()
		return errors.ErrClosed
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	h.log.Info().Str("client", c.ID.String()).Int("connections", count).Msg("Client connected")
	h.Broadcast(protocol.NewStatus(protocol.StatusConnected))
	return nil
}

// Unregister removes a client and announces the departure. Removing a
// client that is not registered is a no-op and reports false.
func (h *Hub) Unregister(c *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, c)
	c.closeSend()
	count := len(h.clients)
	h.mutex.Unlock()

	h.log.Info().Str("client", c.ID.String()).Int("connections", count).Msg("Client disconnected")
	h.Broadcast(protocol.NewStatus(protocol.StatusDisconnected))
	return true
}

// Broadcast encodes env once and queues it for every registered client that
// is still ready. It returns the number of clients the frame was queued for.
func (h *Hub) Broadcast(env protocol.Envelope) int {
	data, err := protocol.Encode(env)
	if err != nil {
		h.log.Error().Err(err).Msg("Dropping broadcast")
		return 0
	}
	h.stats.broadcasts.Inc()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !c.ready.Load() {
			continue
		}
		if !c.enqueue(data) {
			h.stats.dropped.Inc()
			h.log.Debug().Str("client", c.ID.String()).Msg("Send queue full, frame dropped")
			continue
		}
		delivered++
	}
	h.stats.delivered.Add(uint64(delivered))
	return delivered
}

// Dispatch applies the acceptance policy to a frame read from c: malformed or
// blank messages are logged and dropped, anything else is broadcast as chat
// to all clients including the sender.
func (h *Hub) Dispatch(c *Client, raw []byte) error {
	out, err := protocol.DecodeOutbound(raw)
	if err != nil {
		h.stats.rejected.Inc()
		h.log.Warn().Err(err).Str("client", c.ID.String()).Msg("Rejected inbound frame")
		return err
	}

	h.log.Debug().Str("client", c.ID.String()).Str("username", out.Username).Msg("Relaying chat message")
	h.Broadcast(protocol.NewChat(out.Username, out.Message))
	return nil
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Stats returns a snapshot of the hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.Count(),
		Broadcasts:  h.stats.broadcasts.Load(),
		Delivered:   h.stats.delivered.Load(),
		Dropped:     h.stats.dropped.Load(),
		Rejected:    h.stats.rejected.Load(),
	}
}

// Shutdown drops every client without announcing it and closes their
// connections, waiting at most wait for close frames to be written. Later
// registrations are refused.
func (h *Hub) Shutdown(wait time.Duration) error {
	h.mutex.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		delete(h.clients, c)
		c.closeSend()
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs error
	)
	deadline := time.Now().Add(wait)
	for _, c := range clients {
		c := c
		wg.Go(func() {
			if err := c.closeConn(deadline); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "close client %s", c.ID))
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	h.log.Info().Int("clients", len(clients)).Msg("Hub shut down")
	return errs
}

func isClosedErr(err error) bool {
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}

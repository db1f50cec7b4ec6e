// Package client keeps one logical connection to the relay alive, retrying on
// a linear schedule when the transport drops.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/yourusername/swiftsocket/internal/config"
	"github.com/yourusername/swiftsocket/internal/errors"
	"github.com/yourusername/swiftsocket/internal/protocol"
)

// State of the connection controller
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	GivenUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case GivenUp:
		return "given up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// DefaultMaxAttempts is used when Options.MaxAttempts is zero
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is used when Options.BaseDelay is not positive
	DefaultBaseDelay = 2 * time.Second

	// DefaultReadTimeout bounds relay silence when no read timeout is configured
	DefaultReadTimeout = 70 * time.Second
)

// Options configures a Controller
type Options struct {
	URL string

	// MaxAttempts is the retry budget. Zero selects DefaultMaxAttempts and a
	// negative value disables retries.
	MaxAttempts int
	BaseDelay   time.Duration

	Dialer    Dialer
	Scheduler Scheduler
	Logger    zerolog.Logger

	// OnMessage receives every decoded envelope in receipt order.
	OnMessage func(protocol.Envelope)

	// OnStateChange is called with the controller lock held; it must not
	// call back into the Controller.
	OnStateChange func(state State, attempt int)
}

// OptionsFromConfig builds options from the client section of the config
func OptionsFromConfig(cfg config.ClientConfig, log zerolog.Logger) Options {
	return Options{
		URL:         cfg.URL,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Dialer:      NewWebsocketDialer(cfg.HandshakeTimeout, cfg.ReadTimeout),
		Logger:      log,
	}
}

// Controller owns the client side of the connection and its reconnection
// state machine. Transitions are driven by Connect, Close, the live
// transport and the retry timer, and are applied one at a time.
type Controller struct {
	opts Options

	mu         sync.Mutex
	state      State
	backoff    *LinearBackOff
	gen        uint64
	live       *session
	timer      Timer
	cancelDial context.CancelFunc
	closed     bool

	log zerolog.Logger
}

// New creates a controller in the Disconnected state
func New(opts Options) *Controller {
	switch {
	case opts.MaxAttempts == 0:
		opts.MaxAttempts = DefaultMaxAttempts
	case opts.MaxAttempts < 0:
		opts.MaxAttempts = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(10*time.Second, DefaultReadTimeout)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockScheduler{}
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(protocol.Envelope) {}
	}

	return &Controller{
		opts:    opts,
		state:   Disconnected,
		backoff: NewLinearBackOff(opts.BaseDelay, opts.MaxAttempts),
		log:     opts.Logger.With().Str("component", "client").Str("url", opts.URL).Logger(),
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the retry counter
func (c *Controller) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Attempt()
}

// Connect starts a connection attempt with a fresh retry budget. It is a
// no-op while connecting or connected, and is the only way out of GivenUp.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClosed
	}
	switch c.state {
	case Connecting, Connected:
		return nil
	}

	c.stopTimerLocked()
	c.backoff.Reset()
	c.connectLocked()
	return nil
}

// Send writes a chat message to the relay. Nothing is written unless the
// controller is Connected and text is not blank.
func (c *Controller) Send(text, username string) error {
	if protocol.Blank(text) {
		return errors.ErrEmptyMessage
	}

	c.mu.Lock()
	s := c.live
	if c.state != Connected || s == nil {
		c.mu.Unlock()
		return errors.ErrNotConnected
	}
	c.mu.Unlock()

	data, err := protocol.EncodeOutbound(username, text)
	if err != nil {
		return err
	}
	if err := s.send(data); err != nil {
		c.handleClosed(s.gen, err)
		return errors.Wrapf(errors.ErrTransport, "send: %v", err)
	}
	return nil
}

// Close tears the controller down: the retry timer is cancelled and the live
// transport is closed. No transition happens afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	err := c.detachLocked()
	c.setStateLocked(Disconnected)
	return err
}

// connectLocked abandons any previous transport and dials a new one under
// a fresh generation.
func (c *Controller) connectLocked() {
	c.detachLocked()
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.setStateLocked(Connecting)

	go c.dial(ctx, gen)
}

func (c *Controller) dial(ctx context.Context, gen uint64) {
	t, err := c.opts.Dialer.Dial(ctx, c.opts.URL)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Connection attempt failed")
		c.failLocked()
		c.mu.Unlock()
		return
	}

	c.cancelDial()
	c.cancelDial = nil
	s := newSession(gen, t)
	c.live = s
	c.stopTimerLocked()
	c.backoff.Reset()
	c.setStateLocked(Connected)
	c.mu.Unlock()

	c.log.Info().Msg("Connected to relay")
	go s.run(c.handleFrame, c.handleClosed)
}

func (c *Controller) handleFrame(gen uint64, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("Dropping inbound frame")
		return
	}

	c.mu.Lock()
	current := gen == c.gen && !c.closed
	c.mu.Unlock()
	if !current {
		return
	}
	c.opts.OnMessage(env)
}

func (c *Controller) handleClosed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		return
	}
	c.log.Warn().Err(err).Msg("Connection lost")
	c.failLocked()
}

// failLocked moves to Reconnecting with a scheduled retry, or to GivenUp
// once the budget is spent.
func (c *Controller) failLocked() {
	c.detachLocked()

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.log.Error().Err(errors.ErrRetryExhausted).Int("max_attempts", c.opts.MaxAttempts).Msg("Giving up")
		c.setStateLocked(GivenUp)
		return
	}

	c.setStateLocked(Reconnecting)
	gen := c.gen
	c.log.Info().Int("attempt", c.backoff.Attempt()).Dur("delay", delay).Msg("Scheduling reconnect")
	c.timer = c.opts.Scheduler.AfterFunc(delay, func() {
		c.retry(gen)
	})
}

func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed || c.state != Reconnecting {
		return
	}
	c.timer = nil
	c.connectLocked()
}

// detachLocked invalidates the current generation and releases the live
// transport and any dial in flight.
func (c *Controller) detachLocked() error {
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.live == nil {
		return nil
	}
	err := c.live.close()
	c.live = nil
	if err != nil {
		c.log.Debug().Err(err).Msg("Closing stale transport")
	}
	return err
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s, c.backoff.Attempt())
	}
}

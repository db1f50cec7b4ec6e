package client

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/swiftsocket/internal/errors"
	"github.com/yourusername/swiftsocket/internal/protocol"
)

const base = 2000 * time.Millisecond

type fakeTransport struct {
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.done:
		return nil, io.EOF
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.done:
		return io.ErrClosedPipe
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

// fakeDialer hands out queued transports; an empty queue refuses the dial
type fakeDialer struct {
	mu     sync.Mutex
	queue  []*fakeTransport
	dialed int
}

func (d *fakeDialer) push(t *fakeTransport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, t)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed++
	if len(d.queue) == 0 {
		return nil, errors.Wrap(errors.ErrTransport, "connection refused")
	}
	t := d.queue[0]
	d.queue = d.queue[1:]
	return t, nil
}

func (d *fakeDialer) Dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed
}

type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeScheduler records delays; the test fires callbacks explicitly
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{}
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, f)
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	f := s.fns[i]
	s.mu.Unlock()
	f()
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

type stateChange struct {
	state   State
	attempt int
}

type harness struct {
	ctrl     *Controller
	dialer   *fakeDialer
	sched    *fakeScheduler
	states   chan stateChange
	messages chan protocol.Envelope
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	h := &harness{
		dialer:   &fakeDialer{},
		sched:    &fakeScheduler{},
		states:   make(chan stateChange, 128),
		messages: make(chan protocol.Envelope, 128),
	}
	h.ctrl = New(Options{
		URL:           "ws://relay.test/",
		MaxAttempts:   maxAttempts,
		BaseDelay:     base,
		Dialer:        h.dialer,
		Scheduler:     h.sched,
		OnMessage:     func(env protocol.Envelope) { h.messages <- env },
		OnStateChange: func(s State, attempt int) { h.states <- stateChange{s, attempt} },
	})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

// waitState consumes state changes until want shows up
func (h *harness) waitState(t *testing.T, want State) stateChange {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case sc := <-h.states:
			if sc.state == want {
				return sc
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s, current %s", want, h.ctrl.State())
			return stateChange{}
		}
	}
}

func (h *harness) nextMessage(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-h.messages:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Envelope{}
	}
}

func TestConnectAndReceive(t *testing.T) {
	h := newHarness(t, 5)
	tr := newFakeTransport()
	h.dialer.push(tr)

	assert.Equal(t, Disconnected, h.ctrl.State())
	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connecting)
	h.waitState(t, Connected)

	tr.inbound <- []byte(`{"type":"status","message":"A user connected."}`)
	tr.inbound <- []byte(`{not json`)
	tr.inbound <- []byte(`{"type":"chat","username":"ann","message":"hi"}`)
	tr.inbound <- []byte(`{"type":"chat","message":"anon"}`)

	assert.Equal(t, protocol.NewStatus(protocol.StatusConnected), h.nextMessage(t))
	assert.Equal(t, protocol.NewChat("ann", "hi"), h.nextMessage(t))
	assert.Equal(t, protocol.Anonymous, h.nextMessage(t).DisplayName())
	assert.Equal(t, Connected, h.ctrl.State())
}

func TestSendGating(t *testing.T) {
	h := newHarness(t, 5)
	tr := newFakeTransport()
	h.dialer.push(tr)

	assert.ErrorIs(t, h.ctrl.Send("hi", "ann"), errors.ErrNotConnected)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)

	assert.ErrorIs(t, h.ctrl.Send("   ", "ann"), errors.ErrEmptyMessage)
	require.NoError(t, h.ctrl.Send("hi", "ann"))

	written := tr.Written()
	require.Len(t, written, 1)
	assert.JSONEq(t, `{"username":"ann","message":"hi"}`, string(written[0]))
}

func TestReconnectScheduleAndGiveUp(t *testing.T) {
	h := newHarness(t, 5)
	tr := newFakeTransport()
	h.dialer.push(tr)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)

	tr.Close()
	sc := h.waitState(t, Reconnecting)
	assert.Equal(t, 1, sc.attempt)
	assert.Equal(t, []time.Duration{base}, h.sched.Delays())

	for i := 0; i < 4; i++ {
		h.sched.fire(i)
		h.waitState(t, Connecting)
		sc := h.waitState(t, Reconnecting)
		assert.Equal(t, i+2, sc.attempt)
	}
	assert.Equal(t, []time.Duration{base, 2 * base, 3 * base, 4 * base, 5 * base}, h.sched.Delays())

	h.sched.fire(4)
	h.waitState(t, GivenUp)
	assert.Len(t, h.sched.Delays(), 5)
	assert.Equal(t, 6, h.dialer.Dialed())
	assert.ErrorIs(t, h.ctrl.Send("hi", ""), errors.ErrNotConnected)
}

func TestSuccessResetsAttempts(t *testing.T) {
	h := newHarness(t, 5)
	first, second := newFakeTransport(), newFakeTransport()
	h.dialer.push(first)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)

	first.Close()
	h.waitState(t, Reconnecting)

	// First retry is refused, second one succeeds
	h.sched.fire(0)
	h.waitState(t, Reconnecting)
	h.dialer.push(second)
	h.sched.fire(1)
	h.waitState(t, Connected)
	assert.Zero(t, h.ctrl.Attempt())

	second.Close()
	sc := h.waitState(t, Reconnecting)
	assert.Equal(t, 1, sc.attempt)
	assert.Equal(t, []time.Duration{base, 2 * base, base}, h.sched.Delays())
}

func TestStaleEventsAreDiscarded(t *testing.T) {
	h := newHarness(t, 5)
	tr := newFakeTransport()
	h.dialer.push(tr)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)

	h.ctrl.mu.Lock()
	oldGen := h.ctrl.gen
	h.ctrl.mu.Unlock()

	tr.Close()
	h.waitState(t, Reconnecting)

	// A second close report and a late frame from the dead transport change nothing
	h.ctrl.handleClosed(oldGen, io.EOF)
	h.ctrl.handleFrame(oldGen, []byte(`{"type":"chat","message":"late"}`))

	assert.Len(t, h.sched.Delays(), 1)
	assert.Equal(t, Reconnecting, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.Attempt())
	select {
	case env := <-h.messages:
		t.Fatalf("unexpected message %+v", env)
	default:
	}
}

func TestCloseCancelsPendingRetry(t *testing.T) {
	h := newHarness(t, 5)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Reconnecting)
	dialed := h.dialer.Dialed()

	require.NoError(t, h.ctrl.Close())
	assert.True(t, h.sched.timer(0).Stopped())
	assert.Equal(t, Disconnected, h.ctrl.State())

	// A timer that fires anyway is ignored
	h.sched.fire(0)
	assert.Equal(t, dialed, h.dialer.Dialed())
	assert.Equal(t, Disconnected, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.Connect(), errors.ErrClosed)
}

func TestManualReconnectFromGivenUp(t *testing.T) {
	h := newHarness(t, 1)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Reconnecting)
	h.sched.fire(0)
	h.waitState(t, GivenUp)

	tr := newFakeTransport()
	h.dialer.push(tr)
	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)
	assert.Zero(t, h.ctrl.Attempt())
}

func TestSendFailureTriggersReconnect(t *testing.T) {
	h := newHarness(t, 5)
	tr := newFakeTransport()
	h.dialer.push(tr)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Connected)

	// Writes fail once the transport is closed; whichever of the read loop
	// and Send reports first drives the transition, the other is stale
	tr.closeOnce.Do(func() { close(tr.done) })
	_ = h.ctrl.Send("hi", "ann")
	h.waitState(t, Reconnecting)
	assert.Len(t, h.sched.Delays(), 1)
}

func TestDefaultRetryBudget(t *testing.T) {
	h := newHarness(t, 0)
	assert.Equal(t, DefaultMaxAttempts, h.ctrl.opts.MaxAttempts)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, Reconnecting)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		h.sched.fire(i)
		h.waitState(t, Reconnecting)
	}
	h.sched.fire(DefaultMaxAttempts - 1)
	h.waitState(t, GivenUp)

	assert.Equal(t, []time.Duration{base, 2 * base, 3 * base, 4 * base, 5 * base}, h.sched.Delays())
	assert.Equal(t, DefaultMaxAttempts+1, h.dialer.Dialed())
}

func TestNegativeBudgetDisablesRetries(t *testing.T) {
	h := newHarness(t, -1)

	require.NoError(t, h.ctrl.Connect())
	h.waitState(t, GivenUp)
	assert.Empty(t, h.sched.Delays())
	assert.Equal(t, 1, h.dialer.Dialed())
}

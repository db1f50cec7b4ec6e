package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/swiftsocket/internal/config"
	"github.com/yourusername/swiftsocket/internal/protocol"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newLimitedServer(t, 4096)
}

func newLimitedServer(t *testing.T, limit int64) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{
		Relay: config.RelayConfig{
			WriteWait:      time.Second,
			PongWait:       time.Minute,
			MaxMessageSize: limit,
			SendBuffer:     32,
		},
	}
	srv := NewServer(cfg, NewHub(zerolog.Nop()), zerolog.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeWs))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func TestRelayEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t)

	ann := dial(t, ts)
	assert.Equal(t, protocol.NewStatus(protocol.StatusConnected), next(t, ann))

	bob := dial(t, ts)
	assert.Equal(t, protocol.NewStatus(protocol.StatusConnected), next(t, ann))
	assert.Equal(t, protocol.NewStatus(protocol.StatusConnected), next(t, bob))

	require.NoError(t, ann.WriteMessage(websocket.TextMessage, []byte(`{"username":"ann","message":"hi"}`)))
	assert.Equal(t, protocol.NewChat("ann", "hi"), next(t, ann))
	assert.Equal(t, protocol.NewChat("ann", "hi"), next(t, bob))

	// A blank message is dropped and the connection keeps working
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"username":"bob","message":"   "}`)))
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"message":"still here"}`)))
	got := next(t, ann)
	assert.Equal(t, protocol.NewChat("", "still here"), got)
	assert.Equal(t, protocol.Anonymous, got.DisplayName())
	assert.Equal(t, protocol.NewChat("", "still here"), next(t, bob))

	bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	bob.Close()
	assert.Equal(t, protocol.NewStatus(protocol.StatusDisconnected), next(t, ann))

	require.Eventually(t, func() bool { return srv.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), srv.Hub().Stats().Rejected)
}

func TestHandleStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.Connections)
}

func TestShutdownClosesConnections(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn)

	// Races with the write pump's own close frame are tolerated
	_ = srv.Hub().Shutdown(time.Second)
	assert.Zero(t, srv.Hub().Count())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestConnectionAfterShutdownIsClosed(t *testing.T) {
	srv, ts := newTestServer(t)
	_ = srv.Hub().Shutdown(time.Second)

	conn := dial(t, ts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, srv.Hub().Count())
}

func TestLargeFrameIsRelayed(t *testing.T) {
	_, ts := newLimitedServer(t, 1<<20)
	conn := dial(t, ts)
	next(t, conn)

	text := strings.Repeat("x", 128<<10)
	frame, err := protocol.EncodeOutbound("ann", text)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	assert.Equal(t, protocol.NewChat("ann", text), next(t, conn))
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	srv, ts := newLimitedServer(t, 4096)
	conn := dial(t, ts)
	next(t, conn)

	frame, err := protocol.EncodeOutbound("ann", strings.Repeat("x", 8<<10))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
	require.Eventually(t, func() bool { return srv.Hub().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// wsHost serves exec over WebSocket and can sever every live connection
type wsHost struct {
	*httptest.Server
	mu    sync.Mutex
	conns []Conn
}

func newWSHost(t *testing.T, exec Executor) *wsHost {
	t.Helper()
	h := &wsHost{}
	upgrader := websocket.Upgrader{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConn(ws, WSOptions{PingInterval: 50 * time.Millisecond})
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()
		_ = Serve(r.Context(), conn, exec, ServeOptions{})
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *wsHost) url() string {
	return "ws" + strings.TrimPrefix(h.URL, "http")
}

func (h *wsHost) sever() {
	h.mu.Lock()
	conns := h.conns
	h.conns = nil
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	exec := newRecordingExecutor()
	host := newWSHost(t, exec)

	dialer := &WSDialer{URL: host.url(), Options: WSOptions{PingInterval: 50 * time.Millisecond}}
	tr := newConnected(t, dialer, fastOptions())

	data, err := tr.Invoke(context.Background(), "terminal.read", map[string]interface{}{"session_id": "s1"}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1"}`, string(data))

	require.Eventually(t, func() bool { return exec.subscribers() == 1 }, time.Second, time.Millisecond)
	got := make(chan types.Event, 1)
	tr.Listen("s1", func(ev types.Event) { got <- ev })
	exec.emit(types.OutputEvent("s1", types.StreamStdout, []byte("hello\r\n")))

	select {
	case ev := <-got:
		assert.Equal(t, types.EventOutput, ev.Kind)
		assert.Equal(t, "hello\r\n", string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWebSocketReconnectsAfterHostDrop(t *testing.T) {
	exec := newRecordingExecutor()
	host := newWSHost(t, exec)

	tr := newConnected(t, &WSDialer{URL: host.url()}, fastOptions())

	host.sever()
	require.Eventually(t, func() bool {
		for _, tn := range tr.Transitions() {
			if tn.To == StateReconnecting {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	waitState(t, tr, StateConnected)

	_, err := tr.Invoke(context.Background(), "terminal.list_sessions", nil, time.Second)
	require.NoError(t, err)
}

func TestWebSocketDialRefused(t *testing.T) {
	host := newWSHost(t, newRecordingExecutor())
	url := host.url()
	host.Close()

	opts := fastOptions()
	opts.Backoff.MaxAttempts = 2
	tr := New(&WSDialer{URL: url}, opts)
	t.Cleanup(func() { tr.Close() })

	tr.Connect()
	waitState(t, tr, StateError)
}

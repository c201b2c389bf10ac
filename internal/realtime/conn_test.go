package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/handoff/internal/relay"
)

type served struct {
	conn     *Conn
	received chan []byte
	result   chan error
}

func startServer(t *testing.T, opts Options) (*websocket.Conn, served) {
	t.Helper()

	ready := make(chan served, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := NewUpgrader(nil).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := served{
			conn:     NewConn(socket, opts),
			received: make(chan []byte, 8),
			result:   make(chan error, 1),
		}
		ready <- s
		s.result <- s.conn.ReadLoop(r.Context(), func(_ context.Context, payload []byte) {
			s.received <- payload
		})
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case s := <-ready:
		return client, s
	case <-time.After(2 * time.Second):
		t.Fatal("server connection not established")
		return nil, served{}
	}
}

func TestConn_FlushesQueueBeforeCloseFrame(t *testing.T) {
	client, server := startServer(t, Options{})

	require.NoError(t, server.conn.Send([]byte(`{"n":1}`)))
	require.NoError(t, server.conn.Send([]byte(`{"n":2}`)))
	require.NoError(t, server.conn.Close(relay.CloseConversationClosed, "conversation closed"))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, first, err := client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(first))
	_, second, err := client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"n":2}`, string(second))

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, relay.CloseConversationClosed, closeErr.Code)
	require.Equal(t, "conversation closed", closeErr.Text)

	select {
	case <-server.conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	_, server := startServer(t, Options{})

	require.NoError(t, server.conn.Close(websocket.CloseNormalClosure, ""))
	require.ErrorIs(t, server.conn.Close(websocket.CloseNormalClosure, ""), relay.ErrChannelClosed)
	require.ErrorIs(t, server.conn.Send([]byte(`{}`)), relay.ErrChannelClosed)
}

func TestConn_Backpressure(t *testing.T) {
	c := newConn(nil, Options{SendBuffer: 1})

	require.NoError(t, c.Send([]byte(`{"n":1}`)))
	require.ErrorIs(t, c.Send([]byte(`{"n":2}`)), relay.ErrBackpressure)
}

func TestConn_CloseTruncatesReason(t *testing.T) {
	c := newConn(nil, Options{})

	require.NoError(t, c.Close(relay.CloseReplaced, strings.Repeat("x", 200)))
	require.Len(t, c.reason, maxCloseReason)
}

func TestConn_ReadLoopDeliversFrames(t *testing.T) {
	client, server := startServer(t, Options{})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","isTyping":true}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"content","content":"hi"}`)))
	require.NoError(t, client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	for _, want := range []string{`{"type":"typing","isTyping":true}`, `{"type":"content","content":"hi"}`} {
		select {
		case got := <-server.received:
			require.JSONEq(t, want, string(got))
		case <-time.After(2 * time.Second):
			t.Fatal("frame not delivered")
		}
	}

	select {
	case err := <-server.result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
}

func TestConn_ReadLoopEnforcesLimit(t *testing.T) {
	client, server := startServer(t, Options{MaxMessageBytes: 16})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("a", 64))))

	select {
	case err := <-server.result:
		require.ErrorIs(t, err, websocket.ErrReadLimit)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
	require.Empty(t, server.received)
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{PongWait: 10 * time.Second}.withDefaults()

	require.Equal(t, defaultWriteWait, opts.WriteWait)
	require.Equal(t, 10*time.Second, opts.PongWait)
	require.Equal(t, int64(defaultMaxMessageBytes), opts.MaxMessageBytes)
	require.Equal(t, defaultSendBuffer, opts.SendBuffer)
	require.Equal(t, 9*time.Second, opts.PingPeriod())
	require.Equal(t, (defaultPongWait*9)/10, Options{}.PingPeriod())
}

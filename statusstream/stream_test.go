package statusstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnliquid/ticker"
)

func TestToWebSocketURL(t *testing.T) {
	ws, err := toWebSocketURL("https://swaps.example.com")
	require.NoError(t, err)
	require.Equal(t, "wss://swaps.example.com/ws", ws)

	ws, err = toWebSocketURL("http://localhost:1234/api")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:1234/api/ws", ws)
}

func TestStreamDeliversUpdatesInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sent := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"swap_id":"s1","status":"pending","payload":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"swap_id":"s1","status":"complete","payload":{}}`))
		close(sent)

		// Keep the connection open until the test tears it down.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	httpURL := "http://" + strings.TrimPrefix(srv.URL, "http://")
	stream, err := New(httpURL, func() []string { return nil }, 50*time.Millisecond, ticker.New(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stream.Run(ctx)
	defer stream.Stop()

	<-sent

	u1 := <-stream.Updates()
	u2 := <-stream.Updates()
	require.Equal(t, "pending", u1.Status)
	require.Equal(t, "complete", u2.Status)
}

func TestStreamResubscribesOnReconnect(t *testing.T) {
	var subscribedIDs []string
	first := true

	upgrader := websocket.Upgrader{}
	gotSecondConn := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		if first {
			first = false
			// Force a reconnect by closing immediately.
			conn.Close()
			return
		}

		_, raw, err := conn.ReadMessage()
		if err == nil {
			subscribedIDs = append(subscribedIDs, string(raw))
		}
		close(gotSecondConn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer srv.Close()

	httpURL := "http://" + strings.TrimPrefix(srv.URL, "http://")
	stream, err := New(httpURL, func() []string { return []string{"s1", "s2"} }, 10*time.Millisecond, ticker.New(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stream.Run(ctx)
	defer stream.Stop()

	select {
	case <-gotSecondConn:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resubscribe after reconnect")
	}
	require.Len(t, subscribedIDs, 1)
	require.Contains(t, subscribedIDs[0], "s1")
}

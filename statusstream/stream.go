// Package statusstream is the persistent WebSocket client to the swap
// server's status stream (component E, spec.md §4.5): reconnects with a
// bounded delay, resubscribes to every ongoing swap id on reconnect,
// sends a keep-alive ping on an interval, and fans status updates out
// to a single ordered channel. Modeled on lnd's long-lived peer
// connection loop (dial, read loop, reconnect-on-failure) applied to a
// client-side WebSocket instead of a P2P TCP connection.
package statusstream

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightningnetwork/lnliquid/errkind"
	"github.com/lightningnetwork/lnliquid/ticker"
)

// OngoingSwapIDsFunc returns every swap id the caller currently wants
// status updates for, used to resubscribe after a reconnect.
type OngoingSwapIDsFunc func() []string

// Stream is a reconnecting WebSocket client over a swap server's status
// endpoint.
type Stream struct {
	url                string
	ongoingSwapIDs     OngoingSwapIDsFunc
	reconnectDelay     time.Duration
	keepAlive          ticker.Ticker
	dialer             *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	subbed   map[string]bool

	updates  chan Update
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Stream against a swap server's HTTP(S) base URL,
// deriving the WebSocket endpoint by swapping scheme for ws(s) and
// appending /ws, per spec.md §6.
func New(swapServerURL string, ongoing OngoingSwapIDsFunc, reconnectDelay time.Duration, keepAlive ticker.Ticker) (*Stream, error) {
	wsURL, err := toWebSocketURL(swapServerURL)
	if err != nil {
		return nil, err
	}
	return &Stream{
		url:            wsURL,
		ongoingSwapIDs: ongoing,
		reconnectDelay: reconnectDelay,
		keepAlive:      keepAlive,
		dialer:         websocket.DefaultDialer,
		subbed:         make(map[string]bool),
		updates:        make(chan Update, 64),
		shutdown:       make(chan struct{}),
	}, nil
}

func toWebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errkind.New(errkind.Generic, "parse swap server url", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Updates returns the channel every status Update is delivered on, in
// the order received for any single swap id; updates for different
// swap ids carry no ordering guarantee relative to each other, matching
// spec.md §5.
func (s *Stream) Updates() <-chan Update { return s.updates }

// Run dials, reads, and reconnects until ctx is canceled or Stop is
// called.
func (s *Stream) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.keepAlive.Resume()
	defer s.keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.Warnf("status stream dial failed, retrying in %s: %v", s.reconnectDelay, err)
			if !s.sleep(ctx, s.reconnectDelay) {
				return
			}
			continue
		}
		log.Debugf("status stream connected to %s", s.url)

		s.mu.Lock()
		s.conn = conn
		s.subbed = make(map[string]bool)
		s.mu.Unlock()

		s.resubscribe()

		if !s.readLoop(ctx, conn) {
			return
		}
		if !s.sleep(ctx, s.reconnectDelay) {
			return
		}
	}
}

func (s *Stream) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.shutdown:
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) (keepGoing bool) {
	msgs := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			msgs <- raw
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return false
		case <-s.shutdown:
			_ = conn.Close()
			return false
		case <-s.keepAlive.Ticks():
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return true
			}
		case err := <-errs:
			_ = err
			return true
		case raw := <-msgs:
			update, err := decodeUpdate(raw)
			if err != nil {
				continue
			}
			select {
			case s.updates <- *update:
			case <-ctx.Done():
				return false
			case <-s.shutdown:
				return false
			}
		}
	}
}

// Subscribe registers interest in swapID's status updates, sending a
// subscribe frame immediately if connected; the subscription is also
// replayed automatically on every future reconnect.
func (s *Stream) Subscribe(swapID string) {
	s.mu.Lock()
	s.subbed[swapID] = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = writeJSON(conn, subscribeMessage{Op: "subscribe", SwapID: swapID})
	}
}

func (s *Stream) resubscribe() {
	ids := s.ongoingSwapIDs()

	s.mu.Lock()
	conn := s.conn
	for _, id := range ids {
		s.subbed[id] = true
	}
	s.mu.Unlock()

	if conn == nil || len(ids) == 0 {
		return
	}
	_ = writeJSON(conn, subscribeMessage{Op: "subscribe", IDs: ids})
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, buf)
}

// Stop shuts the stream down; Run returns once the current read loop
// notices.
func (s *Stream) Stop() {
	close(s.shutdown)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
}

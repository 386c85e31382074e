package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocketConfig configures a WebSocket tool server connection.
type WebSocketConfig struct {
	URL     string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// WebSocketTransport frames one JSON message per text frame over a
// gorilla/websocket connection, with a read pump and write pump goroutine
// pair and ping/pong keepalive, following the same shape as every
// websocket-serving handler in the corpus.
type WebSocketTransport struct {
	cfg WebSocketConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	send   chan []byte
	recv   chan []byte
	done   chan struct{}
	closed bool

	pumpErr error
	pumpMu  sync.Mutex
}

// NewWebSocketTransport builds a transport dialing the given URL on Connect.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{cfg: cfg}
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("websocket transport already connected")
	}

	if _, err := url.Parse(t.cfg.URL); err != nil {
		return &ConnectError{Target: t.cfg.URL, Err: err}
	}

	dialer := t.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		return &ConnectError{Target: t.cfg.URL, Err: err}
	}
	conn.SetReadLimit(MaxFrameBytes)

	t.conn = conn
	t.send = make(chan []byte, 32)
	t.recv = make(chan []byte, 32)
	t.done = make(chan struct{})

	go t.readPump()
	go t.writePump()

	slog.Info("websocket transport connected", "url", t.cfg.URL)
	return nil
}

func (t *WebSocketTransport) readPump() {
	defer t.failPump(nil)

	conn := t.conn
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.failPump(fmt.Errorf("websocket transport: read: %w", err))
			}
			return
		}
		select {
		case t.recv <- msg:
		case <-t.done:
			return
		}
	}
}

func (t *WebSocketTransport) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	conn := t.conn
	for {
		select {
		case msg, ok := <-t.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				t.failPump(fmt.Errorf("websocket transport: write: %w", err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.failPump(fmt.Errorf("websocket transport: ping: %w", err))
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *WebSocketTransport) failPump(err error) {
	t.pumpMu.Lock()
	if t.pumpErr == nil {
		t.pumpErr = err
	}
	t.pumpMu.Unlock()

	t.mu.Lock()
	alreadyClosed := t.closed
	t.mu.Unlock()
	if !alreadyClosed {
		_ = t.Close()
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	send := t.send
	t.mu.Unlock()

	if closed || send == nil {
		return ErrTransportClosed
	}
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}

	select {
	case send <- frame:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	recv := t.recv
	t.mu.Unlock()

	if closed && recv == nil {
		return nil, ErrTransportClosed
	}

	select {
	case msg, ok := <-recv:
		if !ok {
			return nil, t.pumpError()
		}
		return msg, nil
	case <-t.done:
		return nil, t.pumpError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *WebSocketTransport) pumpError() error {
	t.pumpMu.Lock()
	defer t.pumpMu.Unlock()
	if t.pumpErr != nil {
		return t.pumpErr
	}
	return ErrTransportClosed
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.done != nil {
		close(t.done)
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *WebSocketTransport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.conn != nil
}

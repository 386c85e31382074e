// Package rpc correlates JSON-RPC requests with responses over a
// transport.Transport and dispatches inbound notifications, including the
// tools/progress and tools/result pair used by long-running tool calls.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/transport"
)

// NotificationHandler is called for every inbound notification whose method
// matches the one it was registered under. Handlers must not block.
type NotificationHandler func(params json.RawMessage)

// Conn wraps a transport.Transport with JSON-RPC request/response
// correlation and notification dispatch. One receiver goroutine per Conn;
// callers may issue Call from any number of goroutines concurrently.
type Conn struct {
	tr transport.Transport

	nextID int64

	pending sync.Map // int64 -> chan *protocol.Response

	handlersMu sync.RWMutex
	handlers   map[string][]NotificationHandler

	sendMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	// ProgressCapable is set once the initialize handshake completes,
	// recording whether the server advertised the progress extension.
	progressCapable atomic.Bool
}

// New wraps an already-connected transport. The caller is responsible for
// calling Connect on tr beforehand and Close on the returned Conn.
func New(tr transport.Transport) *Conn {
	c := &Conn{
		tr:       tr,
		handlers: make(map[string][]NotificationHandler),
		closed:   make(chan struct{}),
	}
	go c.recvLoop()
	return c
}

// OnNotification registers a handler for the given method. Multiple
// handlers for the same method all run, in registration order.
func (c *Conn) OnNotification(method string, h NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[method] = append(c.handlers[method], h)
}

// SetProgressCapable records the outcome of the initialize handshake's
// capability probe.
func (c *Conn) SetProgressCapable(v bool) { c.progressCapable.Store(v) }

// ProgressCapable reports whether the server is known to support
// tools/call_async and its progress/result notifications.
func (c *Conn) ProgressCapable() bool { return c.progressCapable.Load() }

// Call issues a JSON-RPC request and blocks for the matching response.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	id := atomic.AddInt64(&c.nextID, 1)
	req := protocol.Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	ch := make(chan *protocol.Response, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}

	c.sendMu.Lock()
	err = c.tr.Send(ctx, raw)
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("rpc: send: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		if len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("rpc: unmarshal result: %w", err)
		}
		return nil
	case <-c.closed:
		return transport.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify sends a one-way notification; no response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	note := protocol.Notification{JSONRPC: "2.0", Method: method, Params: params}
	raw, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("rpc: marshal notification: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.tr.Send(ctx, raw); err != nil {
		return fmt.Errorf("rpc: send: %w", err)
	}
	return nil
}

// Close tears down the underlying transport and stops the receiver loop.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.tr.Close()
	})
	return err
}

// Done is closed once the connection's receiver loop has stopped, whether
// because Close was called or the transport failed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) recvLoop() {
	ctx := context.Background()
	for {
		raw, err := c.tr.Receive(ctx)
		if err != nil {
			slog.Debug("rpc: receive loop exiting", "error", err)
			c.closeOnce.Do(func() { close(c.closed) })
			c.drainPending()
			return
		}
		c.dispatch(raw)
	}
}

func (c *Conn) drainPending() {
	c.pending.Range(func(key, value any) bool {
		ch := value.(chan *protocol.Response)
		select {
		case ch <- &protocol.Response{Error: &protocol.RPCError{Message: "connection closed"}}:
		default:
		}
		c.pending.Delete(key)
		return true
	})
}

func (c *Conn) dispatch(raw []byte) {
	switch protocol.Sniff(raw) {
	case protocol.KindResponse:
		var resp protocol.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			slog.Warn("rpc: malformed response frame", "error", err)
			return
		}
		id, ok := normalizeID(resp.ID)
		if !ok {
			return
		}
		if v, ok := c.pending.Load(id); ok {
			ch := v.(chan *protocol.Response)
			select {
			case ch <- &resp:
			default:
			}
		}
	case protocol.KindNotification:
		var note protocol.Notification
		if err := json.Unmarshal(raw, &note); err != nil {
			slog.Warn("rpc: malformed notification frame", "error", err)
			return
		}
		c.handlersMu.RLock()
		hs := append([]NotificationHandler(nil), c.handlers[note.Method]...)
		c.handlersMu.RUnlock()

		var params json.RawMessage
		if note.Params != nil {
			params, _ = json.Marshal(note.Params)
		}
		for _, h := range hs {
			h(params)
		}
	default:
		slog.Warn("rpc: unrecognized frame, dropping")
	}
}

func normalizeID(id any) (int64, bool) {
	switch v := id.(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	default:
		return 0, false
	}
}

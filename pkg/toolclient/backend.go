package toolclient

import (
	"context"
	"encoding/json"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/rpc"
	"github.com/QUSEIT/simacode-sub000/pkg/transport"
)

// Backend performs the handshake and call mechanics for one tool server
// connection. Client owns the state machine, tool-list cache, health loop,
// and reconnect policy on top of it; a Backend only needs to know how to
// talk to one kind of server.
type Backend interface {
	// Connect performs the handshake (transport dial, initialize, initial
	// tools/list) and returns the tool list it discovered.
	Connect(ctx context.Context, clientName, clientVersion string) ([]protocol.ToolDescriptorWire, error)
	// ListTools re-fetches the tool list from an already-connected backend.
	ListTools(ctx context.Context) ([]protocol.ToolDescriptorWire, error)
	// CallTool performs a synchronous tool call.
	CallTool(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error)
	// CallToolAsync performs a tool call, streaming progress when the
	// backend supports it. A backend with no progress extension emits
	// exactly one terminal event, same as a synchronous call.
	CallToolAsync(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error)
	// Ping checks liveness without necessarily re-listing tools.
	Ping(ctx context.Context) error
	// OnToolsChanged registers a callback fired when the backend learns,
	// out of band, that the server's tool list changed. Backends with no
	// such notification leave the callback unused; Client's TTL refresh in
	// Tools is the fallback invalidation path either way.
	OnToolsChanged(func())
	Close() error
}

// BackendFactory builds a fresh, unconnected Backend on each reconnect
// attempt, so a stdio server's child process is genuinely respawned and a
// websocket backend's socket is genuinely redialed rather than reused.
type BackendFactory func() Backend

// wireBackend is the hand-rolled JSON-RPC 2.0 backend used over the
// package's own transport.Transport implementations (stdio, websocket). It
// speaks the tools/call_async progress extension described in pkg/protocol,
// which mark3labs/mcp-go does not know about, so it remains the backend for
// any transport where that extension matters.
type wireBackend struct {
	tr   transport.Transport
	conn *rpc.Conn
}

// NewWireBackend wraps tr in the hand-rolled JSON-RPC Backend.
func NewWireBackend(tr transport.Transport) Backend {
	return &wireBackend{tr: tr}
}

func (b *wireBackend) Connect(ctx context.Context, clientName, clientVersion string) ([]protocol.ToolDescriptorWire, error) {
	if err := b.tr.Connect(ctx); err != nil {
		return nil, err
	}

	conn := rpc.New(b.tr)
	if _, err := rpc.Initialize(ctx, conn, clientName, clientVersion); err != nil {
		_ = conn.Close()
		return nil, err
	}

	tools, err := rpc.ListTools(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	b.conn = conn
	return tools, nil
}

func (b *wireBackend) ListTools(ctx context.Context) ([]protocol.ToolDescriptorWire, error) {
	return rpc.ListTools(ctx, b.conn)
}

func (b *wireBackend) CallTool(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error) {
	return rpc.CallTool(ctx, b.conn, name, args, timeoutSeconds)
}

func (b *wireBackend) CallToolAsync(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error) {
	return rpc.CallToolAsync(ctx, b.conn, name, args, timeoutSeconds)
}

func (b *wireBackend) Ping(ctx context.Context) error {
	return b.conn.Call(ctx, protocol.MethodPing, nil, nil)
}

func (b *wireBackend) OnToolsChanged(fn func()) {
	b.conn.OnNotification(protocol.MethodToolsChanged, func(json.RawMessage) { fn() })
}

func (b *wireBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

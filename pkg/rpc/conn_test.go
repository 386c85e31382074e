package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
)

// pipeTransport is a fake transport.Transport backed by two in-process
// channels, letting tests drive both ends of a Conn without a real process
// or socket.
type pipeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func newPipePair() (*pipeTransport, *pipeTransport) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	closed := make(chan struct{})
	return &pipeTransport{in: a, out: b, closed: closed}, &pipeTransport{in: b, out: a, closed: closed}
}

func (p *pipeTransport) Connect(ctx context.Context) error { return nil }

func (p *pipeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return errClosed
	}
}

func (p *pipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *pipeTransport) IsAlive() bool {
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

type pipeErr string

func (e pipeErr) Error() string { return string(e) }

const errClosed = pipeErr("pipe closed")

func TestConnCallRoundTrip(t *testing.T) {
	clientTr, serverTr := newPipePair()
	client := New(clientTr)
	defer client.Close()

	go func() {
		raw, err := serverTr.Receive(context.Background())
		require.NoError(t, err)

		var req protocol.Request
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, protocol.MethodPing, req.Method)

		resp := protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
		out, err := json.Marshal(resp)
		require.NoError(t, err)
		require.NoError(t, serverTr.Send(context.Background(), out))
	}()

	var result struct {
		OK bool `json:"ok"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Call(ctx, protocol.MethodPing, nil, &result))
	require.True(t, result.OK)
}

func TestConnCallSurfacesRPCError(t *testing.T) {
	clientTr, serverTr := newPipePair()
	client := New(clientTr)
	defer client.Close()

	go func() {
		raw, err := serverTr.Receive(context.Background())
		require.NoError(t, err)
		var req protocol.Request
		require.NoError(t, json.Unmarshal(raw, &req))

		resp := protocol.Response{JSONRPC: "2.0", ID: req.ID, Error: &protocol.RPCError{Code: protocol.ErrCodeMethodNotFound, Message: "nope"}}
		out, _ := json.Marshal(resp)
		require.NoError(t, serverTr.Send(context.Background(), out))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Call(ctx, "bogus", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope")
}

func TestConnDispatchesNotifications(t *testing.T) {
	clientTr, serverTr := newPipePair()
	client := New(clientTr)
	defer client.Close()

	received := make(chan string, 1)
	client.OnNotification(protocol.MethodToolsChanged, func(params json.RawMessage) {
		received <- "changed"
	})

	note := protocol.Notification{JSONRPC: "2.0", Method: protocol.MethodToolsChanged}
	out, _ := json.Marshal(note)
	require.NoError(t, serverTr.Send(context.Background(), out))

	select {
	case msg := <-received:
		require.Equal(t, "changed", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched")
	}
}

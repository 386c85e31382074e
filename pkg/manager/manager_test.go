package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/transport"
)

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
		return errPipeClosed
	}
}
func (p *pipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return nil, errPipeClosed
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

const errPipeClosed = pipeErr("pipe closed")

func newFakeServer(toolName string) transport.Transport {
	client, server := newPipePair()
	go func() {
		ctx := context.Background()
		for {
			raw, err := server.Receive(ctx)
			if err != nil {
				return
			}
			var req protocol.Request
			_ = json.Unmarshal(raw, &req)

			var resp protocol.Response
			resp.JSONRPC, resp.ID = "2.0", req.ID

			switch req.Method {
			case protocol.MethodInitialize:
				result := protocol.InitializeResult{ServerInfo: protocol.ClientInfo{Name: "fake"}, Capabilities: map[string]any{}}
				resp.Result, _ = json.Marshal(result)
			case protocol.MethodToolsList:
				result := protocol.ToolsListResult{Tools: []protocol.ToolDescriptorWire{{Name: toolName}}}
				resp.Result, _ = json.Marshal(result)
			case protocol.MethodToolsCall:
				resp.Result, _ = json.Marshal(protocol.CallResult{Content: []protocol.ToolContentItem{{Type: "text", Text: "done"}}})
			case protocol.MethodPing:
				resp.Result = json.RawMessage(`{}`)
			default:
				resp.Error = &protocol.RPCError{Code: protocol.ErrCodeMethodNotFound, Message: "unsupported"}
			}
			out, _ := json.Marshal(resp)
			_ = server.Send(ctx, out)
		}
	}()
	return client
}

func TestManagerAddServerAndResolve(t *testing.T) {
	mgr := New(4, 1)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := mgr.AddServer(ctx, ServerSpec{
		Name:      "docs",
		Transport: func() transport.Transport { return newFakeServer("search") },
	})
	require.NoError(t, err)

	entry, err := mgr.Resolve("search")
	require.NoError(t, err)
	require.Equal(t, "docs:search", entry.Qualified)

	entry2, err := mgr.Resolve("docs:search")
	require.NoError(t, err)
	require.Equal(t, entry.Qualified, entry2.Qualified)
}

func TestManagerCallDispatchesToServer(t *testing.T) {
	mgr := New(4, 1)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, mgr.AddServer(ctx, ServerSpec{
		Name:      "docs",
		Transport: func() transport.Transport { return newFakeServer("search") },
	}))

	entry, err := mgr.Resolve("search")
	require.NoError(t, err)

	result, err := mgr.Call(ctx, entry, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	require.Equal(t, "done", result.Content[0].Text)
}

func TestManagerResolveUnknownToolFails(t *testing.T) {
	mgr := New(4, 1)
	defer mgr.Close()
	_, err := mgr.Resolve("nope")
	require.Error(t, err)
}

func TestManagerDedicatedLaneRoutesThroughLane(t *testing.T) {
	mgr := New(4, 1)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, mgr.AddServer(ctx, ServerSpec{
		Name:          "isolated",
		DedicatedLane: true,
		Transport:     func() transport.Transport { return newFakeServer("build") },
	}))

	entry, err := mgr.Resolve("build")
	require.NoError(t, err)

	result, err := mgr.Call(ctx, entry, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "done", result.Content[0].Text)
}


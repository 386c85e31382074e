package toolclient

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/rpc"
)

// StdioMCPConfig configures a stdioMCPBackend's subprocess.
type StdioMCPConfig struct {
	Command string
	Args    []string
	Env     []string // "KEY=VALUE" entries, appended to the parent env
}

// stdioMCPBackend talks to a stdio tool server through mark3labs/mcp-go
// instead of the hand-rolled JSON-RPC framing wireBackend uses for stdio:
// mcp-go already owns subprocess handshake and line framing for the
// standard MCP methods, and no stdio server in this system speaks the
// tools/call_async progress extension, so there's nothing wireBackend's
// stdio path would buy over it.
type stdioMCPBackend struct {
	cfg    StdioMCPConfig
	client *mcpclient.Client
}

// NewStdioMCPBackend builds a Backend that starts a fresh subprocess on
// every Connect call.
func NewStdioMCPBackend(cfg StdioMCPConfig) Backend {
	return &stdioMCPBackend{cfg: cfg}
}

func (b *stdioMCPBackend) Connect(ctx context.Context, clientName, clientVersion string) ([]protocol.ToolDescriptorWire, error) {
	c, err := mcpclient.NewStdioMCPClient(b.cfg.Command, b.cfg.Env, b.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("stdio mcp backend: new client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("stdio mcp backend: start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("stdio mcp backend: initialize: %w", err)
	}

	tools, err := listMCPTools(ctx, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	b.client = c
	return tools, nil
}

func listMCPTools(ctx context.Context, c *mcpclient.Client) ([]protocol.ToolDescriptorWire, error) {
	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("stdio mcp backend: tools/list: %w", err)
	}
	out := make([]protocol.ToolDescriptorWire, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, protocol.ToolDescriptorWire{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertMCPSchema(t.InputSchema),
		})
	}
	return out, nil
}

func (b *stdioMCPBackend) ListTools(ctx context.Context) ([]protocol.ToolDescriptorWire, error) {
	return listMCPTools(ctx, b.client)
}

func (b *stdioMCPBackend) CallTool(ctx context.Context, name string, args map[string]any, _ int) (*protocol.CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := b.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stdio mcp backend: tools/call %s: %w", name, err)
	}
	return toolResultFromMCP(resp), nil
}

// CallToolAsync has no progress extension to drive through mcp-go, so it
// downgrades to a synchronous call and emits the single terminal event the
// Client contract expects, the same fallback rpc.CallToolAsync performs for
// a non-progress-capable wireBackend server.
func (b *stdioMCPBackend) CallToolAsync(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error) {
	events := make(chan rpc.ToolEvent, 1)
	result, err := b.CallTool(ctx, name, args, timeoutSeconds)
	if err != nil {
		events <- rpc.ToolEvent{Result: &protocol.ResultParams{TaskID: name, Error: &protocol.RPCError{Message: err.Error()}}}
	} else {
		events <- rpc.ToolEvent{Result: &protocol.ResultParams{TaskID: name, Result: *result}}
	}
	close(events)
	return events, nil
}

// Ping has no dedicated liveness call in mcp-go's client surface, so the
// backend reuses tools/list as its health probe.
func (b *stdioMCPBackend) Ping(ctx context.Context) error {
	_, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	return err
}

// OnToolsChanged is a no-op: mcp-go's stdio client does not surface a
// tools-list-changed notification, so the TTL refresh in Client.Tools is
// this backend's only invalidation path.
func (b *stdioMCPBackend) OnToolsChanged(func()) {}

func (b *stdioMCPBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func toolResultFromMCP(resp *mcp.CallToolResult) *protocol.CallResult {
	out := &protocol.CallResult{IsError: resp.IsError}
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out.Content = append(out.Content, protocol.ToolContentItem{Type: "text", Text: tc.Text})
		}
	}
	return out
}

func convertMCPSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
)

// ToolEvent is one item in the stream returned by CallToolAsync: either a
// progress update or the terminal result.
type ToolEvent struct {
	Progress *protocol.ProgressParams
	Result   *protocol.ResultParams
}

// Initialize performs the initialize/initialized handshake and records
// whether the server advertises the progress extension.
func Initialize(ctx context.Context, c *Conn, clientName, clientVersion string) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: "2024-11-05",
		Capabilities:    map[string]any{"progress": map[string]any{}},
		ClientInfo:      protocol.ClientInfo{Name: clientName, Version: clientVersion},
	}

	var result protocol.InitializeResult
	if err := c.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("rpc: initialize: %w", err)
	}

	_, capable := result.Capabilities["progress"]
	c.SetProgressCapable(capable)

	if err := c.Notify(ctx, protocol.MethodInitialized, struct{}{}); err != nil {
		return nil, fmt.Errorf("rpc: initialized notification: %w", err)
	}
	return &result, nil
}

// ListTools invokes tools/list.
func ListTools(ctx context.Context, c *Conn) ([]protocol.ToolDescriptorWire, error) {
	var result protocol.ToolsListResult
	if err := c.Call(ctx, protocol.MethodToolsList, nil, &result); err != nil {
		return nil, fmt.Errorf("rpc: tools/list: %w", err)
	}
	return result.Tools, nil
}

// CallTool performs a synchronous tools/call.
func CallTool(ctx context.Context, c *Conn, name string, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error) {
	params := protocol.CallParams{Name: name, Arguments: args, TimeoutSeconds: timeoutSeconds}
	var result protocol.CallResult
	if err := c.Call(ctx, protocol.MethodToolsCall, params, &result); err != nil {
		return nil, fmt.Errorf("rpc: tools/call %s: %w", name, err)
	}
	return &result, nil
}

// CallToolAsync issues tools/call_async and returns a channel of ToolEvents
// terminating with exactly one event carrying Result; if ctx is done before
// the result arrives, the channel is closed without one. If the server is not
// progress-capable, the call is downgraded transparently to a synchronous
// tools/call, emitting a single terminal event.
func CallToolAsync(ctx context.Context, c *Conn, name string, args map[string]any, timeoutSeconds int) (<-chan ToolEvent, error) {
	if !c.ProgressCapable() {
		events := make(chan ToolEvent, 1)
		result, err := CallTool(ctx, c, name, args, timeoutSeconds)
		if err != nil {
			events <- ToolEvent{Result: &protocol.ResultParams{Error: &protocol.RPCError{Message: err.Error()}}}
		} else {
			events <- ToolEvent{Result: &protocol.ResultParams{Result: *result}}
		}
		close(events)
		return events, nil
	}

	params := protocol.CallParams{Name: name, Arguments: args, EnableProgress: true, TimeoutSeconds: timeoutSeconds}
	var ack protocol.CallAsyncAck
	if err := c.Call(ctx, protocol.MethodToolsCallAsync, params, &ack); err != nil {
		return nil, fmt.Errorf("rpc: tools/call_async %s: %w", name, err)
	}

	events := make(chan ToolEvent, 8)
	var once sync.Once
	finish := func() { once.Do(func() { close(events) }) }

	var progressHandle, resultHandle func(json.RawMessage)

	progressHandle = func(raw json.RawMessage) {
		var p protocol.ProgressParams
		if err := json.Unmarshal(raw, &p); err != nil || p.TaskID != ack.TaskID {
			return
		}
		select {
		case events <- ToolEvent{Progress: &p}:
		case <-ctx.Done():
		}
	}
	resultHandle = func(raw json.RawMessage) {
		var r protocol.ResultParams
		if err := json.Unmarshal(raw, &r); err != nil || r.TaskID != ack.TaskID {
			return
		}
		select {
		case events <- ToolEvent{Result: &r}:
		case <-ctx.Done():
		}
		finish()
	}

	c.OnNotification(protocol.MethodToolsProgress, progressHandle)
	c.OnNotification(protocol.MethodToolsResult, resultHandle)

	go func() {
		<-ctx.Done()
		finish()
	}()

	return events, nil
}

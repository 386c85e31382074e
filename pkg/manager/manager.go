// Package manager owns the set of configured tool server connections,
// namespacing their tools and bounding concurrent dispatch.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/QUSEIT/simacode-sub000/pkg/lane"
	"github.com/QUSEIT/simacode-sub000/pkg/observability"
	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/rpc"
	"github.com/QUSEIT/simacode-sub000/pkg/toolclient"
	"github.com/QUSEIT/simacode-sub000/pkg/transport"
)

// ServerSpec describes one configured tool server. Set Backend directly
// for a server that needs its own connection mechanics (e.g. a stdio
// server routed through the mcp-go backend); otherwise set Transport and
// AddServer wraps it in the package's own hand-rolled JSON-RPC backend.
// Backend takes precedence when both are set.
type ServerSpec struct {
	Name          string
	Transport     func() transport.Transport
	Backend       toolclient.BackendFactory
	MaxConcurrent int64 // per-server cap; 0 means unbounded (global cap still applies)
	DedicatedLane bool
	ClientConfig  toolclient.Config
}

// Entry is one resolved tool, namespaced to its owning server.
type Entry struct {
	Server      string
	Name        string // bare tool name on the server
	Qualified   string // "server:name"
	Description string
	InputSchema map[string]any
}

// Manager owns every configured server connection and dispatches calls
// against a global concurrency budget plus a per-server budget.
type Manager struct {
	globalSem *semaphore.Weighted
	lane      *lane.Runner

	mu       sync.RWMutex
	clients  map[string]*toolclient.Client
	perSem   map[string]*semaphore.Weighted
	dedicated map[string]bool

	entries atomic.Pointer[[]Entry]

	recorder *observability.Recorder
}

// SetRecorder attaches an observability Recorder so tool dispatch gets
// recorded. Optional; a nil or never-set recorder leaves Call/CallAsync's
// behavior unchanged.
func (m *Manager) SetRecorder(r *observability.Recorder) {
	m.recorder = r
}

// New constructs a Manager with the given global concurrency budget.
func New(globalConcurrency int64, laneWorkers int) *Manager {
	m := &Manager{
		globalSem: semaphore.NewWeighted(globalConcurrency),
		lane:      lane.NewRunner(laneWorkers),
		clients:   make(map[string]*toolclient.Client),
		perSem:    make(map[string]*semaphore.Weighted),
		dedicated: make(map[string]bool),
	}
	empty := []Entry{}
	m.entries.Store(&empty)
	return m
}

// AddServer registers and connects one server, then rebuilds the tool
// entries across all servers. The manager does not subscribe to
// tools/changed: such a notification only invalidates the server's
// client-side tool-list cache, and the manager's entries are rebuilt only
// by the next AddServer call.
func (m *Manager) AddServer(ctx context.Context, spec ServerSpec) error {
	spec.ClientConfig.ServerName = spec.Name

	backend := spec.Backend
	if backend == nil {
		tr := spec.Transport
		backend = func() toolclient.Backend { return toolclient.NewWireBackend(tr()) }
	}

	client := toolclient.New(spec.ClientConfig, backend)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("manager: add server %s: %w", spec.Name, err)
	}

	m.mu.Lock()
	m.clients[spec.Name] = client
	if spec.MaxConcurrent > 0 {
		m.perSem[spec.Name] = semaphore.NewWeighted(spec.MaxConcurrent)
	}
	m.dedicated[spec.Name] = spec.DedicatedLane
	m.mu.Unlock()

	if err := m.rebuild(ctx); err != nil {
		return err
	}

	slog.Info("manager: server ready", "server", spec.Name)
	return nil
}

// rebuild fetches the current tool list from every server and swaps the
// entries slice atomically (copy-on-write), so readers never see a
// partially built registry.
func (m *Manager) rebuild(ctx context.Context) error {
	m.mu.RLock()
	clients := make(map[string]*toolclient.Client, len(m.clients))
	for k, v := range m.clients {
		clients[k] = v
	}
	m.mu.RUnlock()

	var entries []Entry
	for name, client := range clients {
		tools, err := client.Tools(ctx)
		if err != nil {
			slog.Warn("manager: tool list refresh failed", "server", name, "error", err)
			continue
		}
		for _, t := range tools {
			entries = append(entries, Entry{
				Server:      name,
				Name:        t.Name,
				Qualified:   name + ":" + t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Qualified < entries[j].Qualified })

	m.entries.Store(&entries)
	return nil
}

// Entries returns a snapshot of every tool known to the manager, across
// all servers.
func (m *Manager) Entries() []Entry {
	p := m.entries.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Resolve finds the entry for a possibly-namespaced tool reference. A
// reference containing ":" is treated as "server:tool" and must match
// exactly. A bare name must match exactly one entry across all servers.
func (m *Manager) Resolve(ref string) (Entry, error) {
	entries := m.Entries()

	if server, tool, ok := strings.Cut(ref, ":"); ok {
		for _, e := range entries {
			if e.Server == server && e.Name == tool {
				return e, nil
			}
		}
		return Entry{}, fmt.Errorf("manager: no tool %q on server %q", tool, server)
	}

	var matches []Entry
	for _, e := range entries {
		if e.Name == ref {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return Entry{}, fmt.Errorf("manager: no tool named %q", ref)
	case 1:
		return matches[0], nil
	default:
		return Entry{}, fmt.Errorf("manager: %q is ambiguous across %d servers, qualify as server:tool", ref, len(matches))
	}
}

// Call dispatches a synchronous tool call, honoring the global semaphore,
// the server's per-server semaphore if configured, and routing through the
// dedicated execution lane when the owning server is flagged for it.
func (m *Manager) Call(ctx context.Context, entry Entry, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error) {
	if err := m.globalSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("manager: global concurrency: %w", err)
	}
	defer m.globalSem.Release(1)

	m.mu.RLock()
	client := m.clients[entry.Server]
	perSem := m.perSem[entry.Server]
	dedicated := m.dedicated[entry.Server]
	m.mu.RUnlock()

	if client == nil {
		return nil, fmt.Errorf("manager: server %q not registered", entry.Server)
	}

	if perSem != nil {
		if err := perSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("manager: per-server concurrency: %w", err)
		}
		defer perSem.Release(1)
	}

	call := func() (*protocol.CallResult, error) {
		start := time.Now()
		spanCtx, span := m.recorder.StartToolSpan(ctx, entry.Server, entry.Name)
		defer span.End()
		result, err := client.CallTool(spanCtx, entry.Name, args, timeoutSeconds)
		m.recorder.RecordToolCall(ctx, entry.Server, entry.Name, time.Since(start), err)
		return result, err
	}

	if dedicated {
		return lane.Submit(ctx, m.lane, call)
	}
	return call()
}

// CallAsync dispatches a progress-aware tool call under the same
// concurrency and lane rules as Call.
func (m *Manager) CallAsync(ctx context.Context, entry Entry, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error) {
	if err := m.globalSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("manager: global concurrency: %w", err)
	}

	m.mu.RLock()
	client := m.clients[entry.Server]
	perSem := m.perSem[entry.Server]
	dedicated := m.dedicated[entry.Server]
	m.mu.RUnlock()

	if client == nil {
		m.globalSem.Release(1)
		return nil, fmt.Errorf("manager: server %q not registered", entry.Server)
	}
	if perSem != nil {
		if err := perSem.Acquire(ctx, 1); err != nil {
			m.globalSem.Release(1)
			return nil, fmt.Errorf("manager: per-server concurrency: %w", err)
		}
	}

	start := time.Now()
	var events <-chan rpc.ToolEvent
	var err error
	if dedicated {
		events, err = lane.Submit(ctx, m.lane, func() (<-chan rpc.ToolEvent, error) {
			return client.CallToolAsync(ctx, entry.Name, args, timeoutSeconds)
		})
	} else {
		events, err = client.CallToolAsync(ctx, entry.Name, args, timeoutSeconds)
	}
	if err != nil {
		if perSem != nil {
			perSem.Release(1)
		}
		m.globalSem.Release(1)
		m.recorder.RecordToolCall(ctx, entry.Server, entry.Name, time.Since(start), err)
		return nil, err
	}

	// Release the semaphores once the terminal event has passed through,
	// by wrapping the channel in a small forwarding goroutine.
	out := make(chan rpc.ToolEvent, 8)
	go func() {
		defer close(out)
		defer m.globalSem.Release(1)
		if perSem != nil {
			defer perSem.Release(1)
		}
		var callErr error
		for ev := range events {
			if ev.Result != nil && ev.Result.Error != nil {
				callErr = ev.Result.Error
			}
			out <- ev
		}
		m.recorder.RecordToolCall(ctx, entry.Server, entry.Name, time.Since(start), callErr)
	}()
	return out, nil
}

// Close disconnects every server and stops the execution lane.
func (m *Manager) Close() error {
	m.mu.RLock()
	clients := make([]*toolclient.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.lane.Stop()
	return firstErr
}

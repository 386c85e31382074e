// Package toolclient manages the lifecycle of a single tool server
// connection: handshake, tool-list caching, health monitoring, and
// reconnection with backoff.
package toolclient

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/rpc"
)

// State is one point in the tool server client's lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateInitializing
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Config controls a Client's handshake identity, caching, and reconnection
// behavior.
type Config struct {
	ServerName       string
	ClientName       string
	ClientVersion    string
	ToolListTTL      time.Duration
	HealthInterval   time.Duration
	HealthFailureCap int // consecutive ping failures before Degraded
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxReconnects    int // 0 = unlimited
}

func (c *Config) setDefaults() {
	if c.ClientName == "" {
		c.ClientName = "agentrun"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "dev"
	}
	if c.ToolListTTL <= 0 {
		c.ToolListTTL = 5 * time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 15 * time.Second
	}
	if c.HealthFailureCap <= 0 {
		c.HealthFailureCap = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
}

// Client owns the full lifecycle of one tool server: connect, handshake,
// tool-list caching, health checks, and reconnection. It delegates the
// transport-specific handshake and call mechanics to a Backend, built fresh
// by factory on every (re)connect.
type Client struct {
	cfg     Config
	factory BackendFactory

	state atomic.Int32

	mu         sync.RWMutex
	backend    Backend
	tools      []protocol.ToolDescriptorWire
	toolsAt    time.Time
	reconnects int

	stopHealth chan struct{}
	wg         sync.WaitGroup

	consecutiveFailures atomic.Int32
}

// New constructs a Client. Connect must be called before use.
func New(cfg Config, factory BackendFactory) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg, factory: factory}
}

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		slog.Info("tool client state transition", "server", c.cfg.ServerName, "from", old, "to", s)
	}
}

// Connect performs the full handshake sequence through a fresh Backend:
// connect, initialize, tools/list, then subscribes to tools/changed where
// the backend supports it.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	backend := c.factory()
	c.setState(StateInitializing)

	tools, err := backend.Connect(ctx, c.cfg.ClientName, c.cfg.ClientVersion)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("toolclient %s: connect: %w", c.cfg.ServerName, err)
	}

	backend.OnToolsChanged(func() {
		c.mu.Lock()
		c.toolsAt = time.Time{}
		c.mu.Unlock()
		slog.Info("tool client cache invalidated by tools/changed", "server", c.cfg.ServerName)
	})

	c.mu.Lock()
	c.backend = backend
	c.tools = tools
	c.toolsAt = time.Now()
	c.mu.Unlock()

	c.consecutiveFailures.Store(0)
	c.setState(StateReady)

	c.stopHealth = make(chan struct{})
	c.wg.Add(1)
	go c.healthLoop()

	return nil
}

// Tools returns the cached tool list, refreshing it first if the TTL has
// elapsed and the client is Ready.
func (c *Client) Tools(ctx context.Context) ([]protocol.ToolDescriptorWire, error) {
	c.mu.RLock()
	fresh := time.Since(c.toolsAt) < c.cfg.ToolListTTL
	tools := c.tools
	backend := c.backend
	c.mu.RUnlock()

	if fresh || c.State() != StateReady || backend == nil {
		return tools, nil
	}

	refreshed, err := backend.ListTools(ctx)
	if err != nil {
		return tools, nil // serve stale cache on refresh failure
	}

	c.mu.Lock()
	c.tools = refreshed
	c.toolsAt = time.Now()
	c.mu.Unlock()
	return refreshed, nil
}

// CallTool dispatches a synchronous tool call. Refuses to dial new work
// while Degraded or Disconnected.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error) {
	if c.State() != StateReady {
		return nil, fmt.Errorf("toolclient %s: not ready (state=%s)", c.cfg.ServerName, c.State())
	}
	c.mu.RLock()
	backend := c.backend
	c.mu.RUnlock()
	return backend.CallTool(ctx, name, args, timeoutSeconds)
}

// CallToolAsync dispatches a tool call, downgrading to synchronous
// internally when the server lacks progress support.
func (c *Client) CallToolAsync(ctx context.Context, name string, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error) {
	if c.State() != StateReady {
		return nil, fmt.Errorf("toolclient %s: not ready (state=%s)", c.cfg.ServerName, c.State())
	}
	c.mu.RLock()
	backend := c.backend
	c.mu.RUnlock()
	return backend.CallToolAsync(ctx, name, args, timeoutSeconds)
}

func (c *Client) healthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealth:
			return
		case <-ticker.C:
			c.mu.RLock()
			backend := c.backend
			c.mu.RUnlock()
			if backend == nil {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthInterval/2)
			err := backend.Ping(ctx)
			cancel()

			if err != nil {
				n := c.consecutiveFailures.Add(1)
				slog.Warn("tool client health check failed", "server", c.cfg.ServerName, "consecutive", n, "error", err)
				if int(n) >= c.cfg.HealthFailureCap && c.State() == StateReady {
					c.setState(StateDegraded)
					go c.reconnectLoop()
					return
				}
				continue
			}
			c.consecutiveFailures.Store(0)
		}
	}
}

func (c *Client) reconnectLoop() {
	ctx := context.Background()
	attempt := 0
	for {
		if c.cfg.MaxReconnects > 0 && attempt >= c.cfg.MaxReconnects {
			c.setState(StateDisconnected)
			slog.Error("tool client exhausted reconnect attempts", "server", c.cfg.ServerName, "attempts", attempt)
			return
		}

		delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, attempt)
		time.Sleep(delay)
		attempt++

		c.mu.Lock()
		if c.backend != nil {
			_ = c.backend.Close()
			c.backend = nil
		}
		c.mu.Unlock()

		if err := c.Connect(ctx); err != nil {
			slog.Warn("tool client reconnect attempt failed", "server", c.cfg.ServerName, "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		slog.Info("tool client reconnected", "server", c.cfg.ServerName, "attempt", attempt)
		return
	}
}

func backoffDelay(base, capDelay time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d <= 0 || d > capDelay {
		d = capDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d - jitter/2 + jitter
}

// Close stops the health loop and closes the underlying backend.
func (c *Client) Close() error {
	if c.stopHealth != nil {
		select {
		case <-c.stopHealth:
		default:
			close(c.stopHealth)
		}
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	c.setState(StateDisconnected)
	return err
}

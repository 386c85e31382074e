// Package service is the process-wide entry point used by both the CLI
// driver and the HTTP server: it owns the one server manager, one tool
// registry, and one confirmation coordinator the rest of the system
// treats as singletons, constructed here rather than as package-level
// globals.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/aiprovider"
	"github.com/QUSEIT/simacode-sub000/pkg/config"
	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/engine"
	"github.com/QUSEIT/simacode-sub000/pkg/evaluator"
	"github.com/QUSEIT/simacode-sub000/pkg/localtool"
	"github.com/QUSEIT/simacode-sub000/pkg/manager"
	"github.com/QUSEIT/simacode-sub000/pkg/observability"
	"github.com/QUSEIT/simacode-sub000/pkg/planner"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/QUSEIT/simacode-sub000/pkg/toolbox"
	"github.com/QUSEIT/simacode-sub000/pkg/toolclient"
	"github.com/QUSEIT/simacode-sub000/pkg/transport"
)

// Runtime holds the constructed-once, process-wide collaborators. Build it
// with New and Close it at shutdown.
type Runtime struct {
	Manager       *manager.Manager
	Tools         *toolbox.Registry
	Confirm       *confirm.Coordinator
	Store         session.Store
	Cfg           *config.Config
	Observability *observability.Manager

	provider aiprovider.Provider
}

// New constructs every singleton from cfg: the server manager (one client
// per enabled server), the tool registry (built-ins plus discovered
// remote tools), the confirmation coordinator, the session store (file or
// MySQL, per cfg.Session.Backend),
// the observability manager, and the configured AI provider.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, err := buildSessionStore(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("service: session store: %w", err)
	}

	obs, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("service: observability: %w", err)
	}

	provider, err := buildProvider(ctx, cfg.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("service: ai provider: %w", err)
	}

	laneWorkers := 0
	for _, sc := range cfg.Servers {
		if sc.Enabled && sc.DedicatedLane {
			laneWorkers = 1
			break
		}
	}
	mgr := manager.New(cfg.Tools.MaxConcurrency, laneWorkers)
	mgr.SetRecorder(obs.Recorder())

	for name, sc := range cfg.Servers {
		if !sc.Enabled {
			continue
		}
		spec, err := serverSpec(name, sc)
		if err != nil {
			return nil, fmt.Errorf("service: server %s: %w", name, err)
		}
		if err := mgr.AddServer(ctx, spec); err != nil {
			return nil, fmt.Errorf("service: connecting server %s: %w", name, err)
		}
	}

	tools := toolbox.New(mgr)
	if err := tools.RegisterLocal(localtool.NewFileTool(".")); err != nil {
		return nil, fmt.Errorf("service: registering built-in file tool: %w", err)
	}
	if err := tools.RegisterLocal(localtool.NewShellTool()); err != nil {
		return nil, fmt.Errorf("service: registering built-in shell tool: %w", err)
	}

	return &Runtime{
		Manager:       mgr,
		Tools:         tools,
		Confirm:       confirm.New(),
		Store:         store,
		Cfg:           cfg,
		Observability: obs,
		provider:      provider,
	}, nil
}

// Close tears down every owned client connection and flushes observability.
func (r *Runtime) Close() error {
	_ = r.Observability.Shutdown(context.Background())
	if closer, ok := r.Store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return r.Manager.Close()
}

// buildSessionStore selects the session.Store backend named by cfg.Backend.
func buildSessionStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "", "file":
		return session.NewFileStore(cfg.Dir)
	case "mysql":
		return session.NewSQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func serverSpec(name string, sc config.ServerConfig) (manager.ServerSpec, error) {
	switch sc.Transport {
	case "websocket":
		return manager.ServerSpec{
			Name: name,
			Transport: func() transport.Transport {
				return transport.NewWebSocketTransport(transport.WebSocketConfig{URL: sc.URL})
			},
			MaxConcurrent: sc.MaxConcurrent,
			DedicatedLane: sc.DedicatedLane,
			ClientConfig:  toolclient.Config{ServerName: name},
		}, nil
	case "", "stdio":
		env := make([]string, 0, len(sc.Env))
		for k, v := range sc.Env {
			env = append(env, k+"="+v)
		}
		return manager.ServerSpec{
			Name: name,
			Backend: func() toolclient.Backend {
				return toolclient.NewStdioMCPBackend(toolclient.StdioMCPConfig{
					Command: sc.Command,
					Args:    sc.Args,
					Env:     env,
				})
			},
			MaxConcurrent: sc.MaxConcurrent,
			DedicatedLane: sc.DedicatedLane,
			ClientConfig:  toolclient.Config{ServerName: name},
		}, nil
	default:
		return manager.ServerSpec{}, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}

func buildProvider(ctx context.Context, rc config.ReasoningConfig) (aiprovider.Provider, error) {
	timeout := time.Duration(rc.TimeoutSec) * time.Second
	providerType := rc.Provider
	if providerType == "" {
		providerType = "openai"
	}

	apiKey := rc.APIKey
	if apiKey == "" {
		apiKey = config.GetProviderAPIKey(providerType)
	}

	switch providerType {
	case "anthropic":
		return aiprovider.NewAnthropicProvider(aiprovider.AnthropicConfig{
			Host: rc.Host, APIKey: apiKey, Model: rc.Model, MaxTokens: rc.MaxTokens, Timeout: timeout,
		}), nil
	case "gemini":
		return aiprovider.NewGeminiProvider(ctx, aiprovider.GeminiConfig{APIKey: apiKey, Model: rc.Model})
	case "openai":
		return aiprovider.NewOpenAIProvider(aiprovider.OpenAIConfig{
			Host: rc.Host, APIKey: apiKey, Model: rc.Model, Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown reasoning.provider %q", rc.Provider)
	}
}

// NewEngine constructs a fresh Engine for a new session bound to input,
// wiring it to r's shared singletons per r.Cfg.
func (r *Runtime) NewEngine(sessionID, input string) *engine.Engine {
	return r.engineFor(session.New(sessionID, input, r.Cfg.React.MaxReplans))
}

// ResumeEngine rebuilds an Engine around a session loaded from the store
// (e.g. to resume after a process restart), rather than a freshly created
// one.
func (r *Runtime) ResumeEngine(sess *session.Session) *engine.Engine {
	return r.engineFor(sess)
}

func (r *Runtime) engineFor(sess *session.Session) *engine.Engine {
	p := planner.New(r.provider, r.Tools, planner.Config{})
	var eval evaluator.Evaluator = evaluator.NewAIEvaluator(r.provider, r.Cfg.Reasoning.UseAIJudge)

	e := engine.New(sess, r.Store, p, r.Tools, r.Confirm, eval, engine.Config{
		ConfirmByHuman:             r.Cfg.React.ConfirmByHuman,
		ConfirmationTimeoutSeconds: r.Cfg.React.ConfirmationTimeoutSeconds,
		AllowTaskModification:      r.Cfg.React.AllowTaskModification,
		AutoConfirmSafeTasks:       r.Cfg.React.AutoConfirmSafeTasks,
		MaxReplans:                 r.Cfg.React.MaxReplans,
		ToolTimeoutSeconds:         r.Cfg.Tools.ServerTimeoutSeconds,
		AsyncToolTimeoutSeconds:    r.Cfg.Tools.AsyncDefaultTimeoutSeconds,
	})
	e.SetRecorder(r.Observability.Recorder())
	return e
}

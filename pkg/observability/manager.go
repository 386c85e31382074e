// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Manager owns the tracer provider, meter provider, and Recorder built
// from one Config. It is constructed once at process startup and torn
// down at shutdown, the same shape as the rest of the process's
// singletons (see pkg/service.Runtime) rather than a package-level
// global.
type Manager struct {
	cfg      *Config
	shutdown func(context.Context) error
	recorder *Recorder
}

// NewManager builds tracing and metrics from cfg. A nil cfg, or one with
// both halves disabled, still returns a usable Manager whose Recorder is
// backed by no-op providers.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("observability: invalid config: %w", err)
	}

	tp, shutdown, err := newTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("observability: tracing: %w", err)
	}
	mp, err := newMeterProvider(cfg.Metrics)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("observability: metrics: %w", err)
	}

	rec, err := newRecorder(tp, mp)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}

	if cfg.Tracing.Enabled {
		slog.Info("observability: tracing initialized", "exporter", cfg.Tracing.Exporter, "endpoint", cfg.Tracing.Endpoint)
	}
	if cfg.Metrics.Enabled {
		slog.Info("observability: metrics initialized", "namespace", cfg.Metrics.Namespace, "endpoint", cfg.Metrics.Endpoint)
	}

	return &Manager{cfg: cfg, shutdown: shutdown, recorder: rec}, nil
}

// Recorder returns the Manager's Recorder. Safe to call on a nil Manager;
// returns a nil *Recorder, whose methods are all no-ops.
func (m *Manager) Recorder() *Recorder {
	if m == nil {
		return nil
	}
	return m.recorder
}

// MetricsHandler returns the HTTP handler for the metrics endpoint, or a
// 503 handler if metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil || m.cfg == nil || !m.cfg.Metrics.Enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return MetricsHandler()
}

// MetricsEndpoint returns the configured metrics path.
func (m *Manager) MetricsEndpoint() string {
	if m == nil || m.cfg == nil || m.cfg.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.cfg.Metrics.Endpoint
}

// Shutdown flushes and tears down the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}

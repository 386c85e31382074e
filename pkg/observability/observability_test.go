package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewManagerDisabledByDefault(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{})
	require.NoError(t, err)
	require.NotNil(t, m.Recorder())

	rr := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNewManagerMetricsEnabled(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{Metrics: MetricsConfig{Enabled: true, Namespace: "test"}})
	require.NoError(t, err)

	m.Recorder().RecordToolCall(context.Background(), "search", "lookup", 10*time.Millisecond, nil)

	rr := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "test_tool_calls")
}

func TestRecorderNilSafe(t *testing.T) {
	var r *Recorder
	r.RecordTransition(context.Background(), "sess-1", "idle", "planning")
	r.RecordToolCall(context.Background(), "search", "lookup", time.Millisecond, nil)
	r.RecordHTTPRequest(context.Background(), http.MethodGet, "/v1/sessions", 200, time.Millisecond)

	ctx, span := r.StartSpan(context.Background(), "noop")
	require.NotNil(t, ctx)
	span.End() // must not panic

	handler := r.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestConfigValidateRejectsUnknownExporter(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Exporter: "zipkin"}}
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRequiresEndpointForOTLP(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true, Exporter: "otlp"}}
	require.Error(t, cfg.Validate())
}

package service

import (
	"context"
	"testing"

	"github.com/QUSEIT/simacode-sub000/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestServerSpecStdioUsesMCPBackend(t *testing.T) {
	spec, err := serverSpec("search", config.ServerConfig{
		Command: "search-server",
		Args:    []string{"--mode", "stdio"},
		Env:     map[string]string{"API_KEY": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, "search", spec.Name)
	require.NotNil(t, spec.Backend)
}

func TestServerSpecWebSocket(t *testing.T) {
	spec, err := serverSpec("remote", config.ServerConfig{
		Transport: "websocket",
		URL:       "ws://localhost:9000/mcp",
	})
	require.NoError(t, err)
	require.Equal(t, "remote", spec.Name)
	require.NotNil(t, spec.Transport)
}

func TestServerSpecRejectsUnknownTransport(t *testing.T) {
	_, err := serverSpec("bad", config.ServerConfig{Transport: "carrier-pigeon"})
	require.Error(t, err)
}

func TestBuildProviderRejectsUnknownProvider(t *testing.T) {
	_, err := buildProvider(context.Background(), config.ReasoningConfig{Provider: "does-not-exist"})
	require.Error(t, err)
}

func TestBuildProviderDefaultsToOpenAI(t *testing.T) {
	p, err := buildProvider(context.Background(), config.ReasoningConfig{Host: "https://api.openai.com", APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, "openai:gpt-4o", p.Name())
}

func TestBuildSessionStoreDefaultsToFile(t *testing.T) {
	store, err := buildSessionStore(config.SessionConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestBuildSessionStoreRejectsUnknownBackend(t *testing.T) {
	_, err := buildSessionStore(config.SessionConfig{Backend: "dynamo"})
	require.Error(t, err)
}

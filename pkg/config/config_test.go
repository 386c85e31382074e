package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "agentrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenNoFilesExist(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, 120, cfg.React.ConfirmationTimeoutSeconds)
	require.Equal(t, 3, cfg.React.MaxReplans)
	require.Equal(t, int64(10), cfg.Tools.MaxConcurrency)
	require.Equal(t, "openai", cfg.Reasoning.Provider)
	require.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadDecodesProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, `
react:
  confirm_by_human: true
  max_replans: 5
servers:
  search:
    transport: stdio
    enabled: true
    command: search-server
reasoning:
  provider: anthropic
  model: claude-3
`)

	cfg, err := Load(Options{ProjectFile: path})
	require.NoError(t, err)

	require.True(t, cfg.React.ConfirmByHuman)
	require.Equal(t, 5, cfg.React.MaxReplans)
	require.Equal(t, "anthropic", cfg.Reasoning.Provider)
	require.Equal(t, "claude-3", cfg.Reasoning.Model)

	sc, ok := cfg.Servers["search"]
	require.True(t, ok)
	require.Equal(t, "search-server", sc.Command)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("AGENTRUN_TEST_API_KEY", "secret-key")
	dir := t.TempDir()
	path := writeProjectFile(t, dir, `
reasoning:
  provider: openai
  api_key: ${AGENTRUN_TEST_API_KEY}
`)

	cfg, err := Load(Options{ProjectFile: path})
	require.NoError(t, err)
	require.Equal(t, "secret-key", cfg.Reasoning.APIKey)
}

func TestLoadOverridesWinOverProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, `
reasoning:
  provider: openai
  model: gpt-4
`)

	cfg, err := Load(Options{
		ProjectFile: path,
		Overrides: map[string]any{
			"reasoning": map[string]any{"model": "gpt-4o"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.Reasoning.Model)
	require.Equal(t, "openai", cfg.Reasoning.Provider)
}

func TestLoadRejectsEnabledServerMissingCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, `
servers:
  broken:
    transport: stdio
    enabled: true
`)

	_, err := Load(Options{ProjectFile: path})
	require.Error(t, err)
}

func TestLoadRejectsMySQLSessionBackendWithoutDSN(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, `
session:
  backend: mysql
`)

	_, err := Load(Options{ProjectFile: path})
	require.Error(t, err)
}

func TestLoadRejectsUnreadableExplicitProjectFile(t *testing.T) {
	_, err := Load(Options{ProjectFile: "/nonexistent/does-not-exist.yaml"})
	require.Error(t, err)
}

func TestMergeMapsDeepMergesNestedSections(t *testing.T) {
	dst := map[string]any{
		"react": map[string]any{"confirm_by_human": true, "max_replans": 3},
	}
	src := map[string]any{
		"react": map[string]any{"max_replans": 7},
	}
	mergeMaps(dst, src)

	react := dst["react"].(map[string]any)
	require.Equal(t, true, react["confirm_by_human"])
	require.Equal(t, 7, react["max_replans"])
}

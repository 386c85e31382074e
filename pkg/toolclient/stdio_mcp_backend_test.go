package toolclient

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestToolResultFromMCPCollectsTextContent(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "hello"},
		},
	}
	result := toolResultFromMCP(resp)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "hello", result.Content[0].Text)
}

func TestToolResultFromMCPPreservesIsError(t *testing.T) {
	resp := &mcp.CallToolResult{IsError: true}
	result := toolResultFromMCP(resp)
	require.True(t, result.IsError)
}

func TestConvertMCPSchemaRoundTrips(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]any{"path": map[string]any{"type": "string"}},
		Required:   []string{"path"},
	}
	out := convertMCPSchema(schema)
	require.Equal(t, "object", out["type"])
	required, ok := out["required"].([]any)
	require.True(t, ok)
	require.Equal(t, "path", required[0])
}

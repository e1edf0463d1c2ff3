package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("arc-engine", "test", zap.NewNop())
	require.NotNil(t, s.MCP())
	require.NotNil(t, s.NewStreamableHTTPServer())

	s.RegisterTool(mcp.NewTool("echo", mcp.WithDescription("Echo")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("hi"), nil
		})

	result := s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	data, err := json.Marshal(result)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Result.Tools, 1)
	assert.Equal(t, "echo", resp.Result.Tools[0].Name)
}

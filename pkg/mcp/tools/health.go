package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Pinger reports warehouse reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Warehouse string `json:"warehouse,omitempty"`
}

// RegisterHealthTool adds a health tool returning the server version and,
// when warehouse is non-nil, whether the warehouse answers a ping.
func RegisterHealthTool(s *server.MCPServer, version string, warehouse Pinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if warehouse != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			result.Warehouse = "ok"
			if err := warehouse.Ping(pingCtx); err != nil {
				result.Status = "degraded"
				result.Warehouse = "unreachable"
			}
		}
		return jsonResult(result)
	})
}

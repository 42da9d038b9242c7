package engine

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolGateway is the engine's view of the dataset reader server.
// *mcp.Gateway satisfies it; tests substitute fakes.
type ToolGateway interface {
	Tools() []mcptypes.Tool
	HasTool(name string) bool
	CallTool(ctx context.Context, toolName string, args map[string]any) (*mcptypes.CallToolResult, error)
}

package mcp

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Gateway is the engine-facing handle to the dataset reader server.
// It wraps the server process and exposes tool listing plus invocation.
type Gateway struct {
	proc *ServerProcess
}

// Connect starts the reader server and returns a gateway bound to it.
func Connect(ctx context.Context, cfg ServerConfig) (*Gateway, error) {
	proc, err := StartServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Gateway{proc: proc}, nil
}

// Tools returns the tools advertised by the reader server, already capped
// at MaxTools.
func (g *Gateway) Tools() []mcptypes.Tool {
	if g == nil || g.proc == nil {
		return nil
	}
	return g.proc.Tools
}

// HasTool reports whether the reader server advertises the named tool.
func (g *Gateway) HasTool(name string) bool {
	for _, t := range g.Tools() {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes a tool on the reader server.
func (g *Gateway) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcptypes.CallToolResult, error) {
	if g == nil || g.proc == nil || !g.proc.Running {
		return nil, fmt.Errorf("reader server not running")
	}

	req := mcptypes.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	result, err := g.proc.Client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", toolName, err)
	}
	return result, nil
}

// Shutdown stops the reader server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g == nil || g.proc == nil {
		return nil
	}
	return g.proc.Shutdown(ctx)
}

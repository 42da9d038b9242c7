package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	globalconfig "storyforge/config"
)

// StartServer spawns the reader server over stdio, initializes the MCP
// session and fetches its tool list.
//
// The returned ServerProcess owns the child process. Callers must invoke
// Shutdown when finished, including on error paths after a successful start.
func StartServer(ctx context.Context, cfg ServerConfig) (*ServerProcess, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("reader server command is empty")
	}

	env := configToEnv(cfg.Env)
	var capturedCmd *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd

		if globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] StartServer: created process for '%s' (will have PID after start)", command)
		}

		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		env,
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start reader server %s: %w", cfg.Command, err)
	}

	if capturedCmd != nil && capturedCmd.Process != nil && globalconfig.DebugLog != nil {
		globalconfig.DebugLog.Printf("[MCP] Started reader server with PID %d", capturedCmd.Process.Pid)
	}

	proc := &ServerProcess{
		Command: cfg.Command,
		Args:    cfg.Args,
		Process: capturedCmd,
		Client:  mcpClient,
		Running: true,
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "storyforge",
				Version: "1.0.0",
			},
		},
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		proc.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize reader server: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		proc.Shutdown(ctx)
		return nil, fmt.Errorf("failed to list reader server tools: %w", err)
	}

	proc.Tools = toolsResult.Tools
	if len(proc.Tools) > MaxTools {
		if globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] Reader server advertised %d tools, truncating to %d", len(proc.Tools), MaxTools)
		}
		proc.Tools = proc.Tools[:MaxTools]
	}

	return proc, nil
}

// RefreshTools re-fetches the tool list from the running server.
func (p *ServerProcess) RefreshTools(ctx context.Context) error {
	if !p.Running || p.Client == nil {
		return fmt.Errorf("reader server not running")
	}

	toolsResult, err := p.Client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to refresh tools: %w", err)
	}

	tools := toolsResult.Tools
	if len(tools) > MaxTools {
		tools = tools[:MaxTools]
	}
	p.Tools = tools
	return nil
}

// Shutdown closes the MCP client and kills the child process if the close
// hangs. Safe to call more than once.
func (p *ServerProcess) Shutdown(ctx context.Context) error {
	if !p.Running {
		return nil
	}
	p.Running = false

	clientClosed := false
	if p.Client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		if globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] Shutdown: attempting to close reader server client (1s timeout)")
		}

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- p.Client.Close()
		}()

		select {
		case err := <-closeDone:
			if err != nil {
				if globalconfig.DebugLog != nil {
					globalconfig.DebugLog.Printf("[MCP] Shutdown: error closing client: %v", err)
				}
			} else {
				clientClosed = true
			}
		case <-closeCtx.Done():
			// Close is hanging, fall through to kill
			if globalconfig.DebugLog != nil {
				globalconfig.DebugLog.Printf("[MCP] Shutdown: close timeout, killing process")
			}
		}
	}

	if !clientClosed && p.Process != nil && p.Process.Process != nil {
		if err := p.Process.Process.Kill(); err != nil {
			if globalconfig.DebugLog != nil {
				globalconfig.DebugLog.Printf("[MCP] Shutdown: error killing process (PID %d): %v", p.Process.Process.Pid, err)
			}
			return fmt.Errorf("failed to kill reader server: %w", err)
		}
	}

	if globalconfig.DebugLog != nil {
		globalconfig.DebugLog.Printf("[MCP] Shutdown: reader server stopped")
	}

	return nil
}

func configToEnv(envMap map[string]string) []string {
	// Start with the current process environment to preserve PATH
	env := os.Environ()

	for k, v := range envMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return env
}

package mcp

import (
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MaxTools caps the number of tool definitions forwarded to a model in a
// single request. Servers advertising more than this are truncated.
const MaxTools = 128

// ServerConfig describes how to launch the dataset reader server over stdio.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// ServerProcess tracks a running reader server and its advertised tools.
type ServerProcess struct {
	Command string
	Args    []string
	Process *exec.Cmd
	Client  *client.Client
	Tools   []mcptypes.Tool
	Running bool
}

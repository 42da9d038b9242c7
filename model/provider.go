package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"storyforge/ollama"
)

// Provider abstracts LLM provider implementations (Ollama, OpenAI,
// OpenRouter, Anthropic) using provider-agnostic types from the model layer.
//
// The interface lives in the model package (not provider) to avoid import
// cycles: provider implementations import model, and the engine uses the
// Provider interface without importing the provider package.
type Provider interface {
	// Chat sends messages and streams responses back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with available tools and streams responses.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the currently selected model name (InternalName for API calls).
	GetModel() string

	// GetDisplayName returns the model name formatted for display.
	// For OpenRouter this strips the vendor prefix.
	GetDisplayName() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of streamed response. A single
// invocation carries either a text fragment, tool-call requests, or both;
// the stream interleaves the two kinds.
type StreamCallback func(chunk string, toolCalls []ToolCall) error

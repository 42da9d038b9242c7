// Package provider implements the LLM provider backends used to drive data
// story generation.
//
// Storyforge supports multiple LLM providers (Ollama, OpenAI, OpenRouter,
// Anthropic) through the common model.Provider interface. The engine remains
// provider-agnostic: it assembles provider-neutral messages and MCP tool
// definitions, and each backend here handles the conversion into its own
// wire format plus the streaming of interleaved text fragments and tool-call
// requests back through a model.StreamCallback.
//
// # Type Conversions
//
// The provider layer owns all conversions between storyforge's neutral types
// and provider-specific SDK types. See conversions.go and the MCP tool
// format converters in the mcp package.
//
// # Usage
//
//	cfg := provider.Config{
//	    Type:  provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model: "llama3.1",
//	}
//	p, err := provider.NewProvider(cfg)
//	if err != nil {
//	    // handle error
//	}
//	err = p.ChatWithTools(ctx, messages, tools, callback)
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // For OpenAI/OpenRouter/Anthropic (unused for Ollama)
}

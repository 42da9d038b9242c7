package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"storyforge/mcp"
	"storyforge/model"
	"storyforge/ollama"
)

// OpenAIProvider implements the Provider interface using OpenAI's official API.
// It uses the official OpenAI Go SDK for direct OpenAI API access.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini" // Default to affordable model
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	withInstructions := messages
	if len(tools) > 0 {
		instruction := model.Message{
			Role:    "system",
			Content: buildOpenAIToolInstructions(tools),
		}
		withInstructions = append([]model.Message{instruction}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(withInstructions),
		Model:    openai.ChatModel(p.model),
		Tools:    mcp.ConvertMCPToolsToOpenAIFormat(tools),
	}

	if err := streamChatCompletion(ctx, p.client, params, callback); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}
	return nil
}

// streamChatCompletion runs one streaming chat completion against an
// OpenAI-compatible endpoint, forwarding content deltas and finished tool
// calls to the callback. OpenAI and OpenRouter speak the same wire protocol,
// so both providers share this loop.
//
// Some models emit tool calls as text instead of structured output. When the
// stream finishes without a structured tool call, the accumulated content is
// scanned for leaked JSON and XML call shapes.
func streamChatCompletion(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, callback model.StreamCallback) error {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	var toolCallsSeen bool
	var content strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			toolCallsSeen = true
			if callback != nil {
				callback("", []model.ToolCall{{
					Name:      tool.Name,
					Arguments: ParseToolArguments(tool.Arguments),
				}})
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			if callback != nil {
				callback(delta, nil)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	if !toolCallsSeen && callback != nil {
		full := content.String()
		if leaked := ParseLeakedJSONToolCalls(full); len(leaked) > 0 {
			callback("", leaked)
		}
		if leaked := ParseLeakedXMLToolCalls(full); len(leaked) > 0 {
			callback("", leaked)
		}
	}

	return nil
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Size:         0, // OpenAI doesn't provide size info
			Provider:     "openai",
		})
	}

	return result, nil
}

// GetModel implements Provider.GetModel.
// Returns the full model name for API calls.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// GetDisplayName implements Provider.GetDisplayName.
// Returns the model name for display (same as GetModel for OpenAI).
func (p *OpenAIProvider) GetDisplayName() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}

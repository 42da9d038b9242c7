package provider

import (
	"encoding/json"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"storyforge/model"
)

// ConvertToOllamaMessages converts model.Message to Ollama api.Message.
//
// This conversion is used when sending messages to the Ollama provider. It
// performs a simple field mapping since both types have compatible Role and
// Content fields.
//
// Note: the Timestamp field from model.Message is not preserved, as the
// Ollama API does not support it. Timestamps are managed at the engine
// layer, not the provider layer.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// ConvertToOpenAIMessages converts model.Message to the OpenAI message union.
// OpenRouter accepts the same shapes. Tool results travel as user messages
// because the engine does not track the call IDs the tool role requires.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "system":
			result[i] = openai.SystemMessage(msg.Content)
		case "assistant":
			result[i] = openai.AssistantMessage(msg.Content)
		default: // "user", "tool" and anything unrecognized
			result[i] = openai.UserMessage(msg.Content)
		}
	}

	return result
}

// ParseToolArguments parses a JSON arguments string into a map.
// Used by the OpenAI and OpenRouter providers for tool call parsing.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		// If parsing fails, return empty map
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama api.ToolCall to
// provider-agnostic model.ToolCall.
//
// This conversion abstracts away Ollama-specific tool call structures, so
// the engine layer can work with tool calls the same way regardless of
// which provider produced them.
//
// Returns nil if the input is nil or empty, maintaining the same nil
// semantics as the Ollama API.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = model.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}

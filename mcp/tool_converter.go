package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// The reader service advertises a single query tool whose input schema is
// generated on the server side. That keeps the shapes the converters below
// must understand narrow: an object schema with nested $defs, and optional
// fields emitted as ["T","null"] type unions or anyOf pairs with a null arm.

// ConvertMCPToolsToOllama converts the gateway's tool list to the Ollama
// API tool format. Returns nil for an empty list so the chat request omits
// the tools field entirely.
func ConvertMCPToolsToOllama(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  ollamaParameters(tool.InputSchema),
			},
		})
	}
	return out
}

func ollamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schema.Type,
		Required:   schema.Required,
		Defs:       schema.Defs,
		Properties: make(map[string]api.ToolProperty, len(schema.Properties)),
	}
	for name, raw := range schema.Properties {
		params.Properties[name] = ollamaProperty(raw)
	}
	return params
}

// ollamaProperty reduces one JSON Schema property to the flat shape the
// Ollama API accepts. Optional fields arrive as type unions or anyOf pairs
// that include "null"; local models handle a single concrete type far more
// reliably, so those collapse to their first non-null member.
func ollamaProperty(raw any) api.ToolProperty {
	m, ok := raw.(map[string]any)
	if !ok {
		return api.ToolProperty{}
	}

	prop := api.ToolProperty{}
	if t := concreteType(m); t != "" {
		prop.Type = api.PropertyType{t}
	}
	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	// Items for array properties, passed through untouched so $ref entries
	// keep pointing at the schema's $defs.
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	return prop
}

// concreteType picks the single type a property should advertise.
func concreteType(m map[string]any) string {
	switch t := m["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}

	if anyOf, ok := m["anyOf"].([]any); ok {
		for _, member := range anyOf {
			mm, ok := member.(map[string]any)
			if !ok {
				continue
			}
			if s := concreteType(mm); s != "" && s != "null" {
				return s
			}
		}
	}

	return ""
}

// schemaAsMap round-trips an input schema through JSON so the whole shape,
// $defs included, lands in the generic map the OpenAI SDK expects.
func schemaAsMap(schema mcptypes.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// ConvertMCPToolsToOpenAIFormat converts the gateway's tool list to the
// OpenAI function-tool format. OpenRouter speaks the same API, so both
// providers share this.
func ConvertMCPToolsToOpenAIFormat(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(schemaAsMap(tool.InputSchema)),
			},
		))
	}
	return out
}

// ConvertMCPToolsToAnthropicFormat converts the gateway's tool list to the
// Anthropic format, which wants the schema under input_schema.
func ConvertMCPToolsToAnthropicFormat(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			// Type defaults to "object" when omitted
			Properties: tool.InputSchema.Properties,
			Required:   tool.InputSchema.Required,
		}
		if tool.InputSchema.Defs != nil {
			schema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, param)
	}
	return out
}

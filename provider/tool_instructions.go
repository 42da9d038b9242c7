package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildOpenAIToolInstructions creates tool instructions optimized for OpenAI models.
// GPT models are sophisticated and prefer brief, direct guidance.
func buildOpenAIToolInstructions(tools []mcptypes.Tool) string {
	toolNames := []string{}
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When exploring a dataset requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Repeat a query you already ran with the same arguments",
		"",
		"Example:",
		"User: 'Explore sales.csv'",
		"You: [call the query tool with SELECT * FROM base LIMIT 10]",
		"NOT: 'I can query datasets. What would you like?'",
	}, "\n")
}

// buildOpenRouterToolInstructions creates tool instructions for OpenRouter models.
// OpenRouter serves a wide range of models, so the instructions are more
// explicit than the OpenAI variant.
func buildOpenRouterToolInstructions(tools []mcptypes.Tool) string {
	toolNames := []string{}
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"You have access to the tools above via native tool calling.",
		"When exploring a dataset requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"Use the native tool-call mechanism. NEVER write tool calls as",
		"plain text, JSON blobs, or XML tags in your response.",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Repeat a query you already ran with the same arguments",
	}, "\n")
}

// buildAnthropicToolInstructions creates minimal tool instructions for Claude models.
// Claude is highly capable but still needs explicit execution guidance.
func buildAnthropicToolInstructions(tools []mcptypes.Tool) string {
	toolNames := []string{}
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When exploring a dataset requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Repeat a query you already ran with the same arguments",
	}, "\n")
}

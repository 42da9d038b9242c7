package engine

import (
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"storyforge/mcp"
)

// resultText extracts the textual payload of a tool result. Servers answer
// with text content blocks; some emit structured content instead, which is
// flattened here so everything downstream sees one string shape.
func resultText(result *mcptypes.CallToolResult) string {
	if text := mcp.ToolResultText(result); text != "" {
		return text
	}
	if result == nil {
		return ""
	}
	return flattenContent(result.StructuredContent)
}

// flattenContent normalizes heterogeneous message content into a flat
// string. Models and transports represent content as a plain string, a list
// of typed parts, or an object wrapper; this resolves the shape once at
// ingestion so nothing downstream inspects it ad hoc.
func flattenContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			sb.WriteString(flattenContent(part))
		}
		return sb.String()
	case map[string]any:
		if text, ok := v["text"]; ok {
			return flattenContent(text)
		}
		if inner, ok := v["content"]; ok {
			return flattenContent(inner)
		}
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

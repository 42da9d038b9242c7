package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"storyforge/model"
)

// Some models ignore native tool calling and emit tool calls as plain text.
// These patterns recover them so the engine can still execute the call.
var (
	leakedJSONArrayRegex = regexp.MustCompile(`\[\s*\{\s*"name"\s*:\s*"[^"]+"\s*,\s*"(?:arguments|param|parameters|input)"\s*:\s*\{[^}]*\}\s*\}\s*\]`)
	leakedJSONObjRegex   = regexp.MustCompile(`\{\s*"name"\s*:\s*"[^"]+"\s*,\s*"(?:arguments|param|parameters|input)"\s*:\s*\{[^}]*\}\s*\}`)
	leakedXMLRegex       = regexp.MustCompile(`<(?:tool_call|function_call)>\s*<name>([^<]+)</name>\s*<arguments>([^<]*)</arguments>\s*</(?:tool_call|function_call)>`)
	leakedQwenXMLRegex   = regexp.MustCompile(`(?s)<function=([^>]+)>(.*?)</function>`)
	qwenParameterRegex   = regexp.MustCompile(`(?s)<parameter=([^>]+)>(.*?)</parameter>`)
)

// leakedCall is the shape of a tool call leaked as JSON text. Models are
// inconsistent about the arguments key, so all known aliases are accepted.
type leakedCall struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Param      map[string]any `json:"param"`
	Parameters map[string]any `json:"parameters"`
	Input      map[string]any `json:"input"`
}

func (c leakedCall) arguments() map[string]any {
	switch {
	case c.Arguments != nil:
		return c.Arguments
	case c.Param != nil:
		return c.Param
	case c.Parameters != nil:
		return c.Parameters
	case c.Input != nil:
		return c.Input
	}
	return make(map[string]any)
}

// ParseLeakedJSONToolCalls scans content for tool calls leaked as JSON text.
//
// Handles both array form `[{"name": ..., "arguments": {...}}]` and single
// object form. Returns nil if nothing parseable is found.
func ParseLeakedJSONToolCalls(content string) []model.ToolCall {
	var result []model.ToolCall

	if match := leakedJSONArrayRegex.FindString(content); match != "" {
		var calls []leakedCall
		if err := json.Unmarshal([]byte(match), &calls); err == nil {
			for _, c := range calls {
				if c.Name == "" {
					continue
				}
				result = append(result, model.ToolCall{
					Name:      c.Name,
					Arguments: c.arguments(),
				})
			}
		}
	}

	if len(result) > 0 {
		return result
	}

	if match := leakedJSONObjRegex.FindString(content); match != "" {
		var c leakedCall
		if err := json.Unmarshal([]byte(match), &c); err == nil && c.Name != "" {
			result = append(result, model.ToolCall{
				Name:      c.Name,
				Arguments: c.arguments(),
			})
		}
	}

	return result
}

// ParseLeakedXMLToolCalls scans content for tool calls leaked as XML-style
// tags. Handles both the generic `<tool_call><name>...` form and the qwen
// `<function=name><parameter=key>value</parameter></function>` form.
func ParseLeakedXMLToolCalls(content string) []model.ToolCall {
	var result []model.ToolCall

	for _, match := range leakedXMLRegex.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		result = append(result, model.ToolCall{
			Name:      name,
			Arguments: ParseToolArguments(match[2]),
		})
	}

	for _, match := range leakedQwenXMLRegex.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		args := make(map[string]any)
		for _, param := range qwenParameterRegex.FindAllStringSubmatch(match[2], -1) {
			args[strings.TrimSpace(param[1])] = strings.TrimSpace(param[2])
		}
		result = append(result, model.ToolCall{
			Name:      name,
			Arguments: args,
		})
	}

	return result
}

// CleanLeakedToolCalls removes leaked JSON/XML tool call text from content
// so it does not appear in the final response shown to the user.
func CleanLeakedToolCalls(content string) string {
	cleaned := leakedJSONArrayRegex.ReplaceAllString(content, "")
	cleaned = leakedJSONObjRegex.ReplaceAllString(cleaned, "")
	cleaned = leakedXMLRegex.ReplaceAllString(cleaned, "")
	cleaned = leakedQwenXMLRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "</tool_call>", "")
	return strings.TrimSpace(cleaned)
}

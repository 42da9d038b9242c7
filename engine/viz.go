package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storyforge/mcp"
	"storyforge/model"
)

// RenderTarget is the fixed element identifier repaired chart code must
// render into.
const RenderTarget = "#chart"

// VizRepairRequest carries everything the model needs to fix failing chart
// code: the code itself, the render error, the step's descriptive metadata,
// and a compact summary of the actual result shape.
type VizRepairRequest struct {
	JSCode    string
	ErrorText string

	StepTitle         string
	StepDescription   string
	VisualizationType string

	Summary mcp.ResultSummary
}

// RepairVisualization is a stateless one-shot repair call, independent of
// the story pipeline. It returns corrected code with fence wrapping
// stripped; no re-execution happens here. The caller re-attempts rendering
// and may invoke this flow again.
func RepairVisualization(ctx context.Context, provider model.Provider, req VizRepairRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prompt := buildVizRepairPrompt(req)

	var reply strings.Builder
	err := provider.Chat(ctx, []model.Message{
		{Role: "user", Content: prompt},
	}, func(chunk string, _ []model.ToolCall) error {
		reply.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("visualization repair request failed: %w", err)
	}

	corrected := stripCodeFence(reply.String())
	if corrected == "" {
		return "", fmt.Errorf("visualization repair produced no code")
	}
	return corrected, nil
}

func buildVizRepairPrompt(req VizRepairRequest) string {
	summaryJSON, err := json.Marshal(req.Summary)
	if err != nil {
		summaryJSON = []byte("{}")
	}

	return fmt.Sprintf(`This chart code failed at render time:

%s

Error: %s

The code belongs to a story step titled %q (%s), visualization type %q.

The query result it renders has this shape:
%s

Return ONLY the corrected JavaScript, nothing else. The code must render into the element %q and use the data shape above exactly.`,
		req.JSCode, req.ErrorText, req.StepTitle, req.StepDescription,
		req.VisualizationType, summaryJSON, RenderTarget)
}

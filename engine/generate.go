// Package engine implements the data story generation pipeline: the
// tool-call orchestration loop, prompt assembly, response parsing and
// normalization, SQL validation with bounded model-driven repair, and the
// out-of-band visualization repair flow.
package engine

import (
	"context"

	"storyforge/config"
	"storyforge/model"
)

// Generator wires the orchestration loop, parser and validator into the
// full prompt-to-story pipeline.
type Generator struct {
	Provider model.Provider
	Gateway  ToolGateway
	Config   *config.Config
	Sink     model.ProgressSink
}

// Generate runs one complete generation: orchestrate tool rounds, parse the
// final answer into a story, then validate and repair its SQL.
//
// Parse failure and zero surviving steps are fatal; tool-level failures
// along the way are contained and reported through the sink. On
// cancellation partial results are discarded.
func (g *Generator) Generate(ctx context.Context, datasetPath, goal, description string) (*model.DataStory, error) {
	orch := NewOrchestrator(g.Provider, g.Gateway, datasetPath, g.Sink)
	if g.Config != nil {
		if g.Config.MaxRounds > 0 {
			orch.MaxRounds = g.Config.MaxRounds
		}
		if g.Config.MaxCallsPerRound > 0 {
			orch.MaxCallsPerRound = g.Config.MaxCallsPerRound
		}
	}

	result, err := orch.Run(ctx, goal, description)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := ParseStory(result.ResponseText)
	if err != nil {
		return nil, err
	}
	story := NormalizeStory(raw, datasetPath)

	validator := NewValidator(g.Provider, g.Gateway, datasetPath, g.Sink)
	if g.Config != nil && g.Config.SQLRepairRetries > 0 {
		validator.MaxRetries = g.Config.SQLRepairRetries
	}

	if err := validator.ValidateAndRepair(ctx, story); err != nil {
		return nil, err
	}

	return story, nil
}

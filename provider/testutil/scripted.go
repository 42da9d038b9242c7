package testutil

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"storyforge/model"
)

// ScriptedTurn is one model response in a scripted conversation: the text
// streamed back followed by any tool calls.
type ScriptedTurn struct {
	Text      string
	ToolCalls []model.ToolCall
	Err       error
}

// ScriptedProvider replays a fixed sequence of turns, one per Chat or
// ChatWithTools invocation. Useful for driving the generation loop through
// multiple rounds without a live model.
type ScriptedProvider struct {
	*MockProvider

	Turns []ScriptedTurn
	// Requests records the message slices each invocation received,
	// so tests can assert on prompt construction.
	Requests [][]model.Message

	next int
}

// NewScriptedProvider creates a provider that replays the given turns in order.
func NewScriptedProvider(modelName string, turns ...ScriptedTurn) *ScriptedProvider {
	p := &ScriptedProvider{
		MockProvider: NewMockProvider(modelName),
		Turns:        turns,
	}
	p.ChatFunc = func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
		return p.play(messages, callback)
	}
	p.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		return p.play(messages, callback)
	}
	return p
}

func (p *ScriptedProvider) play(messages []model.Message, callback model.StreamCallback) error {
	p.Requests = append(p.Requests, messages)

	if p.next >= len(p.Turns) {
		return fmt.Errorf("scripted provider exhausted after %d turns", len(p.Turns))
	}
	turn := p.Turns[p.next]
	p.next++

	if turn.Err != nil {
		return turn.Err
	}
	if callback == nil {
		return nil
	}
	if turn.Text != "" {
		if err := callback(turn.Text, nil); err != nil {
			return err
		}
	}
	if len(turn.ToolCalls) > 0 {
		if err := callback("", turn.ToolCalls); err != nil {
			return err
		}
	}
	return nil
}

// CallCount reports how many turns have been consumed.
func (p *ScriptedProvider) CallCount() int {
	return p.next
}

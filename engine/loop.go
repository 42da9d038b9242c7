package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storyforge/config"
	"storyforge/mcp"
	"storyforge/model"
)

// GenerationResult is the raw outcome of one orchestration run before
// parsing and validation.
type GenerationResult struct {
	ResponseText string
	Rounds       []model.ToolCallRound
}

// Orchestrator drives the model through bounded rounds of tool use until it
// produces a final answer. The loop is iterative with an explicit round
// index; termination is enforced by the round cap, the per-round call cap,
// and signature-based duplicate detection.
type Orchestrator struct {
	Provider    model.Provider
	Gateway     ToolGateway // nil disables tool access entirely
	DatasetPath string

	MaxRounds        int
	MaxCallsPerRound int

	Sink model.ProgressSink
}

// NewOrchestrator applies the default caps for zero-valued limits.
func NewOrchestrator(provider model.Provider, gateway ToolGateway, datasetPath string, sink model.ProgressSink) *Orchestrator {
	return &Orchestrator{
		Provider:         provider,
		Gateway:          gateway,
		DatasetPath:      datasetPath,
		MaxRounds:        config.DefaultMaxRounds,
		MaxCallsPerRound: config.DefaultMaxCallsPerRound,
		Sink:             sink,
	}
}

// Run executes the tool-call loop for one analytical goal and returns the
// model's final text plus the per-round audit trail.
//
// Round policy, checked after each completed round:
//  1. At round MaxRounds-1 the request is forced tools-off and its text is
//     the final answer.
//  2. A round proposing more than MaxCallsPerRound calls is truncated to
//     the first MaxCallsPerRound, with a warning step.
//  3. A call whose signature (name + canonicalized input) already appeared
//     in any strictly earlier round triggers a forced no-tools
//     summarization without dispatching the repeated call. Duplicates
//     within a single round are not caught.
//
// Tool failures are contained: each is logged as an error step and the
// round proceeds with whatever results succeeded. Cancellation is checked
// between stages; once observed, no further progress steps are emitted.
func (o *Orchestrator) Run(ctx context.Context, goal, description string) (*GenerationResult, error) {
	builder := &PromptBuilder{
		DatasetPath: o.DatasetPath,
		Goal:        goal,
		Description: description,
	}

	o.emit(model.ProgressStep{
		Kind:      model.StepUser,
		Timestamp: time.Now(),
		Content:   goal,
	})

	messages := builder.Initial()
	var history []model.Message
	var rounds []model.ToolCallRound
	earlierSignatures := make(map[string]int)
	loopDetected := false

	for round := 0; round < o.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		forced := loopDetected || round >= o.MaxRounds-1
		if forced {
			messages = builder.Summarization(history)
		}

		responseText, toolCalls, err := o.requestRound(ctx, messages, forced)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if responseText != "" {
			o.emit(model.ProgressStep{
				Kind:      model.StepAssistant,
				Timestamp: time.Now(),
				Content:   responseText,
			})
		}

		if forced || len(toolCalls) == 0 {
			return &GenerationResult{ResponseText: responseText, Rounds: rounds}, nil
		}

		if len(toolCalls) > o.MaxCallsPerRound {
			o.emit(model.ProgressStep{
				Kind:      model.StepError,
				Timestamp: time.Now(),
				Content:   fmt.Sprintf("round %d proposed %d tool calls, truncating to %d", round+1, len(toolCalls), o.MaxCallsPerRound),
			})
			toolCalls = toolCalls[:o.MaxCallsPerRound]
		}

		// Compare against strictly earlier rounds only, then record this
		// round's signatures.
		signatures := make([]string, len(toolCalls))
		for i, call := range toolCalls {
			signatures[i] = callSignature(call)
			if prior, seen := earlierSignatures[signatures[i]]; seen {
				if config.DebugLog != nil {
					config.DebugLog.Printf("[Engine] Round %d repeats call %s from round %d, forcing summarization", round+1, call.Name, prior+1)
				}
				loopDetected = true
			}
		}
		if loopDetected {
			// Terminate without dispatching the repeated round; the text
			// stays in history for the summarization request.
			if responseText != "" {
				history = append(history, model.Message{Role: "assistant", Content: responseText, Timestamp: time.Now()})
			}
			continue
		}
		for _, sig := range signatures {
			earlierSignatures[sig] = round
		}

		rounds = append(rounds, model.ToolCallRound{
			ResponseText: responseText,
			ToolCalls:    toolCalls,
		})

		toolResults, err := o.dispatchCalls(ctx, toolCalls)
		if err != nil {
			return nil, err
		}

		history = append(history, model.Message{Role: "assistant", Content: responseText, Timestamp: time.Now()})

		// Build the next request before folding this round's results into
		// history: the continuation carries them in their own slot, and
		// appending first would repeat each result inside the recent window.
		messages = builder.Continuation(history, toolResults)
		history = append(history, toolResults...)
	}

	// Unreachable while MaxRounds >= 1: the final iteration is forced.
	return nil, fmt.Errorf("round cap %d exhausted without a final answer", o.MaxRounds)
}

// requestRound sends one model request and accumulates the streamed text
// fragments and tool-call requests.
func (o *Orchestrator) requestRound(ctx context.Context, messages []model.Message, forced bool) (string, []model.ToolCall, error) {
	var responseText string
	var toolCalls []model.ToolCall

	callback := func(chunk string, calls []model.ToolCall) error {
		responseText += chunk
		toolCalls = append(toolCalls, calls...)
		return nil
	}

	var err error
	if forced || o.Gateway == nil {
		err = o.Provider.Chat(ctx, messages, callback)
	} else {
		err = o.Provider.ChatWithTools(ctx, messages, o.Gateway.Tools(), callback)
	}
	if err != nil {
		return "", nil, fmt.Errorf("model request failed: %w", err)
	}

	return responseText, toolCalls, nil
}

// dispatchCalls invokes tool calls sequentially so result ordering in the
// rebuilt context matches call order. Failures are contained per call.
func (o *Orchestrator) dispatchCalls(ctx context.Context, toolCalls []model.ToolCall) ([]model.Message, error) {
	var results []model.Message

	for _, call := range toolCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if call.Arguments == nil {
			call.Arguments = make(map[string]any)
		}
		if call.Name == mcp.QueryToolName {
			if mcp.RewriteDatasetPath(call.Arguments, o.DatasetPath) && config.DebugLog != nil {
				config.DebugLog.Printf("[Engine] Rewrote drifted dataset path in %s call", call.Name)
			}
		}

		o.emit(model.ProgressStep{
			Kind:      model.StepToolCall,
			Timestamp: time.Now(),
			ToolName:  call.Name,
			ToolInput: call.Arguments,
		})

		result, err := o.callTool(ctx, call)
		if err != nil {
			// Non-fatal: log and keep whatever results succeeded
			o.emit(model.ProgressStep{
				Kind:      model.StepError,
				Timestamp: time.Now(),
				ToolName:  call.Name,
				Error:     err.Error(),
				Content:   fmt.Sprintf("tool %s failed: %v", call.Name, err),
			})
			continue
		}

		o.emit(model.ProgressStep{
			Kind:       model.StepToolResult,
			Timestamp:  time.Now(),
			ToolName:   call.Name,
			ToolOutput: result,
		})

		results = append(results, model.Message{
			Role:      "tool",
			Content:   fmt.Sprintf("Result of %s: %s", call.Name, result),
			Timestamp: time.Now(),
		})
	}

	return results, nil
}

func (o *Orchestrator) callTool(ctx context.Context, call model.ToolCall) (string, error) {
	if o.Gateway == nil {
		return "", fmt.Errorf("no tool gateway available")
	}

	result, err := o.Gateway.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return "", err
	}

	text := resultText(result)
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// callSignature canonicalizes a tool call for duplicate detection. JSON
// marshaling sorts map keys, so equal inputs produce equal signatures
// regardless of argument ordering.
func callSignature(call model.ToolCall) string {
	canonical, err := json.Marshal(call.Arguments)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", call.Arguments))
	}
	return call.Name + ":" + string(canonical)
}

// emit forwards a progress step to the sink. Sink panics are swallowed;
// progress reporting never affects the loop.
func (o *Orchestrator) emit(step model.ProgressStep) {
	if o.Sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	o.Sink(step)
}

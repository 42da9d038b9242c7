package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"storyforge/mcp"
	"storyforge/model"
	"storyforge/provider/testutil"
)

// fakeGateway implements ToolGateway for tests without a live reader server.
type fakeGateway struct {
	mu    sync.Mutex
	tools []mcptypes.Tool
	// callFn decides each invocation's outcome; nil means success with a
	// minimal valid payload
	callFn func(name string, args map[string]any) (string, error)
	// resultFn overrides the whole result when set, for shapes callFn
	// cannot express
	resultFn func(name string, args map[string]any) (*mcptypes.CallToolResult, error)
	calls    []model.ToolCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tools: []mcptypes.Tool{
			{
				Name:        mcp.QueryToolName,
				Description: "Execute SQL against a registered dataset",
				InputSchema: mcptypes.ToolInputSchema{Type: "object"},
			},
		},
	}
}

func (g *fakeGateway) Tools() []mcptypes.Tool { return g.tools }

func (g *fakeGateway) HasTool(name string) bool {
	for _, t := range g.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (g *fakeGateway) CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, model.ToolCall{Name: name, Arguments: args})
	g.mu.Unlock()

	if g.resultFn != nil {
		return g.resultFn(name, args)
	}

	text := `{"rows": [[1]], "column_names": ["n"], "total_rows": 1, "execution_time_ms": 1}`
	if g.callFn != nil {
		var err error
		text, err = g.callFn(name, args)
		if err != nil {
			return nil, err
		}
	}

	result := &mcptypes.CallToolResult{}
	result.Content = append(result.Content, mcptypes.NewTextContent(text))
	return result, nil
}

func (g *fakeGateway) recordedCalls() []model.ToolCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.ToolCall(nil), g.calls...)
}

func queryCall(sql string) model.ToolCall {
	return model.ToolCall{
		Name: mcp.QueryToolName,
		Arguments: map[string]any{
			"datasets": []any{
				map[string]any{"name": "base", "path": "/data/sales.csv", "sql": sql},
			},
		},
	}
}

const finalAnswer = "```json\n{\"title\": \"T\", \"steps\": []}\n```"

func TestRunImmediateFinalAnswer(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	result, err := orch.Run(context.Background(), "explore sales", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ResponseText != finalAnswer {
		t.Errorf("response text mismatch: %q", result.ResponseText)
	}
	if len(result.Rounds) != 0 {
		t.Errorf("expected no tool rounds, got %d", len(result.Rounds))
	}
	if provider.CallCount() != 1 {
		t.Errorf("expected 1 model request, got %d", provider.CallCount())
	}
}

func TestRunOneToolRound(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{Text: "exploring", ToolCalls: []model.ToolCall{queryCall("SELECT count(*) FROM base")}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	result, err := orch.Run(context.Background(), "explore sales", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ResponseText != finalAnswer {
		t.Errorf("response text mismatch: %q", result.ResponseText)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("expected 1 tool round, got %d", len(result.Rounds))
	}
	if len(gateway.recordedCalls()) != 1 {
		t.Fatalf("expected 1 tool dispatch, got %d", len(gateway.recordedCalls()))
	}

	// Second request must carry the tool result
	second := provider.Requests[1]
	found := false
	for _, msg := range second {
		if msg.Role == "tool" && strings.Contains(msg.Content, "rows") {
			found = true
		}
	}
	if !found {
		t.Error("tool result missing from continuation request")
	}
}

func TestRunContinuationCarriesEachToolResultOnce(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{Text: "exploring", ToolCalls: []model.ToolCall{
			queryCall("SELECT region FROM base"),
			queryCall("SELECT revenue FROM base"),
		}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := provider.Requests[1]

	var toolMessages int
	for _, msg := range second {
		if msg.Role == "tool" {
			toolMessages++
		}
	}
	if toolMessages != 2 {
		t.Fatalf("expected each of 2 tool results exactly once, got %d tool messages", toolMessages)
	}

	// The result slot precedes the recent history window, and nothing
	// inside that window repeats a result
	var assistantIdx, firstToolIdx int = -1, -1
	for i, msg := range second {
		if msg.Role == "assistant" && assistantIdx == -1 {
			assistantIdx = i
		}
		if msg.Role == "tool" && firstToolIdx == -1 {
			firstToolIdx = i
		}
	}
	if firstToolIdx == -1 || assistantIdx == -1 {
		t.Fatal("continuation missing tool results or assistant turn")
	}
	if firstToolIdx > assistantIdx {
		t.Errorf("tool results must precede the recent history window (tool at %d, assistant at %d)", firstToolIdx, assistantIdx)
	}
}

func TestRunRewritesDriftedDatasetPath(t *testing.T) {
	drifted := model.ToolCall{
		Name: mcp.QueryToolName,
		Arguments: map[string]any{
			"datasets": []any{
				map[string]any{"name": "base", "path": "/placeholder.csv", "sql": "SELECT 1"},
			},
		},
	}
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{drifted}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := gateway.recordedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(calls))
	}
	datasets := calls[0].Arguments["datasets"].([]any)
	ds := datasets[0].(map[string]any)
	if ds["path"] != "/data/sales.csv" {
		t.Errorf("path not rewritten: %v", ds["path"])
	}
}

func TestRunLoopDetectionAcrossRounds(t *testing.T) {
	repeated := queryCall("SELECT region FROM base")
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{repeated}},
		testutil.ScriptedTurn{Text: "looking again", ToolCalls: []model.ToolCall{repeated}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	result, err := orch.Run(context.Background(), "explore", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The repeated round is never dispatched; the loop summarizes instead
	if len(gateway.recordedCalls()) != 1 {
		t.Errorf("expected 1 tool dispatch, got %d", len(gateway.recordedCalls()))
	}
	if result.ResponseText != finalAnswer {
		t.Errorf("expected summarization answer, got %q", result.ResponseText)
	}
	if provider.CallCount() != 3 {
		t.Errorf("expected 3 model requests, got %d", provider.CallCount())
	}
}

func TestLoopDetectionIgnoresSameRoundDuplicates(t *testing.T) {
	call := queryCall("SELECT region FROM base")
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{call, call}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Both duplicates within the round are dispatched
	if len(gateway.recordedCalls()) != 2 {
		t.Errorf("expected 2 tool dispatches, got %d", len(gateway.recordedCalls()))
	}
}

func TestRunTruncatesOversizedRound(t *testing.T) {
	var calls []model.ToolCall
	for i := 0; i < 12; i++ {
		calls = append(calls, queryCall(fmt.Sprintf("SELECT %d FROM base", i)))
	}
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: calls},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()

	var warnings []model.ProgressStep
	sink := func(step model.ProgressStep) {
		if step.Kind == model.StepError {
			warnings = append(warnings, step)
		}
	}

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", sink)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(gateway.recordedCalls()) != orch.MaxCallsPerRound {
		t.Errorf("expected %d dispatches after truncation, got %d", orch.MaxCallsPerRound, len(gateway.recordedCalls()))
	}
	if len(warnings) == 0 {
		t.Error("expected a truncation warning step")
	}
}

func TestRunRoundCapForcesSummarization(t *testing.T) {
	turns := []testutil.ScriptedTurn{
		{ToolCalls: []model.ToolCall{queryCall("SELECT 1 FROM base")}},
		{ToolCalls: []model.ToolCall{queryCall("SELECT 2 FROM base")}},
		{Text: finalAnswer},
	}
	provider := testutil.NewScriptedProvider("test-model", turns...)
	gateway := newFakeGateway()

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	orch.MaxRounds = 3

	result, err := orch.Run(context.Background(), "explore", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.CallCount() != 3 {
		t.Errorf("expected exactly 3 model requests, got %d", provider.CallCount())
	}
	if len(gateway.recordedCalls()) != 2 {
		t.Errorf("expected 2 tool dispatches, got %d", len(gateway.recordedCalls()))
	}
	if result.ResponseText != finalAnswer {
		t.Errorf("final answer mismatch: %q", result.ResponseText)
	}
}

func TestRunToolFailureIsContained(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{
			queryCall("SELECT bad FROM base"),
			queryCall("SELECT good FROM base"),
		}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()
	gateway.callFn = func(name string, args map[string]any) (string, error) {
		datasets := args["datasets"].([]any)
		sql := datasets[0].(map[string]any)["sql"].(string)
		if strings.Contains(sql, "bad") {
			return "", errors.New("boom")
		}
		return `{"rows": [[1]], "column_names": ["n"], "total_rows": 1, "execution_time_ms": 1}`, nil
	}

	var errorSteps int
	sink := func(step model.ProgressStep) {
		if step.Kind == model.StepError {
			errorSteps++
		}
	}

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", sink)
	result, err := orch.Run(context.Background(), "explore", "")
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}

	if errorSteps != 1 {
		t.Errorf("expected 1 error step, got %d", errorSteps)
	}
	if result.ResponseText != finalAnswer {
		t.Errorf("final answer mismatch: %q", result.ResponseText)
	}

	// Only the successful result enters the continuation context
	var toolMessages int
	for _, msg := range provider.Requests[1] {
		if msg.Role == "tool" {
			toolMessages++
		}
	}
	if toolMessages != 1 {
		t.Errorf("expected 1 tool message in continuation, got %d", toolMessages)
	}
}

func TestRunFlattensStructuredToolResults(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{queryCall("SELECT count(*) FROM base")}},
		testutil.ScriptedTurn{Text: finalAnswer},
	)
	gateway := newFakeGateway()
	gateway.resultFn = func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
		// No text content blocks, only structured content
		return &mcptypes.CallToolResult{
			StructuredContent: map[string]any{
				"text": `{"rows": [[42]], "column_names": ["n"], "total_rows": 1, "execution_time_ms": 1}`,
			},
		}, nil
	}

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", nil)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, msg := range provider.Requests[1] {
		if msg.Role == "tool" && strings.Contains(msg.Content, `[[42]]`) {
			found = true
		}
	}
	if !found {
		t.Error("structured tool result missing from continuation request")
	}
}

func TestRunCancellationStopsProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{ToolCalls: []model.ToolCall{
			queryCall("SELECT 1 FROM base"),
			queryCall("SELECT 2 FROM base"),
		}},
	)
	gateway := newFakeGateway()
	gateway.callFn = func(name string, args map[string]any) (string, error) {
		cancel()
		return `{"rows": [], "column_names": [], "total_rows": 0, "execution_time_ms": 0}`, nil
	}

	var stepsAfterCancel int
	sink := func(step model.ProgressStep) {
		if ctx.Err() != nil && step.Kind == model.StepToolCall {
			stepsAfterCancel++
		}
	}

	orch := NewOrchestrator(provider, gateway, "/data/sales.csv", sink)
	result, err := orch.Run(ctx, "explore", "")

	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if result != nil {
		t.Error("cancelled run must not return a result")
	}
	if stepsAfterCancel != 0 {
		t.Errorf("no tool-call steps may be emitted after cancellation, got %d", stepsAfterCancel)
	}
	if len(gateway.recordedCalls()) != 1 {
		t.Errorf("expected dispatch to stop after cancellation, got %d calls", len(gateway.recordedCalls()))
	}
}

func TestRunPanickingSinkIsIgnored(t *testing.T) {
	provider := testutil.NewScriptedProvider("test-model",
		testutil.ScriptedTurn{Text: finalAnswer},
	)

	sink := func(step model.ProgressStep) {
		panic("sink exploded")
	}

	orch := NewOrchestrator(provider, newFakeGateway(), "/data/sales.csv", sink)
	if _, err := orch.Run(context.Background(), "explore", ""); err != nil {
		t.Fatalf("sink panic must not affect the loop: %v", err)
	}
}

func TestCallSignatureCanonicalizesArguments(t *testing.T) {
	a := model.ToolCall{Name: "q", Arguments: map[string]any{"x": 1, "y": "z"}}
	b := model.ToolCall{Name: "q", Arguments: map[string]any{"y": "z", "x": 1}}
	c := model.ToolCall{Name: "q", Arguments: map[string]any{"x": 2, "y": "z"}}

	if callSignature(a) != callSignature(b) {
		t.Error("argument ordering must not change the signature")
	}
	if callSignature(a) == callSignature(c) {
		t.Error("different arguments must produce different signatures")
	}
	if callSignature(a) == callSignature(model.ToolCall{Name: "r", Arguments: a.Arguments}) {
		t.Error("different names must produce different signatures")
	}
}

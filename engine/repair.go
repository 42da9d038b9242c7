package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"storyforge/config"
	"storyforge/mcp"
	"storyforge/model"
)

// validationRowLimit is the row cap used when executing a step's SQL purely
// to test validity. The sample result is discarded on success.
const validationRowLimit = 5

// Validator checks every story step's SQL against the live dataset and asks
// the model to repair failures within a bounded number of retries.
type Validator struct {
	Provider    model.Provider
	Gateway     ToolGateway
	DatasetPath string
	MaxRetries  int

	Sink model.ProgressSink
}

// NewValidator applies the default retry bound for a zero value.
func NewValidator(provider model.Provider, gateway ToolGateway, datasetPath string, sink model.ProgressSink) *Validator {
	return &Validator{
		Provider:    provider,
		Gateway:     gateway,
		DatasetPath: datasetPath,
		MaxRetries:  config.DefaultSQLRepairRetries,
		Sink:        sink,
	}
}

type failedStep struct {
	index     int
	errorText string
}

// ValidateAndRepair mutates story.Steps in place: repaired SQL overwrites
// the original in its position, unfixable steps are dropped, and survivors
// are sorted by their declared order.
//
// Validation is best-effort: when the query tool is absent a non-empty
// story passes through unvalidated with a warning. Zero steps, whether
// parsed or surviving, is fatal in every mode.
func (v *Validator) ValidateAndRepair(ctx context.Context, story *model.DataStory) error {
	// A story with no steps at all is unusable whether or not the query
	// tool is reachable
	if len(story.Steps) == 0 {
		return ErrAllStepsInvalid
	}

	if v.Gateway == nil || !v.Gateway.HasTool(mcp.QueryToolName) {
		v.emit(model.ProgressStep{
			Kind:      model.StepError,
			Timestamp: time.Now(),
			Content:   "query tool unavailable, delivering story without SQL validation",
		})
		return nil
	}

	// All steps are attempted independently; failures accumulate
	var failures []failedStep
	for i, step := range story.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := v.executeSQL(ctx, step.SQLQuery); err != nil {
			failures = append(failures, failedStep{index: i, errorText: err.Error()})
			v.emit(model.ProgressStep{
				Kind:      model.StepError,
				Timestamp: time.Now(),
				Content:   fmt.Sprintf("step %d SQL failed validation: %v", i+1, err),
				Error:     err.Error(),
			})
		}
	}

	dropped := make(map[int]bool)
	for _, failure := range failures {
		fixed, err := v.repairStep(ctx, story, failure)
		if err != nil {
			return err
		}
		if !fixed {
			dropped[failure.index] = true
		}
	}

	if len(dropped) > 0 {
		v.emit(model.ProgressStep{
			Kind:      model.StepError,
			Timestamp: time.Now(),
			Content:   fmt.Sprintf("dropping %d unrepairable steps", len(dropped)),
		})

		survivors := make([]model.StoryStep, 0, len(story.Steps)-len(dropped))
		for i, step := range story.Steps {
			if !dropped[i] {
				survivors = append(survivors, step)
			}
		}
		story.Steps = survivors
	}

	sort.SliceStable(story.Steps, func(a, b int) bool {
		return story.Steps[a].Order < story.Steps[b].Order
	})

	if len(story.Steps) == 0 {
		return ErrAllStepsInvalid
	}
	return nil
}

// repairStep runs the bounded repair sub-loop for one failing step. The
// corrected SQL is spliced back into the step's original position.
func (v *Validator) repairStep(ctx context.Context, story *model.DataStory, failure failedStep) (bool, error) {
	step := story.Steps[failure.index]
	failingSQL := step.SQLQuery
	errorText := failure.errorText

	for attempt := 1; attempt <= v.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		prompt := buildSQLRepairPrompt(failingSQL, errorText, step)
		reply, err := v.chat(ctx, prompt)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Engine] SQL repair attempt %d for step %d failed: %v", attempt, failure.index+1, err)
			}
			continue
		}

		corrected := stripCodeFence(reply)
		if corrected == "" {
			continue
		}

		if err := v.executeSQL(ctx, corrected); err != nil {
			failingSQL = corrected
			errorText = err.Error()
			continue
		}

		story.Steps[failure.index].SQLQuery = corrected
		v.emit(model.ProgressStep{
			Kind:      model.StepToolResult,
			Timestamp: time.Now(),
			Content:   fmt.Sprintf("step %d SQL repaired on attempt %d", failure.index+1, attempt),
		})
		return true, nil
	}

	return false, nil
}

// executeSQL runs a query with a small row limit purely to test validity.
func (v *Validator) executeSQL(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("empty SQL query")
	}

	args := mcp.BuildQueryArgs(v.DatasetPath, sql, validationRowLimit, false)
	result, err := v.Gateway.CallTool(ctx, mcp.QueryToolName, args)
	if err != nil {
		return err
	}

	text := resultText(result)
	if result.IsError {
		return fmt.Errorf("%s", text)
	}

	_, err = mcp.ParseQueryResult(text)
	return err
}

func (v *Validator) chat(ctx context.Context, prompt string) (string, error) {
	var reply strings.Builder
	err := v.Provider.Chat(ctx, []model.Message{
		{Role: "user", Content: prompt},
	}, func(chunk string, _ []model.ToolCall) error {
		reply.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}

func buildSQLRepairPrompt(failingSQL, errorText string, step model.StoryStep) string {
	return fmt.Sprintf(`This SQL query failed:

%s

Error: %s

The query belongs to a story step titled %q (%s). Return ONLY the corrected SQL query, nothing else. The query must reference the table %q.`,
		failingSQL, errorText, step.Title, step.Description, mcp.CanonicalTable)
}

func (v *Validator) emit(step model.ProgressStep) {
	if v.Sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	v.Sink(step)
}

var fenceWrapRegex = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\\s*\\n?(.*?)\\n?```$")

// stripCodeFence removes a wrapping code fence from a model reply, if
// present. Replies without a fence pass through trimmed.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if match := fenceWrapRegex.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1])
	}
	return trimmed
}

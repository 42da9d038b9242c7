package model

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepKind classifies a ProgressStep.
type StepKind string

const (
	StepUser       StepKind = "user"
	StepAssistant  StepKind = "assistant"
	StepToolCall   StepKind = "tool_call"
	StepToolResult StepKind = "tool_result"
	StepError      StepKind = "error"
)

// ProgressStep is one append-only audit-log entry for a generation request.
// Entries are emitted in true chronological order; later stages replay the
// log to reconstruct context, so ordering is an invariant.
type ProgressStep struct {
	Kind       StepKind       `json:"kind"`
	Timestamp  time.Time      `json:"timestamp"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ProgressSink receives each ProgressStep as it is produced, for live
// feedback. Sink failures must never affect the generation loop; callers
// invoke sinks through a recover guard.
type ProgressSink func(step ProgressStep)

// ToolCallRound records one loop iteration that issued at least one tool
// call. Retained after the generation only as audit metadata, never mutated
// once appended.
type ToolCallRound struct {
	ResponseText string     `json:"response_text"`
	ToolCalls    []ToolCall `json:"tool_calls"`
}

// StoryStep is one step of a data story: a SQL query plus the code that
// renders its result. The validation pipeline may overwrite SQLQuery after a
// successful automated fix; no other field is mutated after normalization.
type StoryStep struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Insight           string `json:"insight"`
	SQLQuery          string `json:"sqlQuery"`
	JSCode            string `json:"jsCode"`
	VisualizationType string `json:"visualizationType"`
	Order             int    `json:"order"`
}

// DataStory is the final product of one generation request. DatasetPath is
// always the caller-supplied canonical path, regardless of what the model
// produced. After validation the story holds at least one step.
type DataStory struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Steps       []StoryStep `json:"steps"`
	CreatedAt   time.Time   `json:"createdAt"`
	DatasetPath string      `json:"datasetPath"`
}

// NewStoryID returns an opaque unique story identifier. Falls back to a
// timestamp-derived id when the random source is unavailable.
func NewStoryID() string {
	id, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return fmt.Sprintf("story-%d", time.Now().UnixNano())
	}
	return id.String()
}

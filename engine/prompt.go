package engine

import (
	"fmt"
	"strings"

	"storyforge/mcp"
	"storyforge/model"
)

// History windowing for continuation prompts. The split is two-tier: a
// recent window kept verbatim and an older slice hard-capped regardless of
// total length, accepting loss of very old context to bound token usage.
const (
	olderHistoryCap = 6
	recentWindow    = 4
)

// PromptBuilder assembles the ordered message lists sent to the model for
// each stage of a generation: the initial request, tool-result
// continuations, and the forced final summarization.
//
// Every stage restates the canonical dataset path in its final directive.
// Models drift to placeholder paths otherwise, and the path is the
// integrity-critical invariant of the whole pipeline.
type PromptBuilder struct {
	DatasetPath string
	Goal        string
	Description string
}

const instructionsBlock = `You are a data analyst that builds "data stories": ordered sequences of SQL queries with matching chart code that together answer an analytical goal.

You may explore the dataset with the provided query tool before answering. Keep exploration focused: a handful of targeted queries is enough. Never repeat a query you already ran with identical arguments.

All SQL must reference the table "` + mcp.CanonicalTable + `". The dataset is registered under that name regardless of its file name.`

const stepFormatBlock = "When you are done exploring, answer with ONLY a fenced JSON block in this exact shape:\n\n```json\n{\n  \"title\": \"Story title\",\n  \"description\": \"One-paragraph overview\",\n  \"steps\": [\n    {\n      \"id\": \"step-1\",\n      \"title\": \"Step title\",\n      \"description\": \"What this step shows\",\n      \"insight\": \"The takeaway\",\n      \"sqlQuery\": \"SELECT ... FROM " + mcp.CanonicalTable + "\",\n      \"jsCode\": \"// chart code rendering into #chart\",\n      \"visualizationType\": \"bar\",\n      \"order\": 1\n    }\n  ]\n}\n```\n\nInclude 3 to 6 steps. Each sqlQuery must be complete and runnable on its own."

// Initial builds the first-round message list: instructions, then the task
// block with the dataset path, then the step format specification.
func (b *PromptBuilder) Initial() []model.Message {
	task := fmt.Sprintf("Analytical goal: %s", b.Goal)
	if b.Description != "" {
		task += fmt.Sprintf("\n\nContext: %s", b.Description)
	}
	task += fmt.Sprintf("\n\nDataset path: %s", b.DatasetPath)

	return []model.Message{
		{Role: "system", Content: instructionsBlock},
		{Role: "user", Content: task + "\n\n" + stepFormatBlock},
	}
}

// Continuation builds the message list for the round after tool results
// arrived. Ordering is lowest to highest priority: truncated older history,
// this round's tool results, the recent history window, and the final
// directive restating the canonical dataset path.
func (b *PromptBuilder) Continuation(history []model.Message, toolResults []model.Message) []model.Message {
	older, recent := splitHistory(history)

	messages := make([]model.Message, 0, len(older)+len(toolResults)+len(recent)+2)
	messages = append(messages, model.Message{Role: "system", Content: instructionsBlock})
	messages = append(messages, older...)
	messages = append(messages, toolResults...)
	messages = append(messages, recent...)
	messages = append(messages, b.finalDirective(false))
	return messages
}

// Summarization builds the forced no-tools request used when the round cap
// is reached or a repeated tool call is detected.
func (b *PromptBuilder) Summarization(history []model.Message) []model.Message {
	older, recent := splitHistory(history)

	messages := make([]model.Message, 0, len(older)+len(recent)+2)
	messages = append(messages, model.Message{Role: "system", Content: instructionsBlock})
	messages = append(messages, older...)
	messages = append(messages, recent...)
	messages = append(messages, b.finalDirective(true))
	return messages
}

func (b *PromptBuilder) finalDirective(forced bool) model.Message {
	var sb strings.Builder
	if forced {
		sb.WriteString("Stop exploring now. Using everything gathered above, produce the final data story.\n\n")
	} else {
		sb.WriteString("Continue the analysis using the tool results above. When you have enough, produce the final data story.\n\n")
	}
	sb.WriteString(stepFormatBlock)
	sb.WriteString(fmt.Sprintf("\n\nThe dataset path is %s and every query references the table %q. Do not substitute any other path or table name.", b.DatasetPath, mcp.CanonicalTable))
	return model.Message{Role: "user", Content: sb.String()}
}

// splitHistory divides history into an older slice (capped at its most
// recent olderHistoryCap entries) and the recent window.
func splitHistory(history []model.Message) (older, recent []model.Message) {
	if len(history) <= recentWindow {
		return nil, history
	}

	older = history[:len(history)-recentWindow]
	recent = history[len(history)-recentWindow:]

	if len(older) > olderHistoryCap {
		older = older[len(older)-olderHistoryCap:]
	}
	return older, recent
}

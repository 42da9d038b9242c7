package engine

import (
	"fmt"
	"strings"
	"testing"

	"storyforge/mcp"
	"storyforge/model"
)

func historyOf(n int) []model.Message {
	msgs := make([]model.Message, n)
	for i := range msgs {
		role := "assistant"
		if i%2 == 1 {
			role = "tool"
		}
		msgs[i] = model.Message{Role: role, Content: fmt.Sprintf("entry-%d", i)}
	}
	return msgs
}

func TestSplitHistory(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		wantOlder   int
		wantRecent  int
		firstOlder  string
		firstRecent string
	}{
		{name: "empty", total: 0, wantOlder: 0, wantRecent: 0},
		{name: "fits in recent window", total: 3, wantOlder: 0, wantRecent: 3, firstRecent: "entry-0"},
		{name: "exactly the window", total: 4, wantOlder: 0, wantRecent: 4, firstRecent: "entry-0"},
		{name: "small overflow", total: 7, wantOlder: 3, wantRecent: 4, firstOlder: "entry-0", firstRecent: "entry-3"},
		{
			// Older slice is hard-capped regardless of total length
			name: "long history", total: 20, wantOlder: 6, wantRecent: 4,
			firstOlder: "entry-10", firstRecent: "entry-16",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			older, recent := splitHistory(historyOf(tt.total))

			if len(older) != tt.wantOlder {
				t.Errorf("older: got %d, want %d", len(older), tt.wantOlder)
			}
			if len(recent) != tt.wantRecent {
				t.Errorf("recent: got %d, want %d", len(recent), tt.wantRecent)
			}
			if tt.firstOlder != "" && older[0].Content != tt.firstOlder {
				t.Errorf("first older entry: got %q, want %q", older[0].Content, tt.firstOlder)
			}
			if tt.firstRecent != "" && recent[0].Content != tt.firstRecent {
				t.Errorf("first recent entry: got %q, want %q", recent[0].Content, tt.firstRecent)
			}
		})
	}
}

func TestInitialPrompt(t *testing.T) {
	b := &PromptBuilder{
		DatasetPath: "/data/sales.csv",
		Goal:        "find revenue drivers",
		Description: "quarterly sales export",
	}

	messages := b.Initial()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	if messages[0].Role != "system" {
		t.Errorf("first message role: %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, mcp.CanonicalTable) {
		t.Error("instructions must name the canonical table")
	}

	task := messages[1]
	if task.Role != "user" {
		t.Errorf("task message role: %q", task.Role)
	}
	for _, want := range []string{"find revenue drivers", "quarterly sales export", "/data/sales.csv", "sqlQuery", "jsCode"} {
		if !strings.Contains(task.Content, want) {
			t.Errorf("task message missing %q", want)
		}
	}
}

func TestContinuationPromptOrdering(t *testing.T) {
	b := &PromptBuilder{DatasetPath: "/data/sales.csv", Goal: "g"}

	history := historyOf(12)
	toolResults := []model.Message{
		{Role: "tool", Content: "result-A"},
		{Role: "tool", Content: "result-B"},
	}

	messages := b.Continuation(history, toolResults)

	// system + 6 older + 2 results + 4 recent + directive
	if len(messages) != 14 {
		t.Fatalf("expected 14 messages, got %d", len(messages))
	}

	if messages[0].Role != "system" {
		t.Errorf("first message must be the instructions block")
	}
	if messages[1].Content != "entry-2" {
		t.Errorf("older history must be capped to its most recent entries, got %q first", messages[1].Content)
	}
	if messages[7].Content != "result-A" || messages[8].Content != "result-B" {
		t.Error("tool results must follow older history in call order")
	}
	if messages[9].Content != "entry-8" {
		t.Errorf("recent window must follow tool results, got %q", messages[9].Content)
	}

	directive := messages[len(messages)-1]
	if directive.Role != "user" {
		t.Errorf("directive role: %q", directive.Role)
	}
	if !strings.Contains(directive.Content, "/data/sales.csv") {
		t.Error("directive must restate the canonical dataset path")
	}
	if !strings.Contains(directive.Content, mcp.CanonicalTable) {
		t.Error("directive must restate the canonical table")
	}
}

func TestSummarizationPrompt(t *testing.T) {
	b := &PromptBuilder{DatasetPath: "/data/sales.csv", Goal: "g"}

	messages := b.Summarization(historyOf(2))

	directive := messages[len(messages)-1]
	if !strings.Contains(directive.Content, "Stop exploring") {
		t.Error("summarization directive must demand a final answer")
	}
	if !strings.Contains(directive.Content, "/data/sales.csv") {
		t.Error("summarization directive must restate the dataset path")
	}
}

func TestEveryDirectiveRestatesDatasetPath(t *testing.T) {
	b := &PromptBuilder{DatasetPath: "/data/odd path.parquet", Goal: "g"}

	for _, messages := range [][]model.Message{
		b.Initial(),
		b.Continuation(historyOf(6), nil),
		b.Summarization(historyOf(6)),
	} {
		last := messages[len(messages)-1]
		if !strings.Contains(last.Content, "/data/odd path.parquet") {
			t.Errorf("final message missing dataset path: %q...", last.Content[:40])
		}
	}
}

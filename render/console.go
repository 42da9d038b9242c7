// Package render prints the generation progress trail and the finished
// story to a terminal.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storyforge/model"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	userStyle      = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(accentColor)
	toolStyle      = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle     = lipgloss.NewStyle().Foreground(dangerColor).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dimColor)
	titleStyle     = lipgloss.NewStyle().Bold(true)
)

const previewLimit = 120

// Console renders ProgressSteps as a live trail on one writer
type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Sink returns a ProgressSink that prints each step. Write failures are
// swallowed; the generation loop must never notice the terminal.
func (c *Console) Sink() model.ProgressSink {
	return func(step model.ProgressStep) {
		c.printStep(step)
	}
}

func (c *Console) printStep(step model.ProgressStep) {
	var line string

	switch step.Kind {
	case model.StepUser:
		line = userStyle.Render("you") + " " + preview(step.Content)
	case model.StepAssistant:
		line = assistantStyle.Render("model") + " " + preview(step.Content)
	case model.StepToolCall:
		line = toolStyle.Render("tool") + " " + step.ToolName + " " + dimStyle.Render(argsPreview(step.ToolInput))
	case model.StepToolResult:
		line = toolStyle.Render("tool") + " " + dimStyle.Render(preview(firstNonEmpty(step.ToolOutput, step.Content)))
	case model.StepError:
		line = errorStyle.Render("error") + " " + preview(firstNonEmpty(step.Error, step.Content))
	default:
		line = dimStyle.Render(string(step.Kind)) + " " + preview(step.Content)
	}

	fmt.Fprintln(c.out, line)
}

// PrintStory writes the finished story summary
func (c *Console) PrintStory(story *model.DataStory) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, titleStyle.Render(story.Title))
	if story.Description != "" {
		fmt.Fprintln(c.out, dimStyle.Render(story.Description))
	}
	fmt.Fprintln(c.out, dimStyle.Render("dataset: "+story.DatasetPath))
	fmt.Fprintln(c.out)

	for _, step := range story.Steps {
		fmt.Fprintf(c.out, "%s %s\n",
			toolStyle.Render(fmt.Sprintf("%d.", step.Order)),
			titleStyle.Render(step.Title))
		if step.Description != "" {
			fmt.Fprintln(c.out, "   "+step.Description)
		}
		if step.Insight != "" {
			fmt.Fprintln(c.out, "   "+assistantStyle.Render(step.Insight))
		}
		fmt.Fprintln(c.out, "   "+dimStyle.Render(preview(step.SQLQuery)))
	}
}

// PrintStoryList writes one line per stored story
func (c *Console) PrintStoryList(stories []StoryListEntry) {
	if len(stories) == 0 {
		fmt.Fprintln(c.out, dimStyle.Render("no stories yet"))
		return
	}

	for _, entry := range stories {
		fmt.Fprintf(c.out, "%s  %s %s\n",
			dimStyle.Render(entry.ID),
			titleStyle.Render(entry.Title),
			dimStyle.Render(fmt.Sprintf("(%d steps, %s)", entry.StepCount, entry.CreatedAt)))
	}
}

// StoryListEntry keeps render decoupled from the storage package
type StoryListEntry struct {
	ID        string
	Title     string
	StepCount int
	CreatedAt string
}

func preview(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if len(text) > previewLimit {
		text = text[:previewLimit] + "..."
	}
	return text
}

func argsPreview(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return preview(string(data))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

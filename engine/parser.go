package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"storyforge/config"
	"storyforge/model"
)

// Extraction strategies, ordered most to least strict. The first pattern
// that matches wins; a decode failure of that match is fatal rather than a
// reason to try looser patterns.
var (
	labeledFenceRegex = regexp.MustCompile("(?s)```json\\n(.*?)```")
	flexFenceRegex    = regexp.MustCompile("(?s)```\\s*json\\s*(.*?)```")
	anyFenceRegex     = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*\\n?(.*?)```")
	rawStepsRegex     = regexp.MustCompile(`(?s)\{.*"steps"\s*:\s*\[.*\}`)
	rawTitleRegex     = regexp.MustCompile(`(?s)\{.*"title"\s*:.*\}`)
)

type rawStory struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Steps       []map[string]any `json:"steps"`
}

// extractStoryJSON returns the JSON candidate from the model's final text,
// or ok=false when no strategy matches.
func extractStoryJSON(text string) (string, bool) {
	strategies := []*regexp.Regexp{
		labeledFenceRegex,
		flexFenceRegex,
		anyFenceRegex,
		rawStepsRegex,
		rawTitleRegex,
	}

	for _, re := range strategies {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if len(match) > 1 {
			return match[1], true
		}
		return match[0], true
	}
	return "", false
}

// ParseStory extracts and decodes the story document from the model's final
// answer. Returns ErrResponseParse when no strategy matches, the candidate
// is not valid JSON, or the document has neither a title nor an array of
// steps. This is fatal; the caller must not retry silently.
func ParseStory(text string) (*rawStory, error) {
	candidate, ok := extractStoryJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON document in response", ErrResponseParse)
	}

	var probe map[string]any
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseParse, err)
	}

	_, hasTitle := probe["title"].(string)
	stepsVal, hasSteps := probe["steps"].([]any)
	if !hasTitle && !hasSteps {
		return nil, fmt.Errorf("%w: document has neither title nor steps", ErrResponseParse)
	}

	story := &rawStory{}
	if err := json.Unmarshal([]byte(candidate), story); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseParse, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Parsed story %q with %d raw steps", story.Title, len(stepsVal))
	}

	return story, nil
}

// Field name aliases the normalizer accepts for step SQL and chart code.
var (
	sqlAliases  = []string{"sqlQuery", "sql"}
	codeAliases = []string{"jsCode", "js", "code"}
)

const defaultVisualization = "bar"

// NormalizeStory turns a parsed document into a DataStory. It never fails
// on a syntactically valid shape: missing fields are synthesized from the
// step index, and datasetPath is force-set to the caller's canonical path
// regardless of anything the model produced.
func NormalizeStory(raw *rawStory, datasetPath string) *model.DataStory {
	steps := make([]model.StoryStep, 0, len(raw.Steps))

	for i, rawStep := range raw.Steps {
		step := model.StoryStep{
			ID:                stringField(rawStep, "id", fmt.Sprintf("step-%d", i+1)),
			Title:             stringField(rawStep, "title", fmt.Sprintf("Step %d", i+1)),
			Description:       stringField(rawStep, "description", ""),
			Insight:           stringField(rawStep, "insight", ""),
			SQLQuery:          firstAlias(rawStep, sqlAliases),
			JSCode:            firstAlias(rawStep, codeAliases),
			VisualizationType: stringField(rawStep, "visualizationType", defaultVisualization),
			Order:             intField(rawStep, "order", i+1),
		}
		steps = append(steps, step)
	}

	title := raw.Title
	if title == "" {
		title = "Data Story"
	}

	return &model.DataStory{
		ID:          model.NewStoryID(),
		Title:       title,
		Description: raw.Description,
		Steps:       steps,
		CreatedAt:   time.Now(),
		DatasetPath: datasetPath,
	}
}

func stringField(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func firstAlias(m map[string]any, aliases []string) string {
	for _, key := range aliases {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func intField(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

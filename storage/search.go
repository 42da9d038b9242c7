package storage

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// StoryMatch is one fuzzy search hit over the story catalog
type StoryMatch struct {
	Metadata StoryMetadata
	Score    int
	Preview  string
}

// storySource adapts the catalog for fuzzy matching over title plus
// description.
type storySource []StoryMetadata

func (s storySource) String(i int) string {
	return s[i].Title + " " + s[i].Description
}

func (s storySource) Len() int { return len(s) }

// SearchStories fuzzy-matches the query against every indexed story's title
// and description. Results come back best score first.
func (s *StoryStorage) SearchStories(query string) ([]StoryMatch, error) {
	if query == "" {
		return []StoryMatch{}, nil
	}

	stories, err := s.List()
	if err != nil {
		return nil, err
	}

	source := storySource(stories)
	results := fuzzy.FindFrom(query, source)

	matches := make([]StoryMatch, 0, len(results))
	for _, result := range results {
		meta := stories[result.Index]
		matches = append(matches, StoryMatch{
			Metadata: meta,
			Score:    result.Score,
			Preview:  previewOf(meta),
		})
	}

	return matches, nil
}

func previewOf(meta StoryMetadata) string {
	text := meta.Description
	if text == "" {
		text = meta.Title
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) > 100 {
		text = text[:100] + "..."
	}
	return text
}

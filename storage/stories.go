package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyforge/model"
)

// StoryMetadata is a lightweight version of DataStory for listing
type StoryMetadata struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DatasetPath string    `json:"datasetPath"`
	StepCount   int       `json:"stepCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StoryStorage handles story persistence
type StoryStorage struct {
	storiesDir string
	index      *StoryIndex
}

// NewStoryStorage creates a new story storage rooted at dataDir. The sqlite
// index is opened alongside; an index failure is fatal because listing and
// search depend on it.
func NewStoryStorage(dataDir string) (*StoryStorage, error) {
	storiesDir := filepath.Join(dataDir, "stories")

	// Create stories directory if it doesn't exist (0700 - user-only access)
	if err := os.MkdirAll(storiesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create stories directory: %w", err)
	}

	index, err := NewStoryIndex(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open story index: %w", err)
	}

	return &StoryStorage{
		storiesDir: storiesDir,
		index:      index,
	}, nil
}

// Save writes a story to disk and updates the index
func (s *StoryStorage) Save(story *model.DataStory) error {
	if story.ID == "" {
		story.ID = uuid.New().String()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now()
	}

	filename := fmt.Sprintf("%s.json", story.ID)
	path := filepath.Join(s.storiesDir, filename)

	data, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}

	// 0600 - stories can embed dataset paths and query text
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write story file: %w", err)
	}

	return s.index.Upsert(metadataOf(story))
}

// Load reads a story from disk
func (s *StoryStorage) Load(id string) (*model.DataStory, error) {
	filename := fmt.Sprintf("%s.json", id)
	path := filepath.Join(s.storiesDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}

	var story model.DataStory
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, fmt.Errorf("failed to unmarshal story: %w", err)
	}

	return &story, nil
}

// List returns metadata for all stories, newest first. The index is
// authoritative; when it is empty but story files exist on disk the index
// is rebuilt first.
func (s *StoryStorage) List() ([]StoryMetadata, error) {
	stories, err := s.index.List()
	if err != nil {
		return nil, err
	}

	if len(stories) == 0 {
		if rebuilt, rebuildErr := s.rebuildIndex(); rebuildErr == nil && rebuilt > 0 {
			return s.index.List()
		}
	}

	return stories, nil
}

// Delete removes a story from disk and from the index
func (s *StoryStorage) Delete(id string) error {
	filename := fmt.Sprintf("%s.json", id)
	path := filepath.Join(s.storiesDir, filename)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete story file: %w", err)
	}

	return s.index.Delete(id)
}

// rebuildIndex re-registers every story file on disk. Returns how many
// entries were indexed.
func (s *StoryStorage) rebuildIndex() (int, error) {
	entries, err := os.ReadDir(s.storiesDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read stories directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		story, err := s.Load(id)
		if err != nil {
			continue // Skip corrupted files
		}

		if err := s.index.Upsert(metadataOf(story)); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// Export writes a story as indented JSON to an arbitrary path
func (s *StoryStorage) Export(id string, exportPath string) error {
	story, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load story: %w", err)
	}

	data, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *StoryStorage) Close() error {
	return s.index.Close()
}

func metadataOf(story *model.DataStory) StoryMetadata {
	return StoryMetadata{
		ID:          story.ID,
		Title:       story.Title,
		Description: story.Description,
		DatasetPath: story.DatasetPath,
		StepCount:   len(story.Steps),
		CreatedAt:   story.CreatedAt,
	}
}

// GenerateExportPath generates a default export path for a story
func GenerateExportPath(storyTitle string) string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE") // Windows fallback
	}

	downloadsDir := filepath.Join(homeDir, "Downloads")
	sanitized := SanitizeFilename(storyTitle)
	timestamp := time.Now().Format("20060102-150405")

	filename := fmt.Sprintf("storyforge-%s-%s.json", sanitized, timestamp)
	return filepath.Join(downloadsDir, filename)
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	for _, bad := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " ", "\n", "\r"} {
		name = strings.ReplaceAll(name, bad, "-")
	}

	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}

	if name == "" {
		name = "story"
	}

	return name
}

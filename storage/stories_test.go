package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyforge/model"
)

func testStory(id, title string, created time.Time) *model.DataStory {
	return &model.DataStory{
		ID:          id,
		Title:       title,
		Description: "Quarterly revenue broken down by region",
		DatasetPath: "/data/sales.csv",
		CreatedAt:   created,
		Steps: []model.StoryStep{
			{
				ID:                "step-1",
				Title:             "Revenue by region",
				SQLQuery:          "SELECT region, sum(revenue) FROM base GROUP BY region",
				JSCode:            "d3.select('#chart').append('g');",
				VisualizationType: "bar",
				Order:             1,
			},
		},
	}
}

func newTestStorage(t *testing.T) *StoryStorage {
	t.Helper()
	storage, err := NewStoryStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSaveAndLoadStory(t *testing.T) {
	storage := newTestStorage(t)

	story := testStory("story-1", "Sales story", time.Now())
	if err := storage.Save(story); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := storage.Load("story-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Title != story.Title {
		t.Errorf("title: got %q, want %q", loaded.Title, story.Title)
	}
	if len(loaded.Steps) != 1 || loaded.Steps[0].SQLQuery != story.Steps[0].SQLQuery {
		t.Error("steps not round-tripped")
	}
	if loaded.DatasetPath != "/data/sales.csv" {
		t.Errorf("dataset path: got %q", loaded.DatasetPath)
	}
}

func TestSaveGeneratesID(t *testing.T) {
	storage := newTestStorage(t)

	story := testStory("", "Untitled", time.Time{})
	if err := storage.Save(story); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if story.ID == "" {
		t.Fatal("expected a generated id")
	}
	if story.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}
	if _, err := storage.Load(story.ID); err != nil {
		t.Errorf("saved story not loadable: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"story-a", "story-b", "story-c"} {
		story := testStory(id, "Story "+id, base.Add(time.Duration(i)*time.Minute))
		if err := storage.Save(story); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	stories, err := storage.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(stories) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(stories))
	}
	if stories[0].ID != "story-c" || stories[2].ID != "story-a" {
		t.Errorf("wrong order: %s, %s, %s", stories[0].ID, stories[1].ID, stories[2].ID)
	}
	if stories[0].StepCount != 1 {
		t.Errorf("step count: got %d", stories[0].StepCount)
	}
}

func TestDeleteStory(t *testing.T) {
	storage := newTestStorage(t)

	story := testStory("story-1", "Doomed", time.Now())
	if err := storage.Save(story); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := storage.Delete("story-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := storage.Load("story-1"); err == nil {
		t.Error("expected load of deleted story to fail")
	}
	stories, err := storage.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stories) != 0 {
		t.Errorf("expected empty list, got %d entries", len(stories))
	}
}

func TestListRebuildsIndexFromFiles(t *testing.T) {
	dataDir := t.TempDir()

	storage, err := NewStoryStorage(dataDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	story := testStory("story-1", "Orphan", time.Now())
	if err := storage.Save(story); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	storage.Close()

	// Simulate a lost index; the JSON file survives
	if err := os.Remove(filepath.Join(dataDir, "stories.db")); err != nil {
		t.Fatalf("failed to remove index: %v", err)
	}

	reopened, err := NewStoryStorage(dataDir)
	if err != nil {
		t.Fatalf("failed to reopen storage: %v", err)
	}
	defer reopened.Close()

	stories, err := reopened.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != "story-1" {
		t.Fatalf("expected rebuilt index with 1 story, got %v", stories)
	}
}

func TestSearchStories(t *testing.T) {
	storage := newTestStorage(t)

	now := time.Now()
	revenue := testStory("story-1", "Revenue trends", now)
	churn := testStory("story-2", "Customer churn analysis", now.Add(time.Second))
	for _, story := range []*model.DataStory{revenue, churn} {
		if err := storage.Save(story); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	matches, err := storage.SearchStories("churn")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].Metadata.ID != "story-2" {
		t.Errorf("best match: got %s", matches[0].Metadata.ID)
	}

	empty, err := storage.SearchStories("")
	if err != nil {
		t.Fatalf("empty search failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty query must match nothing, got %d", len(empty))
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Revenue by region", "Revenue-by-region"},
		{"a/b\\c:d", "a-b-c-d"},
		{"", "story"},
		{"...---", "story"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StoryIndex is the sqlite catalog of stored stories. Story bodies live in
// JSON files; the index only carries listing metadata.
type StoryIndex struct {
	db *sql.DB
}

func NewStoryIndex(dataDir string) (*StoryIndex, error) {
	dbPath := filepath.Join(dataDir, "stories.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	index := &StoryIndex{db: db}

	if err := index.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return index, nil
}

func (si *StoryIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		dataset_path TEXT NOT NULL,
		step_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stories_created_at ON stories(created_at);
	`

	_, err := si.db.Exec(schema)
	return err
}

// Upsert registers or refreshes one story's metadata
func (si *StoryIndex) Upsert(meta StoryMetadata) error {
	query := `
	INSERT OR REPLACE INTO stories (id, title, description, dataset_path, step_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := si.db.Exec(query,
		meta.ID,
		meta.Title,
		meta.Description,
		meta.DatasetPath,
		meta.StepCount,
		meta.CreatedAt,
	)

	return err
}

// Get returns one story's metadata, or nil when the id is unknown
func (si *StoryIndex) Get(id string) (*StoryMetadata, error) {
	query := `
	SELECT id, title, description, dataset_path, step_count, created_at
	FROM stories
	WHERE id = ?
	`

	var meta StoryMetadata
	err := si.db.QueryRow(query, id).Scan(
		&meta.ID,
		&meta.Title,
		&meta.Description,
		&meta.DatasetPath,
		&meta.StepCount,
		&meta.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &meta, nil
}

// List returns all indexed stories, newest first
func (si *StoryIndex) List() ([]StoryMetadata, error) {
	query := `
	SELECT id, title, description, dataset_path, step_count, created_at
	FROM stories
	ORDER BY created_at DESC
	`

	rows, err := si.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []StoryMetadata
	for rows.Next() {
		var meta StoryMetadata
		err := rows.Scan(
			&meta.ID,
			&meta.Title,
			&meta.Description,
			&meta.DatasetPath,
			&meta.StepCount,
			&meta.CreatedAt,
		)
		if err != nil {
			continue
		}
		stories = append(stories, meta)
	}

	return stories, rows.Err()
}

func (si *StoryIndex) Delete(id string) error {
	query := `DELETE FROM stories WHERE id = ?`
	_, err := si.db.Exec(query, id)
	return err
}

func (si *StoryIndex) Close() error {
	if si.db != nil {
		return si.db.Close()
	}
	return nil
}

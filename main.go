package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storyforge/config"
	"storyforge/engine"
	"storyforge/mcp"
	"storyforge/model"
	"storyforge/provider"
	"storyforge/render"
	"storyforge/storage"
)

const Version = "v0.1.0"

func main() {
	var (
		datasetPath = flag.String("dataset", "", "path to the dataset file to explore")
		prompt      = flag.String("prompt", "", "analysis goal for the story")
		description = flag.String("description", "", "extra context about the dataset")
		listStories = flag.Bool("list", false, "list stored stories and exit")
		search      = flag.String("search", "", "fuzzy-search stored stories and exit")
		providerID  = flag.String("provider", "", "provider to use (ollama, openai, openrouter, anthropic)")
		modelID     = flag.String("model", "", "model to generate with")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("storyforge %s\n", Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitDebugLog(cfg.DataDir())

	console := render.NewConsole(os.Stdout)

	if *listStories || *search != "" {
		if err := runCatalog(cfg, console, *search); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: storyforge -dataset <path> [-prompt <goal>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := runGeneration(cfg, console, *datasetPath, *prompt, *description, *providerID, *modelID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCatalog(cfg *config.Config, console *render.Console, query string) error {
	store, err := storage.NewStoryStorage(cfg.DataDir())
	if err != nil {
		return err
	}
	defer store.Close()

	var stories []storage.StoryMetadata
	if query != "" {
		matches, err := store.SearchStories(query)
		if err != nil {
			return err
		}
		for _, match := range matches {
			stories = append(stories, match.Metadata)
		}
	} else {
		stories, err = store.List()
		if err != nil {
			return err
		}
	}

	entries := make([]render.StoryListEntry, len(stories))
	for i, meta := range stories {
		entries[i] = render.StoryListEntry{
			ID:        meta.ID,
			Title:     meta.Title,
			StepCount: meta.StepCount,
			CreatedAt: meta.CreatedAt.Format("2006-01-02 15:04"),
		}
	}
	console.PrintStoryList(entries)
	return nil
}

func runGeneration(cfg *config.Config, console *render.Console, datasetPath, prompt, description, providerID, modelID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if providerID == "" {
		providerID = cfg.DefaultProvider
	}
	if modelID == "" {
		modelID = cfg.DefaultModel
	}

	providers := provider.InitializeProviders(cfg)
	prov, err := provider.SelectProvider(providers, providerID)
	if err != nil {
		return err
	}

	resolved, err := engine.ResolveModel(ctx, prov, modelID)
	if err != nil {
		return fmt.Errorf("no usable model on provider %s: %w", providerID, err)
	}
	prov.SetModel(resolved)

	sink := console.Sink()

	// A reader server that fails to start degrades generation to
	// unvalidated rather than aborting
	var gateway engine.ToolGateway
	if cfg.MCPCommand != "" {
		gw, err := mcp.Connect(ctx, mcp.ServerConfig{
			Command: cfg.MCPCommand,
			Args:    cfg.MCPArgs,
		})
		if err != nil {
			sink(model.ProgressStep{
				Kind:      model.StepError,
				Timestamp: time.Now(),
				Content:   fmt.Sprintf("reader server unavailable, continuing without validation: %v", err),
			})
		} else {
			gateway = gw
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = gw.Shutdown(shutdownCtx)
			}()
		}
	}

	generator := &engine.Generator{
		Provider: prov,
		Gateway:  gateway,
		Config:   cfg,
		Sink:     sink,
	}

	story, err := generator.Generate(ctx, datasetPath, prompt, description)
	if err != nil {
		return err
	}

	store, err := storage.NewStoryStorage(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("story generated but not saved: %w", err)
	}
	defer store.Close()

	if err := store.Save(story); err != nil {
		return fmt.Errorf("story generated but not saved: %w", err)
	}

	console.PrintStory(story)
	fmt.Printf("\nsaved as %s\n", story.ID)
	return nil
}

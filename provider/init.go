package provider

import (
	"fmt"

	"storyforge/config"
	"storyforge/model"
)

// InitializeProviders creates provider instances for every configured backend.
//
// This function is the single entry point for provider initialization.
// It handles:
//   - Creating the Ollama provider (always attempted)
//   - Creating cloud providers for each entry with an API key configured
//   - Graceful degradation (logs warnings but doesn't fail)
//
// The returned map is keyed by provider ID ("ollama", "openai",
// "openrouter", "anthropic"). The "ollama" entry is absent when the local
// daemon client cannot be constructed.
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)

	// Ollama is the special case: no API key, always attempted
	ollamaProvider, err := NewOllamaProvider(cfg.OllamaHost, cfg.DefaultModel)
	if err == nil {
		providers["ollama"] = ollamaProvider
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Initialized Ollama provider")
		}
	} else if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] Ollama provider initialization failed: %v", err)
	}

	cloudEntries := map[string]config.ProviderEntry{
		"openai":     cfg.OpenAI,
		"openrouter": cfg.OpenRouter,
		"anthropic":  cfg.Anthropic,
	}

	for id, entry := range cloudEntries {
		if entry.APIKey == "" {
			continue
		}

		p, err := NewProvider(Config{
			Type:    MapProviderIDToType(id),
			BaseURL: entry.BaseURL,
			APIKey:  entry.APIKey,
			Model:   cfg.DefaultModel,
		})

		if err != nil {
			// Log warning but don't fail, other providers may still work
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", id, err)
			}
			continue
		}

		providers[id] = p
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Initialized provider: %s", id)
		}
	}

	return providers
}

// SelectProvider returns the provider matching the configured default,
// or an error naming the providers that did initialize.
func SelectProvider(providers map[string]model.Provider, id string) (model.Provider, error) {
	if p, ok := providers[id]; ok {
		return p, nil
	}

	available := make([]string, 0, len(providers))
	for k := range providers {
		available = append(available, k)
	}
	return nil, fmt.Errorf("provider %q is not configured (available: %v)", id, available)
}

package engine

import (
	"context"
	"fmt"
	"time"

	"storyforge/config"
	"storyforge/model"
)

const (
	modelListAttempts     = 5
	modelListInitialDelay = 200 * time.Millisecond
)

// ResolveModel picks the model to generate with. It lists available models
// with exponential backoff (5 attempts, 200ms initial delay, doubling),
// preferring the requested id and falling back to the first available.
//
// Returns ErrModelUnavailable when no models can be listed after all
// attempts.
func ResolveModel(ctx context.Context, provider model.Provider, preferred string) (string, error) {
	var models []listItem

	delay := modelListInitialDelay
	for attempt := 1; attempt <= modelListAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		infos, err := provider.ListModels(ctx)
		if err == nil && len(infos) > 0 {
			models = make([]listItem, len(infos))
			for i, info := range infos {
				models[i] = listItem{name: info.Name, internal: info.InternalName}
			}
			break
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] ListModels attempt %d/%d failed (err=%v, count=%d)", attempt, modelListAttempts, err, len(infos))
		}

		if attempt == modelListAttempts {
			return "", fmt.Errorf("%w: listing failed after %d attempts", ErrModelUnavailable, modelListAttempts)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}

	if len(models) == 0 {
		return "", ErrModelUnavailable
	}

	if preferred != "" {
		for _, m := range models {
			if m.name == preferred || m.internal == preferred {
				return m.apiName(), nil
			}
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] Preferred model %q not found, falling back to %q", preferred, models[0].apiName())
		}
	}

	return models[0].apiName(), nil
}

type listItem struct {
	name     string
	internal string
}

func (l listItem) apiName() string {
	if l.internal != "" {
		return l.internal
	}
	return l.name
}

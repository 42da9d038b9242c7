package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Generation caps. These bound unattended model/tool usage per request and
// are deliberately small; the user config can raise them.
const (
	DefaultMaxRounds        = 5
	DefaultMaxCallsPerRound = 10
	DefaultSQLRepairRetries = 2
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/storyforge",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: "ollama",
		Ollama: OllamaConfig{
			Host:         "http://localhost:11434",
			DefaultModel: "llama3.1:latest",
		},
		MCP: MCPConfig{
			Command: "reader-service",
		},
		Generation: GenerationConfig{
			MaxRounds:        DefaultMaxRounds,
			MaxCallsPerRound: DefaultMaxCallsPerRound,
			SQLRepairRetries: DefaultSQLRepairRetries,
		},
	}
}

func CreateDefaultSystemConfig() error {
	configDir := GetConfigDir()
	if err := EnsureDir(configDir); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := GetSettingsFilePath()
	f, err := os.OpenFile(settingsPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(DefaultSystemConfig())
}

func CreateDefaultUserConfig(dataDir string) error {
	if err := EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	userConfigPath := filepath.Join(dataDir, "config.toml")
	f, err := os.OpenFile(userConfigPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create user config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(DefaultUserConfig())
}

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ProviderEntry struct {
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
}

type OllamaConfig struct {
	Host         string `toml:"host"`
	DefaultModel string `toml:"default_model"`
}

type MCPConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args,omitempty"`
}

type GenerationConfig struct {
	MaxRounds        int `toml:"max_rounds"`
	MaxCallsPerRound int `toml:"max_calls_per_round"`
	SQLRepairRetries int `toml:"sql_repair_retries"`
}

type UserConfig struct {
	DefaultProvider string           `toml:"default_provider"`
	DefaultModel    string           `toml:"default_model,omitempty"`
	Ollama          OllamaConfig     `toml:"ollama"`
	OpenAI          ProviderEntry    `toml:"openai,omitempty"`
	OpenRouter      ProviderEntry    `toml:"openrouter,omitempty"`
	Anthropic       ProviderEntry    `toml:"anthropic,omitempty"`
	MCP             MCPConfig        `toml:"mcp"`
	Generation      GenerationConfig `toml:"generation"`
}

// Config is the flattened runtime view assembled from the system and user
// TOML files plus environment overrides.
type Config struct {
	DataDirectory    string
	DefaultProvider  string
	DefaultModel     string
	OllamaHost       string
	OpenAI           ProviderEntry
	OpenRouter       ProviderEntry
	Anthropic        ProviderEntry
	MCPCommand       string
	MCPArgs          []string
	MaxRounds        int
	MaxCallsPerRound int
	SQLRepairRetries int
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("STORYFORGE_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("STORYFORGE_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if host := os.Getenv("STORYFORGE_OLLAMA_HOST"); host != "" {
		c.OllamaHost = host
	}
	if dataDir := os.Getenv("STORYFORGE_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if cmd := os.Getenv("STORYFORGE_MCP_COMMAND"); cmd != "" {
		c.MCPCommand = cmd
		c.MCPArgs = nil
	}
}

func CheckDebug() bool {
	debug := os.Getenv("STORYFORGE_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - the log can contain prompt and dataset content
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (STORYFORGE_DEBUG=%s) ===", os.Getenv("STORYFORGE_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

func (u *UserConfig) flattenInto(cfg *Config) {
	cfg.DefaultProvider = u.DefaultProvider
	cfg.DefaultModel = u.DefaultModel
	cfg.OllamaHost = u.Ollama.Host
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = u.Ollama.DefaultModel
	}
	cfg.OpenAI = u.OpenAI
	cfg.OpenRouter = u.OpenRouter
	cfg.Anthropic = u.Anthropic
	cfg.MCPCommand = u.MCP.Command
	cfg.MCPArgs = u.MCP.Args
	if u.Generation.MaxRounds > 0 {
		cfg.MaxRounds = u.Generation.MaxRounds
	}
	if u.Generation.MaxCallsPerRound > 0 {
		cfg.MaxCallsPerRound = u.Generation.MaxCallsPerRound
	}
	if u.Generation.SQLRepairRetries > 0 {
		cfg.SQLRepairRetries = u.Generation.SQLRepairRetries
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:    "~/.local/share/storyforge",
		DefaultProvider:  "ollama",
		OllamaHost:       "http://localhost:11434",
		MaxRounds:        DefaultMaxRounds,
		MaxCallsPerRound: DefaultMaxCallsPerRound,
		SQLRepairRetries: DefaultSQLRepairRetries,
	}

	settingsPath := GetSettingsFilePath()

	if FileExists(settingsPath) {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory

		userCfg, err := LoadUserConfig(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
		userCfg.flattenInto(cfg)
	}

	cfg.applyEnvOverrides()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

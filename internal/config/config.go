// Package config handles configuration loading and management for loom.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ProjectConfigName is the project-level config file searched upward from
// the working directory.
const ProjectConfigName = ".loom.yaml"

// Config holds all configuration for loom.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Bedrock BedrockConfig `mapstructure:"bedrock"`
}

// BedrockConfig routes model calls through AWS Bedrock.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// OrchestratorConfig holds graph and action execution settings.
type OrchestratorConfig struct {
	// MaxConcurrency bounds tasks per wave. 0 means unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// RetryAttempts is the total attempts per tool call.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// EventBuffer is the progress event channel size.
	EventBuffer int `mapstructure:"event_buffer"`
}

// AgentsConfig selects the agent backend and disabled kinds.
type AgentsConfig struct {
	// Backend is "declarative" or "claude".
	Backend  string   `mapstructure:"backend"`
	Disabled []string `mapstructure:"disabled"`
}

// MemoryConfig selects the session context store.
type MemoryConfig struct {
	// Driver is "sqlite" or "memory". The memory driver does not survive
	// between commands.
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	// DebugLog is the orchestrator debug log path. Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// DisabledKinds returns the disabled agent kinds.
func (a AgentsConfig) DisabledKinds() []models.AgentKind {
	kinds := make([]models.AgentKind, 0, len(a.Disabled))
	for _, d := range a.Disabled {
		kinds = append(kinds, models.AgentKind(strings.TrimSpace(d)))
	}
	return kinds
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, LOOM_*)
// 2. Project config (.loom.yaml in current directory or parent)
// 3. User config (~/.config/loom/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file over the defaults.
// Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "LOOM_ANTHROPIC_API_KEY")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes the configuration to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.bedrock.enabled", cfg.Anthropic.Bedrock.Enabled)
	v.Set("anthropic.bedrock.region", cfg.Anthropic.Bedrock.Region)
	v.Set("anthropic.bedrock.profile", cfg.Anthropic.Bedrock.Profile)
	v.Set("orchestrator.max_concurrency", cfg.Orchestrator.MaxConcurrency)
	v.Set("orchestrator.retry_attempts", cfg.Orchestrator.RetryAttempts)
	v.Set("orchestrator.retry_delay", cfg.Orchestrator.RetryDelay.String())
	v.Set("orchestrator.event_buffer", cfg.Orchestrator.EventBuffer)
	v.Set("agents.backend", cfg.Agents.Backend)
	v.Set("agents.disabled", cfg.Agents.Disabled)
	v.Set("memory.driver", cfg.Memory.Driver)
	v.Set("memory.ttl", cfg.Memory.TTL.String())
	v.Set("memory.sweep_interval", cfg.Memory.SweepInterval.String())
	v.Set("storage.driver", cfg.Storage.Driver)
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("logging.debug_log", cfg.Logging.DebugLog)

	return v.WriteConfig()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string

	if c.Orchestrator.MaxConcurrency < 0 {
		problems = append(problems, "orchestrator.max_concurrency must be >= 0")
	}
	if c.Orchestrator.RetryAttempts < 1 {
		problems = append(problems, "orchestrator.retry_attempts must be >= 1")
	}
	if c.Orchestrator.RetryDelay < 0 {
		problems = append(problems, "orchestrator.retry_delay must not be negative")
	}
	if c.Orchestrator.EventBuffer < 0 {
		problems = append(problems, "orchestrator.event_buffer must be >= 0")
	}

	switch c.Agents.Backend {
	case "declarative", "claude":
	default:
		problems = append(problems, fmt.Sprintf("agents.backend %q must be declarative or claude", c.Agents.Backend))
	}
	for _, kind := range c.Agents.DisabledKinds() {
		if !kind.Valid() {
			problems = append(problems, fmt.Sprintf("agents.disabled: unknown agent kind %q", kind))
		}
	}

	switch c.Memory.Driver {
	case "memory", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("memory.driver %q must be memory or sqlite", c.Memory.Driver))
	}
	if c.Memory.TTL <= 0 {
		problems = append(problems, "memory.ttl must be positive")
	}

	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q must be sqlite or sqlite3", c.Storage.Driver))
	}
	if c.Storage.Path == "" {
		problems = append(problems, "storage.path must be set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", d.Anthropic.APIKey)
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.bedrock.enabled", d.Anthropic.Bedrock.Enabled)
	v.SetDefault("anthropic.bedrock.region", d.Anthropic.Bedrock.Region)
	v.SetDefault("anthropic.bedrock.profile", d.Anthropic.Bedrock.Profile)

	v.SetDefault("orchestrator.max_concurrency", d.Orchestrator.MaxConcurrency)
	v.SetDefault("orchestrator.retry_attempts", d.Orchestrator.RetryAttempts)
	v.SetDefault("orchestrator.retry_delay", d.Orchestrator.RetryDelay.String())
	v.SetDefault("orchestrator.event_buffer", d.Orchestrator.EventBuffer)

	v.SetDefault("agents.backend", d.Agents.Backend)
	v.SetDefault("agents.disabled", d.Agents.Disabled)

	v.SetDefault("memory.driver", d.Memory.Driver)
	v.SetDefault("memory.ttl", d.Memory.TTL.String())
	v.SetDefault("memory.sweep_interval", d.Memory.SweepInterval.String())

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("logging.debug_log", d.Logging.DebugLog)
}

// getUserConfigDir returns the XDG config directory for loom.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "loom")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "loom")
	}
	return filepath.Join(home, ".config", "loom")
}

// findProjectConfig searches for .loom.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 0,
			RetryAttempts:  3,
			RetryDelay:     time.Second,
			EventBuffer:    256,
		},
		Agents: AgentsConfig{
			Backend:  "declarative",
			Disabled: []string{},
		},
		Memory: MemoryConfig{
			Driver:        "sqlite",
			TTL:           24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(".loom", "state.db"),
		},
		Logging: LoggingConfig{
			DebugLog: filepath.Join(".loom", "logs", "orchestrator-debug.log"),
		},
	}
}

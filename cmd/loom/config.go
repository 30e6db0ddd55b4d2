package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/config"
)

// configKeys lists the keys shown by 'loom config' in display order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.bedrock.enabled",
	"anthropic.bedrock.region",
	"anthropic.bedrock.profile",
	"orchestrator.max_concurrency",
	"orchestrator.retry_attempts",
	"orchestrator.retry_delay",
	"orchestrator.event_buffer",
	"agents.backend",
	"agents.disabled",
	"memory.driver",
	"memory.ttl",
	"memory.sweep_interval",
	"storage.driver",
	"storage.path",
	"logging.debug_log",
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify loom configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/loom/config.yaml
Project-specific overrides can be placed in .loom.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}

	_, source, err := config.ResolveAPIKey(cfg)
	if err != nil {
		printStatus("⚠", "No API key; only --graph runs with the declarative backend will work", color.FgYellow)
		return
	}
	printStatus("✓", fmt.Sprintf("API key source: %s", source), color.FgGreen)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	if configPath != "" {
		err = config.SaveToPath(cfg, configPath)
	} else {
		err = config.Save(cfg)
	}
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	display, _ := getConfigValue(cfg, key)
	fmt.Printf("Set %s = %s\n", key, display)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.bedrock.enabled":
		return strconv.FormatBool(cfg.Anthropic.Bedrock.Enabled), nil
	case "anthropic.bedrock.region":
		return cfg.Anthropic.Bedrock.Region, nil
	case "anthropic.bedrock.profile":
		return cfg.Anthropic.Bedrock.Profile, nil
	case "orchestrator.max_concurrency":
		return strconv.Itoa(cfg.Orchestrator.MaxConcurrency), nil
	case "orchestrator.retry_attempts":
		return strconv.Itoa(cfg.Orchestrator.RetryAttempts), nil
	case "orchestrator.retry_delay":
		return cfg.Orchestrator.RetryDelay.String(), nil
	case "orchestrator.event_buffer":
		return strconv.Itoa(cfg.Orchestrator.EventBuffer), nil
	case "agents.backend":
		return cfg.Agents.Backend, nil
	case "agents.disabled":
		return strings.Join(cfg.Agents.Disabled, ","), nil
	case "memory.driver":
		return cfg.Memory.Driver, nil
	case "memory.ttl":
		return cfg.Memory.TTL.String(), nil
	case "memory.sweep_interval":
		return cfg.Memory.SweepInterval.String(), nil
	case "storage.driver":
		return cfg.Storage.Driver, nil
	case "storage.path":
		return cfg.Storage.Path, nil
	case "logging.debug_log":
		return cfg.Logging.DebugLog, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.bedrock.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for anthropic.bedrock.enabled: %w", err)
		}
		cfg.Anthropic.Bedrock.Enabled = b
	case "anthropic.bedrock.region":
		cfg.Anthropic.Bedrock.Region = value
	case "anthropic.bedrock.profile":
		cfg.Anthropic.Bedrock.Profile = value
	case "orchestrator.max_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrency: %w", err)
		}
		cfg.Orchestrator.MaxConcurrency = n
	case "orchestrator.retry_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for retry_attempts: %w", err)
		}
		cfg.Orchestrator.RetryAttempts = n
	case "orchestrator.retry_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for retry_delay: %w", err)
		}
		cfg.Orchestrator.RetryDelay = d
	case "orchestrator.event_buffer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for event_buffer: %w", err)
		}
		cfg.Orchestrator.EventBuffer = n
	case "agents.backend":
		cfg.Agents.Backend = value
	case "agents.disabled":
		cfg.Agents.Disabled = splitList(value)
	case "memory.driver":
		cfg.Memory.Driver = value
	case "memory.ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for memory.ttl: %w", err)
		}
		cfg.Memory.TTL = d
	case "memory.sweep_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for memory.sweep_interval: %w", err)
		}
		cfg.Memory.SweepInterval = d
	case "storage.driver":
		cfg.Storage.Driver = value
	case "storage.path":
		cfg.Storage.Path = value
	case "logging.debug_log":
		cfg.Logging.DebugLog = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

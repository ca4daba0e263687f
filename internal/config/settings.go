package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigIssue is one finding reported by Validate.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // error, warning, info
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Validate checks config values and returns a list of issues.
func Validate(cfg *Config) []ConfigIssue {
	var issues []ConfigIssue

	switch {
	case cfg.Provider == "ollama":
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  fmt.Sprintf("Ollama configured at %s (no API key needed)", cfg.Ollama.Host),
		})
	case NeedsKey(cfg.Provider):
		if _, err := cfg.GetAPIKey(cfg.Provider); err != nil {
			issues = append(issues, ConfigIssue{
				Key:      "provider",
				Severity: "error",
				Message:  fmt.Sprintf("provider is %q but %s is not set", cfg.Provider, credentialEnv[cfg.Provider][0]),
				Fix:      fmt.Sprintf("export %s=...\nOr: xlengine config set api_keys.%s ...", credentialEnv[cfg.Provider][0], cfg.Provider),
			})
		} else {
			issues = append(issues, ConfigIssue{
				Key:      "provider",
				Severity: "info",
				Message:  fmt.Sprintf("%s API key configured", cfg.Provider),
			})
		}
	default:
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("unknown provider %q", cfg.Provider),
			Fix:      "xlengine config set provider gemini",
		})
	}

	if cfg.Operations.SampleRows < 0 {
		issues = append(issues, ConfigIssue{
			Key:      "operations.sample_rows",
			Severity: "error",
			Message:  fmt.Sprintf("sample_rows must not be negative, got %d", cfg.Operations.SampleRows),
		})
	}
	if cfg.Agent.MaxRows <= 0 {
		issues = append(issues, ConfigIssue{
			Key:      "agent.max_rows",
			Severity: "warning",
			Message:  "agent.max_rows is not positive — the agent will receive no rows",
		})
	}
	if !cfg.Storage.RestrictPaths {
		issues = append(issues, ConfigIssue{
			Key:      "storage.restrict_paths",
			Severity: "warning",
			Message:  "path containment is off — requests may read any file the process can open",
			Fix:      "xlengine config set storage.restrict_paths true",
		})
	}
	if cfg.Log.SeqURL != "" {
		issues = append(issues, ConfigIssue{
			Key:      "log.seq_url",
			Severity: "info",
			Message:  fmt.Sprintf("logs are also shipped to Seq at %s", cfg.Log.SeqURL),
		})
	}

	return issues
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// SaveConfig writes the current config to ~/.xlengine/config.yaml.
func SaveConfig() error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// Set secure permissions
	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path of the config file in use.
func ConfigPath() string {
	if ConfigFile != "" {
		return ConfigFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(configDir(), "config.yaml")
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	sb.WriteString("AI\n")
	sb.WriteString(fmt.Sprintf("  provider:     %s\n", cfg.Provider))
	sb.WriteString(fmt.Sprintf("  model:        %s\n", cfg.Model))
	if k, err := cfg.GetAPIKey(cfg.Provider); err == nil && k != "" {
		sb.WriteString(fmt.Sprintf("  key:          %s****\n", k[:min(6, len(k))]))
	}
	sb.WriteString(fmt.Sprintf("  max_rows:     %d\n", cfg.Agent.MaxRows))
	sb.WriteString("\n")

	sb.WriteString("Server\n")
	sb.WriteString(fmt.Sprintf("  addr:         %s\n", cfg.Server.Addr))
	sb.WriteString(fmt.Sprintf("  uploads:      %s\n", cfg.Storage.UploadDir))
	sb.WriteString(fmt.Sprintf("  outputs:      %s\n", cfg.Storage.OutputDir))
	sb.WriteString(fmt.Sprintf("  restricted:   %t\n", cfg.Storage.RestrictPaths))
	sb.WriteString("\n")

	if cfg.Audit.Enabled {
		sb.WriteString("Audit\n")
		sb.WriteString(fmt.Sprintf("  path:         %s\n", cfg.Audit.Path))
		sb.WriteString("\n")
	}

	return sb.String()
}

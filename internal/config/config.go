// Package config manages application configuration from files, .env and environment.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKeys  struct {
		Gemini    string `mapstructure:"gemini"`
		Anthropic string `mapstructure:"anthropic"`
		OpenAI    string `mapstructure:"openai"`
	} `mapstructure:"api_keys"`
	Ollama struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`
	Server struct {
		Addr        string `mapstructure:"addr"`
		MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	} `mapstructure:"server"`
	Storage struct {
		UploadDir     string `mapstructure:"upload_dir"`
		OutputDir     string `mapstructure:"output_dir"`
		RestrictPaths bool   `mapstructure:"restrict_paths"`
	} `mapstructure:"storage"`
	Operations struct {
		SampleRows      int  `mapstructure:"sample_rows"`
		StrictAggregate bool `mapstructure:"strict_aggregate"`
	} `mapstructure:"operations"`
	Agent struct {
		MaxRows     int     `mapstructure:"max_rows"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"agent"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		SeqURL string `mapstructure:"seq_url"`
	} `mapstructure:"log"`
	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"audit"`
}

// DefaultModels maps each provider to the model used when none is configured.
var DefaultModels = map[string]string{
	"gemini":    "gemini-1.5-flash",
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o",
	"ollama":    "llama3.1",
}

// ConfigFile, when set, is read instead of searching the config paths.
var ConfigFile string

// Load reads .env, then config.yaml from ./ or ~/.xlengine (or ConfigFile), then
// XLENGINE_* environment variables.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	if ConfigFile != "" {
		viper.SetConfigFile(ConfigFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(configDir())
	}

	setDefaults()

	// Environment variable overrides: XLENGINE_SERVER_ADDR -> server.addr
	viper.SetEnvPrefix("XLENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModels[cfg.Provider]
	}
	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", "gemini")
	viper.SetDefault("model", "")
	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("server.addr", ":8000")
	viper.SetDefault("server.max_upload_mb", 32)
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.output_dir", "outputs")
	viper.SetDefault("storage.restrict_paths", true)
	viper.SetDefault("operations.sample_rows", 10)
	viper.SetDefault("operations.strict_aggregate", false)
	viper.SetDefault("agent.max_rows", 1000)
	viper.SetDefault("agent.temperature", 0.0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.seq_url", "")
	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.path", "~/.xlengine/audit.log")
	viper.SetDefault("api_keys.gemini", "")
	viper.SetDefault("api_keys.anthropic", "")
	viper.SetDefault("api_keys.openai", "")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".xlengine"
	}
	return filepath.Join(home, ".xlengine")
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

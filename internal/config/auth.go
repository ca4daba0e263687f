package config

import (
	"fmt"
	"os"
)

// credentialEnv lists, per provider, the environment variables checked for an API
// key. The first non-empty one wins.
var credentialEnv = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
}

// NeedsKey reports whether the provider authenticates with an API key.
func NeedsKey(provider string) bool {
	_, ok := credentialEnv[provider]
	return ok
}

// GetAPIKey retrieves the API key for the given provider, checking environment
// variables first and falling back to the config file.
func (c *Config) GetAPIKey(provider string) (string, error) {
	vars, ok := credentialEnv[provider]
	if !ok {
		if provider == "ollama" {
			return "", nil
		}
		return "", fmt.Errorf("no API key management for provider %q", provider)
	}
	for _, name := range vars {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}

	var fromFile string
	switch provider {
	case "gemini":
		fromFile = c.APIKeys.Gemini
	case "anthropic":
		fromFile = c.APIKeys.Anthropic
	case "openai":
		fromFile = c.APIKeys.OpenAI
	}
	if fromFile != "" {
		return fromFile, nil
	}
	return "", fmt.Errorf("%s not found — set it via environment variable or api_keys.%s in %s", vars[0], provider, ConfigPath())
}

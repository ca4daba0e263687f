// Package ai provides a unified interface to multiple AI inference providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors shared by every provider. Callers match them with errors.Is.
var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrUnauthorized      = errors.New("provider rejected the API credential")
	ErrRateLimited       = errors.New("provider rate limit or quota exceeded")
	ErrUnavailable       = errors.New("provider unavailable")
)

// Message represents a single message in a conversation with an AI model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// InferOptions configures a single inference call. Zero fields fall back to the
// provider's settings.
type InferOptions struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// InferResult holds the response from an inference call.
type InferResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider defines the interface that all AI backends must implement.
type Provider interface {
	// Infer sends a prompt and returns the complete response.
	Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error)

	// Stream sends a prompt and returns a channel of response chunks.
	Stream(ctx context.Context, system string, messages []Message, opts InferOptions) (<-chan string, <-chan error, error)

	// Name returns the provider identifier.
	Name() string
}

// Options configures a provider.
type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	// BaseURL overrides the API endpoint; for ollama it is the server host.
	BaseURL string
	Timeout time.Duration
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{"gemini", "anthropic", "openai", "ollama"}
}

// NewProvider creates a provider instance based on the provider name.
func NewProvider(name string, opts Options) (Provider, error) {
	name = strings.ToLower(name)
	if name != "ollama" && opts.APIKey == "" {
		switch name {
		case "gemini", "anthropic", "openai":
			return nil, fmt.Errorf("%s: %w", name, ErrMissingCredential)
		}
	}
	switch name {
	case "gemini":
		return NewGeminiProvider(opts), nil
	case "anthropic":
		return NewAnthropicProvider(opts), nil
	case "openai":
		return NewOpenAIProvider(opts), nil
	case "ollama":
		return NewOllamaProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q — supported providers: %s", name, strings.Join(Providers(), ", "))
	}
}

// settings is the state every provider carries.
type settings struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func newSettings(name, defaultURL, defaultModel string, defaultTimeout time.Duration, opts Options) settings {
	s := settings{
		name:        name,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
	}
	if s.baseURL == "" {
		s.baseURL = defaultURL
	}
	if s.model == "" {
		s.model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s.client = &http.Client{Timeout: timeout}
	return s
}

// Name returns the provider identifier.
func (s settings) Name() string {
	return s.name
}

func (s settings) resolve(opts InferOptions) (model string, temperature float64, maxTokens int) {
	model, temperature, maxTokens = s.model, s.temperature, 4096
	if opts.Model != "" {
		model = opts.Model
	}
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return model, temperature, maxTokens
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider implements the Provider interface for local Ollama models.
type OllamaProvider struct {
	settings
}

// NewOllamaProvider creates a new Ollama provider. Options.BaseURL is the Ollama host.
func NewOllamaProvider(opts Options) *OllamaProvider {
	return &OllamaProvider{newSettings("ollama", defaultOllamaHost, defaultOllamaModel, 300*time.Second, opts)}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *OllamaProvider) request(system string, messages []Message, opts InferOptions, stream bool) ollamaRequest {
	model, temperature, _ := p.resolve(opts)
	msgs := make([]ollamaMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, ollamaMessage(m))
	}
	req := ollamaRequest{Model: model, Messages: msgs, Stream: stream}
	req.Options.Temperature = temperature
	return req
}

func (p *OllamaProvider) wrap(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("could not connect to Ollama at %s — is Ollama running? Start it with 'ollama serve': %w", p.baseURL, err)
	}
	return err
}

// Infer sends a prompt to Ollama and returns the complete response.
func (p *OllamaProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	var apiResp ollamaResponse
	if err := p.decode(ctx, p.baseURL+"/api/chat", p.request(system, messages, opts, false), nil, &apiResp); err != nil {
		return nil, p.wrap(err)
	}
	model := apiResp.Model
	if model == "" {
		model = p.model
	}
	return &InferResult{
		Content:      apiResp.Message.Content,
		Model:        model,
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
	}, nil
}

// Stream sends a prompt to Ollama and returns a channel of streamed text chunks.
func (p *OllamaProvider) Stream(ctx context.Context, system string, messages []Message, opts InferOptions) (<-chan string, <-chan error, error) {
	resp, err := p.post(ctx, p.baseURL+"/api/chat", p.request(system, messages, opts, true), nil)
	if err != nil {
		return nil, nil, p.wrap(err)
	}

	textCh, errCh := streamLines(ctx, resp, func(line string) (string, bool) {
		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", false
		}
		return chunk.Message.Content, chunk.Done
	})
	return textCh, errCh, nil
}

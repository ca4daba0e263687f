package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	openaiAPIURL    = "https://api.openai.com"
	defaultGPTModel = "gpt-4o"
)

// OpenAIProvider implements the Provider interface for OpenAI models.
type OpenAIProvider struct {
	settings
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	return &OpenAIProvider{newSettings("openai", openaiAPIURL, defaultGPTModel, 120*time.Second, opts)}
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) request(system string, messages []Message, opts InferOptions, stream bool) openaiRequest {
	model, temperature, maxTokens := p.resolve(opts)
	msgs := make([]openaiMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openaiMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, openaiMessage(m))
	}
	return openaiRequest{Model: model, Messages: msgs, Temperature: temperature, MaxTokens: maxTokens, Stream: stream}
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// Infer sends a prompt to OpenAI and returns the complete response.
func (p *OpenAIProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	var apiResp openaiResponse
	err := p.decode(ctx, p.baseURL+"/v1/chat/completions", p.request(system, messages, opts, false), p.headers(), &apiResp)
	if err != nil {
		return nil, err
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}

	return &InferResult{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

// Stream sends a prompt to OpenAI and returns a channel of streamed text chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, system string, messages []Message, opts InferOptions) (<-chan string, <-chan error, error) {
	resp, err := p.post(ctx, p.baseURL+"/v1/chat/completions", p.request(system, messages, opts, true), p.headers())
	if err != nil {
		return nil, nil, err
	}

	textCh, errCh := streamLines(ctx, resp, func(line string) (string, bool) {
		data, ok := sseData(line)
		if !ok {
			return "", false
		}
		if data == "[DONE]" {
			return "", true
		}
		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil || len(event.Choices) == 0 {
			return "", false
		}
		return event.Choices[0].Delta.Content, false
	})
	return textCh, errCh, nil
}

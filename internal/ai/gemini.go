package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	geminiAPIURL       = "https://generativelanguage.googleapis.com"
	defaultGeminiModel = "gemini-1.5-flash"
)

// GeminiProvider implements the Provider interface for Google's Gemini models
// through the generateContent API.
type GeminiProvider struct {
	settings
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(opts Options) *GeminiProvider {
	return &GeminiProvider{newSettings("gemini", geminiAPIURL, defaultGeminiModel, 120*time.Second, opts)}
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion   string `json:"modelVersion"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (p *GeminiProvider) request(system string, messages []Message, opts InferOptions) (geminiRequest, string) {
	model, temperature, maxTokens := p.resolve(opts)
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{Temperature: temperature, MaxOutputTokens: maxTokens},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return req, model
}

func (p *GeminiProvider) endpoint(model, method string, sse bool) string {
	q := url.Values{}
	q.Set("key", p.apiKey)
	if sse {
		q.Set("alt", "sse")
	}
	return fmt.Sprintf("%s/v1beta/models/%s:%s?%s", p.baseURL, url.PathEscape(model), method, q.Encode())
}

// Infer sends a prompt to Gemini and returns the complete response.
func (p *GeminiProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	req, model := p.request(system, messages, opts)

	var apiResp geminiResponse
	if err := p.decode(ctx, p.endpoint(model, "generateContent", false), req, nil, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini blocked the prompt: %s", apiResp.PromptFeedback.BlockReason)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, errors.New("gemini empty response")
	}

	if apiResp.ModelVersion != "" {
		model = apiResp.ModelVersion
	}
	return &InferResult{
		Content:      apiResp.text(),
		Model:        model,
		InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// Stream sends a prompt to Gemini and returns a channel of streamed text chunks.
func (p *GeminiProvider) Stream(ctx context.Context, system string, messages []Message, opts InferOptions) (<-chan string, <-chan error, error) {
	req, model := p.request(system, messages, opts)
	resp, err := p.post(ctx, p.endpoint(model, "streamGenerateContent", true), req, nil)
	if err != nil {
		return nil, nil, err
	}

	textCh, errCh := streamLines(ctx, resp, func(line string) (string, bool) {
		data, ok := sseData(line)
		if !ok {
			return "", false
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", false
		}
		done := len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != ""
		return chunk.text(), done
	})
	return textCh, errCh, nil
}

// Package agent bridges natural-language instructions to an LLM provider.
//
// The table is sent to the model as CSV together with the caller's instruction,
// verbatim. The model may reason about anything the instruction asks for, so the
// instruction source must be trusted; nothing here restricts what is asked.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/klytics/xlengine/internal/ai"
	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

// DefaultMaxRows caps the rows sent to the model when no limit is configured.
const DefaultMaxRows = 1000

const systemPrompt = `You are a precise data analyst. You are given one table as CSV and an instruction about it.
Answer using only the data in the table. Compute numbers exactly; do not estimate.
When the answer is a value, a list or a table, reply with a single JSON object and nothing else.
When the instruction asks for an explanation, reply in plain text.
If the instruction cannot be answered from the table, say so and name the missing columns.`

// Result is the agent's answer to one instruction.
type Result struct {
	Input        string `json:"input"`
	Output       any    `json:"output"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Agent answers natural-language instructions about a table.
type Agent interface {
	Ask(ctx context.Context, t *table.Table, instruction string) (*Result, error)
	Stream(ctx context.Context, t *table.Table, instruction string) (<-chan string, <-chan error, error)
	Provider() string
}

// Bridge is the Agent backed by an ai.Provider.
type Bridge struct {
	provider ai.Provider
	maxRows  int
	logger   *slog.Logger
}

// New returns a bridge over p. maxRows <= 0 means DefaultMaxRows.
func New(p ai.Provider, maxRows int, logger *slog.Logger) *Bridge {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{provider: p, maxRows: maxRows, logger: logger}
}

// Provider returns the backing provider's name.
func (b *Bridge) Provider() string {
	return b.provider.Name()
}

// Ask sends the instruction and the table to the model and parses the answer.
func (b *Bridge) Ask(ctx context.Context, t *table.Table, instruction string) (*Result, error) {
	msg, err := b.message(t, instruction)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("agent request", "provider", b.provider.Name(), "rows", t.NumRows(), "chars", len(msg))
	res, err := b.provider.Infer(ctx, systemPrompt, []ai.Message{{Role: "user", Content: msg}}, ai.InferOptions{})
	if err != nil {
		return nil, classify(err)
	}
	b.logger.Debug("agent response", "model", res.Model, "input_tokens", res.InputTokens, "output_tokens", res.OutputTokens)

	return &Result{
		Input:        instruction,
		Output:       ParseOutput(res.Content),
		Model:        res.Model,
		Provider:     b.provider.Name(),
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}, nil
}

// Stream sends the same payload as Ask and returns the answer as it arrives. Errors
// on the error channel are already classified.
func (b *Bridge) Stream(ctx context.Context, t *table.Table, instruction string) (<-chan string, <-chan error, error) {
	msg, err := b.message(t, instruction)
	if err != nil {
		return nil, nil, err
	}
	textCh, errCh, err := b.provider.Stream(ctx, systemPrompt, []ai.Message{{Role: "user", Content: msg}}, ai.InferOptions{})
	if err != nil {
		return nil, nil, classify(err)
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err, ok := <-errCh; ok && err != nil {
			out <- classify(err)
		}
	}()
	return textCh, out, nil
}

func (b *Bridge) message(t *table.Table, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", apperr.Errorf(apperr.InvalidRequest, "agent", "instruction is required")
	}
	if t == nil {
		return "", apperr.Errorf(apperr.InvalidRequest, "agent", "no table given")
	}
	msg, err := BuildMessage(t, instruction, b.maxRows)
	if err != nil {
		return "", apperr.New(apperr.Internal, "agent", err)
	}
	return msg, nil
}

// BuildMessage renders the user message: table shape, column types, the first
// maxRows rows as CSV, then the instruction.
func BuildMessage(t *table.Table, instruction string, maxRows int) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table %q: %d rows, %d columns.\n", t.Name, t.NumRows(), t.NumCols())
	sb.WriteString("Columns:\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Name, c.Type)
	}

	var csvBuf bytes.Buffer
	if err := t.WriteCSV(&csvBuf, maxRows); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}
	if t.NumRows() > maxRows {
		fmt.Fprintf(&sb, "\nData (first %d of %d rows; the rest is omitted):\n", maxRows, t.NumRows())
	} else {
		sb.WriteString("\nData:\n")
	}
	sb.Write(csvBuf.Bytes())

	sb.WriteString("\nInstruction:\n")
	sb.WriteString(instruction)
	return sb.String(), nil
}

// ParseOutput returns the decoded JSON value when text is a JSON object or array,
// bare or inside a ``` fence. Anything else is returned unchanged.
func ParseOutput(text string) any {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			// drop the language tag, if any
			body = body[nl+1:]
		}
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
	}
	if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		return text
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return text
	}
	return v
}

// classify maps a provider error onto the agent error kinds.
func classify(err error) error {
	if errors.Is(err, ai.ErrMissingCredential) {
		return apperr.New(apperr.AgentUnavailable, "agent", err)
	}
	return apperr.New(apperr.AgentFailed, "agent", err)
}

// Unavailable returns an Agent whose every call fails with AgentUnavailable.
// It stands in when no provider could be built, so the rest of the service
// keeps working.
func Unavailable(provider string, err error) Agent {
	return unavailable{provider: provider, err: apperr.New(apperr.AgentUnavailable, "agent", err)}
}

type unavailable struct {
	provider string
	err      error
}

func (u unavailable) Ask(context.Context, *table.Table, string) (*Result, error) {
	return nil, u.err
}

func (u unavailable) Stream(context.Context, *table.Table, string) (<-chan string, <-chan error, error) {
	return nil, nil, u.err
}

func (u unavailable) Provider() string { return u.provider }

// Available reports whether a is backed by a provider.
func Available(a Agent) bool {
	_, down := a.(unavailable)
	return !down
}

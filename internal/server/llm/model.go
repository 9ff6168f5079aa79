// Package llm wraps langchaingo for the one-shot (non-streaming) calls made
// by summarization, handoff notes and the water cooler.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// ErrNoChoices is returned when the provider answered without content.
var ErrNoChoices = errors.New("no response choices")

// Turn is one prior chat message.
type Turn struct {
	Role string
	Text string
}

// Request is a one-shot generation. Model overrides the default model when
// set; MaxTokens <= 0 uses the provider default.
type Request struct {
	Model       string
	System      string
	Turns       []Turn
	Temperature float64
	MaxTokens   int
}

// Generator produces a single completion.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Model implements Generator on top of a langchaingo model.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewAnthropicModel builds an Anthropic-backed Model. baseURL may be empty.
func NewAnthropicModel(apiKey, model, baseURL string) (*Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	opts := []anthropic.Option{
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL+"/v1"))
	}
	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return NewModel(m, model), nil
}

func NewModel(m llms.Model, name string) *Model {
	return &Model{llm: m, modelName: name}
}

func (m *Model) Generate(ctx context.Context, req Request) (string, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, t := range req.Turns {
		role := llms.ChatMessageTypeHuman
		if t.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Text))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	resp, err := m.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}

// Name returns the default model name.
func (m *Model) Name() string {
	return m.modelName
}

var _ Generator = (*Model)(nil)

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/njarm23/ClaudeMemories/internal/common"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	APIVersion       = "2023-06-01"
	DefaultMaxTokens = 4096

	maxErrorBody = 64 << 10
)

// AnthropicClient streams completions over plain HTTP.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewAnthropicClient(apiKey, baseURL string, hc *http.Client) *AnthropicClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &AnthropicClient{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type wireRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

func (c *AnthropicClient) Stream(ctx context.Context, req Request) (Stream, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		System:      req.System,
		Messages:    req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &common.UpstreamError{Status: resp.StatusCode, Body: string(b)}
	}

	return &anthropicStream{body: resp.Body, dec: NewDecoder(resp.Body)}, nil
}

type anthropicStream struct {
	body     io.ReadCloser
	dec      *Decoder
	sawModel bool
}

type wireEvent struct {
	Type    string `json:"type"`
	Message struct {
		Model string `json:"model"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrStreamFailed wraps an error event sent by the upstream mid-stream.
var ErrStreamFailed = errors.New("upstream stream error")

func (s *anthropicStream) Next() (Chunk, error) {
	for {
		ev, err := s.dec.Next()
		if err != nil {
			return Chunk{}, err
		}

		var w wireEvent
		if err := json.Unmarshal([]byte(ev.Data), &w); err != nil {
			continue
		}
		name := ev.Name
		if name == "" {
			name = w.Type
		}

		switch name {
		case "message_start":
			if !s.sawModel && w.Message.Model != "" {
				s.sawModel = true
				return Chunk{Kind: ChunkModel, Model: w.Message.Model}, nil
			}
		case "content_block_delta":
			if w.Delta.Text != "" {
				return Chunk{Kind: ChunkText, Text: w.Delta.Text}, nil
			}
		case "error":
			return Chunk{}, fmt.Errorf("%w: %s: %s", ErrStreamFailed, w.Error.Type, w.Error.Message)
		}
	}
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

var _ Client = (*AnthropicClient)(nil)

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/sashabaranov/go-openai"
)

// Speech limits.
const (
	MaxSpeechChars = 4096
	DefaultVoice   = "nova"
)

// Voices are the accepted speech voices.
var Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// ErrSpeechDisabled is returned when no speech provider is configured.
var ErrSpeechDisabled = errors.New("speech synthesis not configured")

// Speaker turns text into MP3 audio.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) (io.ReadCloser, error)
}

// OpenAISpeaker calls the OpenAI speech endpoint.
type OpenAISpeaker struct {
	client *openai.Client
}

func NewOpenAISpeaker(apiKey, baseURL string) *OpenAISpeaker {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAISpeaker{client: openai.NewClientWithConfig(cfg)}
}

func (s *OpenAISpeaker) Speak(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &common.UpstreamError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("create speech: %w", err)
	}
	return resp, nil
}

// SpeechService validates requests before handing them to a Speaker.
type SpeechService struct {
	speaker Speaker
}

// NewSpeechService accepts a nil speaker, which disables synthesis.
func NewSpeechService(speaker Speaker) *SpeechService {
	return &SpeechService{speaker: speaker}
}

// Synthesize reads text aloud. Text beyond MaxSpeechChars is dropped and an
// empty voice selects DefaultVoice.
func (s *SpeechService) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	if s.speaker == nil {
		return nil, ErrSpeechDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.NewValidationError("text", "text is required")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if !slices.Contains(Voices, voice) {
		return nil, common.NewValidationError("voice", "Invalid voice. Choose from: "+strings.Join(Voices, ", "))
	}
	if r := []rune(text); len(r) > MaxSpeechChars {
		text = string(r[:MaxSpeechChars])
	}
	return s.speaker.Speak(ctx, text, voice)
}

package speech

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the Whisper backend
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for compatible gateways
	Model   string
}

// OpenAIBackend transcribes through the OpenAI audio transcription API
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a Whisper backend
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Name implements Backend
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Transcribe implements Backend
func (b *OpenAIBackend) Transcribe(ctx context.Context, file AudioFile) (string, error) {
	if len(file.Data) == 0 {
		return "", ErrEmptyAudio
	}

	// The API infers the container from the file name extension
	resp, err := b.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.model,
		FilePath: file.Name,
		Reader:   bytes.NewReader(file.Data),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// openAIError exposes the HTTP status of go-openai errors
type openAIError struct {
	status int
	err    error
}

func (e *openAIError) Error() string   { return e.err.Error() }
func (e *openAIError) Unwrap() error   { return e.err }
func (e *openAIError) HTTPStatus() int { return e.status }

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &openAIError{status: apiErr.HTTPStatusCode, err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &openAIError{status: reqErr.HTTPStatusCode, err: err}
	}
	return err
}

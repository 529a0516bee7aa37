package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramConfig configures the Deepgram prerecorded backend
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
}

// DeepgramBackend transcribes through Deepgram's prerecorded REST API
type DeepgramBackend struct {
	client  *api.Client
	options *interfaces.PreRecordedTranscriptionOptions
}

// NewDeepgramBackend creates a Deepgram backend
func NewDeepgramBackend(cfg DeepgramConfig) *DeepgramBackend {
	listenClient.InitWithDefault()

	// Using empty ClientOptions for the hosted API defaults
	rest := listenClient.NewREST(cfg.APIKey, &interfaces.ClientOptions{})

	return &DeepgramBackend{
		client: api.New(rest),
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       cfg.Model,
			Language:    cfg.Language,
			Punctuate:   true,
			SmartFormat: true,
		},
	}
}

// Name implements Backend
func (b *DeepgramBackend) Name() string {
	return "deepgram"
}

// Transcribe implements Backend. The container is sniffed by Deepgram, so
// the media type is not forwarded.
func (b *DeepgramBackend) Transcribe(ctx context.Context, file AudioFile) (string, error) {
	if len(file.Data) == 0 {
		return "", ErrEmptyAudio
	}

	res, err := b.client.FromStream(ctx, bytes.NewReader(file.Data), b.options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription failed: %w", err)
	}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", fmt.Errorf("deepgram returned no channels")
	}

	// First channel, best alternative
	channel := res.Results.Channels[0]
	if len(channel.Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(channel.Alternatives[0].Transcript), nil
}

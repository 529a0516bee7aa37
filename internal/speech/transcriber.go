package speech

import (
	"context"

	"github.com/lexiqai/voice-transcribe/internal/capture"
)

// PayloadTranscriber feeds captured payloads straight into a backend, for
// coordinators running inside the server process.
type PayloadTranscriber struct {
	backend Backend
}

// NewPayloadTranscriber adapts backend to transcribe captured payloads
func NewPayloadTranscriber(backend Backend) *PayloadTranscriber {
	return &PayloadTranscriber{backend: backend}
}

// Transcribe converts payload into an AudioFile and hands it to the backend
func (t *PayloadTranscriber) Transcribe(ctx context.Context, payload *capture.Payload) (string, error) {
	return t.backend.Transcribe(ctx, AudioFile{
		Name:      payload.FileName(),
		MediaType: payload.MediaType,
		Data:      payload.Data,
	})
}

package stream

import (
	"errors"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/transcribe"
)

// Peer events
const (
	EventStart  = "start"
	EventStop   = "stop"
	EventCancel = "cancel"
)

// Server events
const (
	EventStatus     = "status"
	EventTranscript = "transcript"
	EventError      = "error"
)

// ClientMessage is a text frame sent by the peer. Audio travels in binary
// frames between start and stop.
type ClientMessage struct {
	Event     string `json:"event"`
	MediaType string `json:"mediaType,omitempty"` // start only; defaults to audio/webm
}

// ServerMessage is a text frame sent to the peer
type ServerMessage struct {
	Event  string  `json:"event"`
	Status string  `json:"status,omitempty"`
	Text   *string `json:"text,omitempty"`
	Error  string  `json:"error,omitempty"`
	Kind   string  `json:"kind,omitempty"`
}

// errorKind classifies err for the peer
func errorKind(err error) string {
	var svcErr *transcribe.ServiceError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, capture.ErrNoAudioCaptured):
		return "no_audio"
	case errors.Is(err, capture.ErrNotRecording):
		return "not_recording"
	case errors.Is(err, transcribe.ErrBusy):
		return "busy"
	case errors.As(err, &svcErr):
		return "service"
	default:
		return "internal"
	}
}

// Package capture owns one microphone capture lifecycle: it acquires the
// hardware stream, collects the recorder's segments and resolves them into a
// single payload, releasing the hardware exactly once on every exit path.
package capture

import (
	"context"
	"mime"
	"strings"
)

// DefaultMediaType is used when the recorder does not declare one
const DefaultMediaType = "audio/webm"

// Device is the hardware capability that grants microphone streams.
// Acquire may block on permission prompts or device negotiation.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired microphone stream.
type Stream interface {
	// NewRecorder binds a recording engine to the stream. Notifications are
	// delivered through h, possibly on another goroutine.
	NewRecorder(h Handlers) (Recorder, error)

	// Release stops the stream. Calling it on a released stream is a no-op.
	Release()
}

// Recorder is a recording engine bound 1:1 to a Stream.
type Recorder interface {
	Start() error

	// Stop asks the recorder to flush. Completion is signalled by
	// Handlers.OnFinalize, after every pending OnData.
	Stop() error

	// Active reports whether the recorder is still capturing.
	Active() bool

	// MediaType of the segments, e.g. "audio/webm". Empty means DefaultMediaType.
	MediaType() string
}

// Handlers receives recorder notifications.
type Handlers struct {
	OnData     func(segment []byte)
	OnFinalize func()
}

// Payload is the assembled result of a successful capture.
type Payload struct {
	Data      []byte
	MediaType string
}

// Size returns the payload length in bytes
func (p *Payload) Size() int {
	return len(p.Data)
}

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRecording
	StateStopping
	StateStopped // resolved after Stop, with a payload or ErrNoAudioCaptured
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further Start, Stop or Cancel is accepted
func (s State) Terminal() bool {
	return s == StateStopped || s == StateCancelled || s == StateFailed
}

var extensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/flac":  ".flac",
}

// FileExtension maps a media type, parameters allowed, to the file
// extension transcription APIs use to detect the container.
func FileExtension(mediaType string) string {
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return ".webm"
}

// FileName returns a file name for uploading the payload
func (p *Payload) FileName() string {
	return "audio" + FileExtension(p.MediaType)
}

// Package speech holds the server-side speech recognition backends that turn
// an uploaded audio file into text.
package speech

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a backend is handed a zero-length file
var ErrEmptyAudio = errors.New("audio file is empty")

// AudioFile is one uploaded recording
type AudioFile struct {
	Name      string // file name with an extension matching MediaType
	MediaType string
	Data      []byte
}

// Backend is a speech recognition provider
type Backend interface {
	// Name identifies the backend in logs, metrics and readiness checks
	Name() string

	// Transcribe returns the text spoken in file
	Transcribe(ctx context.Context, file AudioFile) (string, error)
}

// StatusError is implemented by provider errors that carry an HTTP status
type StatusError interface {
	error
	HTTPStatus() int
}

// statusOf returns the provider HTTP status behind err, or 0
func statusOf(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	return 0
}

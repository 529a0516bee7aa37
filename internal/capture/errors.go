package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the user or platform refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable means no usable input device could be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrNotRecording is returned by Stop and Cancel when nothing is recording
	ErrNotRecording = errors.New("not recording")

	// ErrNoAudioCaptured means the recorder finalized without any segment
	ErrNoAudioCaptured = errors.New("no audio captured")

	// ErrSessionClosed is returned by Start on a session that was already used
	ErrSessionClosed = errors.New("capture session already used")
)

// classifyAcquireError maps a device error onto the capture taxonomy,
// keeping the original error in the chain.
func classifyAcquireError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

package transcribe

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by StartRecording while a recording or
	// transcription is already in progress
	ErrBusy = errors.New("recording or transcription already in progress")

	// ErrCancelled is returned to an in-flight call that CancelRecording
	// interrupted. It is never stored as the last error.
	ErrCancelled = errors.New("recording cancelled")
)

// ServiceError is a failure of the transcription round trip: transport
// errors, non-2xx responses and malformed response bodies.
type ServiceError struct {
	StatusCode int    // HTTP status, 0 when no response was received
	Detail     string // human readable failure detail
	Err        error  // underlying cause, if any
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription failed: status %d: %s", e.StatusCode, e.Detail)
	}
	return "transcription failed: " + e.Detail
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// asServiceError normalizes any transcriber error into a *ServiceError
func asServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &ServiceError{Detail: err.Error(), Err: err}
}

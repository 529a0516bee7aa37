package transcribe

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/observability"
)

// Status is the coordinator's externally visible activity
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusTranscribing
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// Observer receives coordinator notifications. Hooks are called without any
// coordinator lock held and may call back into the coordinator.
type Observer interface {
	StatusChanged(status Status)
	Transcribed(text string)
}

// Options configures a Coordinator. All fields are optional.
type Options struct {
	Metrics  *observability.Metrics
	Observer Observer
}

// Coordinator drives capture sessions and the transcription round trip.
// It owns at most one session at a time and is reused across recordings.
type Coordinator struct {
	device      capture.Device
	transcriber Transcriber
	metrics     *observability.Metrics
	observer    Observer
	logger      zerolog.Logger

	mu       sync.Mutex
	status   Status
	session  *capture.Session
	starting *capture.Session   // Start in flight; outlives a cancel until Start returns
	stopping bool               // a StopAndTranscribe owns the session
	abort    context.CancelFunc // interrupts the in-flight start, stop or upload
	lastErr  error
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(device capture.Device, transcriber Transcriber, opts Options) *Coordinator {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("coordinator")
	}
	return &Coordinator{
		device:      device,
		transcriber: transcriber,
		metrics:     metrics,
		observer:    opts.Observer,
		logger:      observability.WithComponent("coordinator"),
		status:      StatusIdle,
	}
}

// Status returns the current activity
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the failure of the most recent attempt, or nil
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsRecording reports whether a recording is in progress
func (c *Coordinator) IsRecording() bool {
	return c.Status() == StatusRecording
}

// IsTranscribing reports whether an upload is in flight
func (c *Coordinator) IsTranscribing() bool {
	return c.Status() == StatusTranscribing
}

// StartRecording opens a new capture session. It blocks while the device
// grants access. On failure the status stays Idle and the error is stored.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil || c.starting != nil || c.status != StatusIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	s := capture.NewSession(c.device, c.metrics)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.session = s
	c.starting = s
	c.abort = cancel
	c.lastErr = nil
	c.mu.Unlock()

	logger := c.logger.With().Str("session_id", s.ID()).Logger()
	err := s.Start(ctx)

	c.mu.Lock()
	if c.session != s {
		// CancelRecording ran while the device was negotiating. The
		// coordinator stays busy until the granted stream is released.
		c.mu.Unlock()
		if err == nil {
			s.Cancel()
		}
		c.mu.Lock()
		c.starting = nil
		c.mu.Unlock()
		logger.Info().Msg("Recording cancelled during start")
		return ErrCancelled
	}
	c.starting = nil
	c.abort = nil
	if err != nil {
		c.session = nil
		c.lastErr = err
		c.mu.Unlock()

		c.metrics.RecordError("capture_start")
		logger.Warn().Err(err).Msg("Failed to start recording")
		return err
	}
	c.status = StatusRecording
	c.mu.Unlock()

	c.notifyStatus(StatusRecording)
	return nil
}

// StopAndTranscribe stops the recording and uploads the payload exactly once.
// Capture failures skip the upload. Upload failures are returned as
// *ServiceError. Either way the status returns to Idle and the error is
// stored.
func (c *Coordinator) StopAndTranscribe(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return "", ErrBusy
	}
	s := c.session
	if s == nil || c.status != StatusRecording {
		c.lastErr = capture.ErrNotRecording
		c.mu.Unlock()
		return "", capture.ErrNotRecording
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.stopping = true
	c.abort = cancel
	c.lastErr = nil
	c.mu.Unlock()

	logger := c.logger.With().Str("session_id", s.ID()).Logger()
	logger.Debug().Int("segments", s.SegmentCount()).Msg("Stopping recording")

	payload, err := s.Stop(ctx)

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return "", ErrCancelled
	}
	if err != nil {
		c.clearLocked()
		c.lastErr = err
		c.mu.Unlock()

		c.notifyStatus(StatusIdle)
		if !errors.Is(err, capture.ErrNoAudioCaptured) {
			c.metrics.RecordError("capture_stop")
		}
		logger.Warn().Err(err).Msg("Recording produced no payload")
		return "", err
	}
	c.status = StatusTranscribing
	c.mu.Unlock()

	c.notifyStatus(StatusTranscribing)
	logger.Debug().Int("bytes", payload.Size()).Str("media_type", payload.MediaType).Msg("Uploading payload")

	c.metrics.RecordTranscriptionStart()
	text, err := c.transcriber.Transcribe(ctx, payload)
	c.metrics.RecordTranscriptionEnd(err == nil)

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		logger.Info().Msg("Transcription abandoned after cancel")
		return "", ErrCancelled
	}
	c.clearLocked()
	if err != nil {
		svcErr := asServiceError(err)
		c.lastErr = svcErr
		c.mu.Unlock()

		c.notifyStatus(StatusIdle)
		c.metrics.RecordError("transcription")
		logger.Error().Err(svcErr).Msg("Transcription failed")
		return "", svcErr
	}
	c.mu.Unlock()

	c.notifyStatus(StatusIdle)
	if c.observer != nil {
		c.observer.Transcribed(text)
	}
	logger.Info().Int("chars", len(text)).Msg("Transcription complete")
	return text, nil
}

// CancelRecording discards the active session without uploading anything.
// An in-flight start, stop or upload is interrupted and returns ErrCancelled.
// It returns capture.ErrNotRecording when there is nothing to cancel.
func (c *Coordinator) CancelRecording() error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return capture.ErrNotRecording
	}
	abort := c.abort
	prev := c.status
	c.clearLocked()
	c.mu.Unlock()

	if abort != nil {
		abort()
	}
	// A session still requesting is cancelled by StartRecording once Start
	// returns; a stopping one resolves through its aborted context.
	_ = s.Cancel()

	if prev != StatusIdle {
		c.notifyStatus(StatusIdle)
	}
	c.logger.Info().Str("session_id", s.ID()).Str("from", prev.String()).Msg("Recording cancelled")
	return nil
}

func (c *Coordinator) clearLocked() {
	c.session = nil
	c.stopping = false
	c.abort = nil
	c.status = StatusIdle
}

func (c *Coordinator) notifyStatus(status Status) {
	if c.observer != nil {
		c.observer.StatusChanged(status)
	}
}

package capture

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/observability"
)

// hardware bundles the stream and its recorder so they are held and
// released together. A nil *hardware means nothing is held.
type hardware struct {
	stream   Stream
	recorder Recorder
}

func (h *hardware) release() {
	if h != nil {
		h.stream.Release()
	}
}

// Session manages exactly one capture attempt. It is not reusable: once it
// reaches a terminal state a new Session is needed.
//
// Recorder callbacks may arrive on any goroutine. The mutex is never held
// while calling into the device, stream or recorder.
type Session struct {
	id      string
	device  Device
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	state     State
	hw        *hardware
	mediaType string
	segments  [][]byte
	finalized bool          // recorder finalized on its own while recording
	done      chan struct{} // closed when a Stop resolves
	payload   *Payload
	err       error
}

// NewSession creates an idle session for device. metrics may be nil.
func NewSession(device Device, metrics *observability.Metrics) *Session {
	id := observability.NewCorrelationID()
	if metrics == nil {
		metrics = observability.NewMetrics("capture")
	}
	return &Session{
		id:      id,
		device:  device,
		logger:  observability.WithComponent("capture").With().Str("session_id", id).Logger(),
		metrics: metrics,
		state:   StateIdle,
	}
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error the session resolved or failed with, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SegmentCount returns the number of segments buffered so far
func (s *Session) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Start acquires the microphone and begins recording. It blocks while the
// device negotiates access. On failure the session is Failed and holds nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateRequesting
	s.mu.Unlock()

	s.logger.Debug().Msg("Requesting microphone")

	stream, err := s.device.Acquire(ctx)
	if err != nil {
		return s.failStart(classifyAcquireError(err), nil)
	}
	if stream == nil {
		return s.failStart(ErrDeviceUnavailable, nil)
	}

	recorder, err := stream.NewRecorder(Handlers{
		OnData:     s.handleData,
		OnFinalize: s.handleFinalize,
	})
	if err != nil {
		return s.failStart(fmt.Errorf("%w: %w", ErrDeviceUnavailable, err), &hardware{stream: stream})
	}

	mediaType := recorder.MediaType()
	if mediaType == "" {
		mediaType = DefaultMediaType
	}

	s.mu.Lock()
	s.hw = &hardware{stream: stream, recorder: recorder}
	s.mediaType = mediaType
	s.state = StateRecording
	s.done = make(chan struct{})
	s.mu.Unlock()
	s.metrics.RecordCaptureStart()

	if err := recorder.Start(); err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)

		s.mu.Lock()
		if s.state != StateRecording {
			// Cancelled while the recorder was starting; hardware is already released.
			s.mu.Unlock()
			return err
		}
		hw := s.detachLocked()
		s.segments = nil
		s.state = StateFailed
		s.err = err
		s.mu.Unlock()

		hw.release()
		s.metrics.RecordCaptureEnd(observability.OutcomeFailed)
		s.logger.Error().Err(err).Msg("Recorder failed to start")
		return err
	}

	s.logger.Info().Str("media_type", mediaType).Msg("Recording started")
	return nil
}

func (s *Session) failStart(err error, hw *hardware) error {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()

	hw.release()
	s.metrics.RecordCaptureEnd(observability.OutcomeFailed)
	s.logger.Warn().Err(err).Msg("Microphone acquisition failed")
	return err
}

// Stop asks the recorder to finalize and waits for it. It resolves with the
// concatenated payload, or ErrNoAudioCaptured when nothing was recorded. The
// hardware is released in both cases. If ctx ends first the capture is
// discarded as if cancelled and ctx.Err() is returned.
func (s *Session) Stop(ctx context.Context) (*Payload, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = StateStopping
	done := s.done
	recorder := s.hw.recorder

	if s.finalized {
		// The recorder already ended on its own; nothing more will arrive.
		hw, outcome := s.resolveLocked()
		s.mu.Unlock()
		s.finish(hw, outcome)
		return s.result()
	}
	s.mu.Unlock()

	if err := recorder.Stop(); err != nil {
		err = fmt.Errorf("%w: stop recorder: %w", ErrDeviceUnavailable, err)

		s.mu.Lock()
		if s.state != StateStopping {
			// Finalize raced the failing Stop and already resolved.
			s.mu.Unlock()
			return s.result()
		}
		hw := s.detachLocked()
		s.segments = nil
		s.state = StateFailed
		s.err = err
		s.mu.Unlock()

		hw.release()
		s.metrics.RecordCaptureEnd(observability.OutcomeFailed)
		s.logger.Error().Err(err).Msg("Recorder failed to stop")
		return nil, err
	}

	select {
	case <-done:
		return s.result()
	case <-ctx.Done():
	}

	s.mu.Lock()
	if s.state != StateStopping {
		s.mu.Unlock()
		return s.result()
	}
	hw := s.detachLocked()
	s.segments = nil
	s.state = StateCancelled
	s.err = ctx.Err()
	s.mu.Unlock()

	hw.release()
	s.metrics.RecordCaptureEnd(observability.OutcomeCancelled)
	s.logger.Warn().Err(ctx.Err()).Msg("Gave up waiting for recorder to finalize")
	return nil, ctx.Err()
}

// Cancel discards the recording without waiting for the recorder. The
// hardware is released immediately and buffered segments are dropped.
// Cancellation is not an error; ErrNotRecording is returned only when there
// was nothing to cancel.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	hw := s.detachLocked()
	dropped := len(s.segments)
	s.segments = nil
	s.state = StateCancelled
	s.mu.Unlock()

	hw.release()
	s.metrics.RecordCaptureEnd(observability.OutcomeCancelled)
	s.logger.Info().Int("dropped_segments", dropped).Msg("Recording cancelled")
	return nil
}

func (s *Session) handleData(segment []byte) {
	if len(segment) == 0 {
		return
	}

	s.mu.Lock()
	if s.state != StateRecording && s.state != StateStopping {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug().Str("state", state.String()).Int("bytes", len(segment)).Msg("Dropping late audio segment")
		return
	}
	s.segments = append(s.segments, bytes.Clone(segment))
	s.mu.Unlock()

	s.metrics.RecordAudioBytes("capture", int64(len(segment)))
}

func (s *Session) handleFinalize() {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.finalized = true
		s.mu.Unlock()
		s.logger.Warn().Msg("Recorder finalized before stop was requested")

	case StateStopping:
		hw, outcome := s.resolveLocked()
		s.mu.Unlock()
		s.finish(hw, outcome)

	default:
		state := s.state
		s.mu.Unlock()
		s.logger.Debug().Str("state", state.String()).Msg("Ignoring late finalize")
	}
}

// resolveLocked assembles the payload and moves to Stopped. The returned
// hardware must be released by the caller once the lock is dropped.
func (s *Session) resolveLocked() (*hardware, string) {
	hw := s.detachLocked()

	outcome := observability.OutcomePayload
	if len(s.segments) == 0 {
		s.err = ErrNoAudioCaptured
		outcome = observability.OutcomeNoAudio
	} else {
		s.payload = &Payload{
			Data:      bytes.Join(s.segments, nil),
			MediaType: s.mediaType,
		}
	}
	s.segments = nil
	s.state = StateStopped
	close(s.done)

	return hw, outcome
}

func (s *Session) finish(hw *hardware, outcome string) {
	hw.release()
	s.metrics.RecordCaptureEnd(outcome)

	s.mu.Lock()
	size := 0
	if s.payload != nil {
		size = s.payload.Size()
	}
	s.mu.Unlock()
	s.logger.Info().Str("outcome", outcome).Int("bytes", size).Msg("Recording stopped")
}

// detachLocked hands the hardware to the caller for release, leaving the
// session holding nothing. Subsequent calls return nil.
func (s *Session) detachLocked() *hardware {
	hw := s.hw
	s.hw = nil
	return hw
}

func (s *Session) result() (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, s.err
}

package stream

import (
	"context"
	"sync"

	"github.com/lexiqai/voice-transcribe/internal/capture"
)

// peerDevice exposes a websocket peer as a microphone: binary frames from
// the peer are the recorder's segments.
type peerDevice struct {
	mu        sync.Mutex
	closed    bool
	mediaType string
	recorder  *peerRecorder
}

func (d *peerDevice) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, capture.ErrDeviceUnavailable
	}
	return &peerStream{device: d, mediaType: d.mediaType}, nil
}

// setMediaType records the media type announced by the next start event
func (d *peerDevice) setMediaType(mediaType string) {
	d.mu.Lock()
	d.mediaType = mediaType
	d.mu.Unlock()
}

// deliver routes one binary frame to the active recorder, if any
func (d *peerDevice) deliver(frame []byte) bool {
	d.mu.Lock()
	r := d.recorder
	d.mu.Unlock()

	if r == nil || !r.Active() {
		return false
	}
	r.handlers.OnData(frame)
	return true
}

// halt stops accepting frames for the active recorder. Frames already
// delivered stay with the session.
func (d *peerDevice) halt() {
	d.mu.Lock()
	r := d.recorder
	d.mu.Unlock()

	if r != nil {
		r.setActive(false)
	}
}

func (d *peerDevice) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

type peerStream struct {
	device    *peerDevice
	mediaType string

	once     sync.Once
	recorder *peerRecorder
}

func (s *peerStream) NewRecorder(h capture.Handlers) (capture.Recorder, error) {
	r := &peerRecorder{handlers: h, mediaType: s.mediaType}
	s.recorder = r

	s.device.mu.Lock()
	s.device.recorder = r
	s.device.mu.Unlock()
	return r, nil
}

func (s *peerStream) Release() {
	s.once.Do(func() {
		if s.recorder == nil {
			return
		}
		s.recorder.setActive(false)

		s.device.mu.Lock()
		if s.device.recorder == s.recorder {
			s.device.recorder = nil
		}
		s.device.mu.Unlock()
	})
}

type peerRecorder struct {
	handlers  capture.Handlers
	mediaType string

	mu     sync.Mutex
	active bool
}

func (r *peerRecorder) Start() error {
	r.setActive(true)
	return nil
}

// Stop finalizes immediately: the read loop has already delivered every
// frame that preceded the peer's stop event.
func (r *peerRecorder) Stop() error {
	r.setActive(false)
	r.handlers.OnFinalize()
	return nil
}

func (r *peerRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *peerRecorder) MediaType() string {
	return r.mediaType
}

func (r *peerRecorder) setActive(active bool) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

// Package capturetest provides an in-memory capture.Device for tests.
package capturetest

import (
	"context"
	"sync"

	"github.com/lexiqai/voice-transcribe/internal/capture"
)

// Device is a scriptable microphone. The zero value grants a stream
// immediately and finalizes synchronously when the recorder is stopped.
type Device struct {
	AcquireErr error  // returned by Acquire when set
	MediaType  string // declared by recorders

	// ManualFinalize makes Recorder.Stop return without finalizing;
	// the test calls Recorder.Finalize itself.
	ManualFinalize bool
	StartErr       error // returned by Recorder.Start
	StopErr        error // returned by Recorder.Stop

	// Gate, when non-nil, blocks Acquire until it is closed or ctx ends.
	// With IgnoreContext set only closing the gate unblocks it.
	Gate          chan struct{}
	IgnoreContext bool

	mu      sync.Mutex
	streams []*Stream
}

// Acquire implements capture.Device
func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	if d.Gate != nil {
		if d.IgnoreContext {
			<-d.Gate
		} else {
			select {
			case <-d.Gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}

	s := &Stream{device: d}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Acquisitions returns how many streams were granted
func (d *Device) Acquisitions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// Held returns how many granted streams have not been released yet
func (d *Device) Held() int {
	d.mu.Lock()
	streams := append([]*Stream(nil), d.streams...)
	d.mu.Unlock()

	held := 0
	for _, s := range streams {
		if s.Releases() == 0 {
			held++
		}
	}
	return held
}

// LastStream returns the most recently granted stream, or nil
func (d *Device) LastStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Stream counts releases so tests can assert exactly-once release.
type Stream struct {
	device *Device

	mu       sync.Mutex
	releases int
	recorder *Recorder
}

// NewRecorder implements capture.Stream
func (s *Stream) NewRecorder(h capture.Handlers) (capture.Recorder, error) {
	r := &Recorder{stream: s, handlers: h}
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
	return r, nil
}

// Release implements capture.Stream. Every call is counted.
func (s *Stream) Release() {
	s.mu.Lock()
	s.releases++
	r := s.recorder
	s.mu.Unlock()

	if r != nil {
		r.setActive(false)
	}
}

// Releases returns how many times Release was called
func (s *Stream) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Recorder returns the recorder bound to this stream, or nil
func (s *Stream) Recorder() *Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

// Recorder delivers segments on demand.
type Recorder struct {
	stream   *Stream
	handlers capture.Handlers

	mu     sync.Mutex
	active bool
	stops  int
}

// Start implements capture.Recorder
func (r *Recorder) Start() error {
	if err := r.stream.device.StartErr; err != nil {
		return err
	}
	r.setActive(true)
	return nil
}

// Stop implements capture.Recorder
func (r *Recorder) Stop() error {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()

	if err := r.stream.device.StopErr; err != nil {
		return err
	}
	if !r.stream.device.ManualFinalize {
		r.Finalize()
	}
	return nil
}

// Active implements capture.Recorder
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// MediaType implements capture.Recorder
func (r *Recorder) MediaType() string {
	return r.stream.device.MediaType
}

// Emit delivers one data notification
func (r *Recorder) Emit(segment []byte) {
	if r.handlers.OnData != nil {
		r.handlers.OnData(segment)
	}
}

// Finalize delivers the finalize notification
func (r *Recorder) Finalize() {
	r.setActive(false)
	if r.handlers.OnFinalize != nil {
		r.handlers.OnFinalize()
	}
}

// Stops returns how many times Stop was called
func (r *Recorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

func (r *Recorder) setActive(active bool) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

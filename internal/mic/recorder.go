package mic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/capture"
)

// recorder accumulates samples on a read loop and emits them as a single WAV
// segment followed by the finalize notification.
type recorder struct {
	stream   *stream
	handlers capture.Handlers
	vad      *audio.VADDetector

	startOnce sync.Once
	quitOnce  sync.Once
	quit      chan struct{} // closed to end the read loop
	done      chan struct{} // closed when the read loop has exited

	mu      sync.Mutex
	active  bool
	started bool
	samples []int16

	finishOnce sync.Once
	finishErr  error
	silenced   bool
}

func (r *recorder) Start() error {
	err := errors.New("recorder already started")
	r.startOnce.Do(func() {
		if err = r.stream.in.Start(); err != nil {
			return
		}
		r.mu.Lock()
		r.active = true
		r.started = true
		r.mu.Unlock()
		go r.readLoop()
	})
	return err
}

// Stop ends the read loop, then delivers the recording and finalizes
func (r *recorder) Stop() error {
	r.halt()
	return r.finish()
}

func (r *recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *recorder) MediaType() string {
	return audio.WAVMediaType
}

// halt ends the read loop and waits for it
func (r *recorder) halt() {
	r.quitOnce.Do(func() { close(r.quit) })

	r.mu.Lock()
	started := r.started
	r.active = false
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

func (r *recorder) readLoop() {
	defer close(r.done)
	logger := r.stream.device.logger

	for {
		select {
		case <-r.quit:
			return
		default:
		}

		if err := r.stream.in.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				logger.Debug().Msg("Input overflowed, samples dropped")
				continue
			}
			select {
			case <-r.quit:
				return
			default:
			}
			// The device went away mid-recording: hand over what was captured.
			logger.Error().Err(err).Msg("Input stream read failed, ending recording")
			r.mu.Lock()
			r.active = false
			r.mu.Unlock()
			go r.finish()
			return
		}

		r.mu.Lock()
		r.samples = append(r.samples, r.stream.buf...)
		r.mu.Unlock()

		if r.vad != nil && r.vad.Process(r.stream.buf) {
			r.silence()
		}
	}
}

func (r *recorder) silence() {
	onSilence := r.stream.device.cfg.OnSilence

	r.mu.Lock()
	fire := !r.silenced && onSilence != nil
	r.silenced = true
	r.mu.Unlock()

	if fire {
		r.stream.device.logger.Info().Msg("Silence detected after speech")
		// The hook usually stops this recorder, which waits on the read loop
		go onSilence()
	}
}

// finish emits the WAV segment, if any audio was read, then finalizes.
// It runs at most once.
func (r *recorder) finish() error {
	r.finishOnce.Do(func() {
		r.mu.Lock()
		samples := r.samples
		r.samples = nil
		r.mu.Unlock()

		if len(samples) > 0 {
			data, err := audio.EncodeWAV(samples, r.stream.device.cfg.SampleRate, channels)
			if err != nil {
				r.finishErr = fmt.Errorf("encode recording: %w", err)
				return
			}
			r.handlers.OnData(data)
		}
		r.handlers.OnFinalize()
	})
	return r.finishErr
}

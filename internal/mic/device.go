// Package mic is the local microphone behind the command-line recorder,
// captured through PortAudio as mono 16-bit PCM and handed over as one WAV
// segment when the recording stops.
package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/observability"
)

const channels = 1

// Config configures the microphone
type Config struct {
	SampleRate      int
	FramesPerBuffer int

	// VAD enables silence detection when non-nil. OnSilence is called once
	// per recording, on its own goroutine, after speech has ended.
	VAD       *audio.VADConfig
	OnSilence func()
}

// NewConfig derives the microphone configuration from the process
// configuration. Silence detection is enabled by VAD_AUTO_STOP.
func NewConfig(cfg *config.Config, onSilence func()) Config {
	c := Config{
		SampleRate:      cfg.MicSampleRate,
		FramesPerBuffer: cfg.MicFramesPerBuffer,
	}
	if cfg.VADAutoStop {
		c.VAD = &audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
			FrameSize:       cfg.MicSampleRate / 50, // 20ms
		}
		c.OnSilence = onSilence
	}
	return c
}

// inputStream is the subset of *portaudio.Stream the recorder drives
type inputStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// opener opens an input stream that reads into buf
type opener func(sampleRate, framesPerBuffer int, buf []int16) (inputStream, error)

// Device grants PortAudio default input streams. Each stream holds its own
// PortAudio initialization until released.
type Device struct {
	cfg    Config
	open   opener
	logger zerolog.Logger
}

// NewDevice creates a microphone device
func NewDevice(cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	return &Device{
		cfg:    cfg,
		open:   openPortAudio,
		logger: observability.WithComponent("mic"),
	}
}

func openPortAudio(sampleRate, framesPerBuffer int, buf []int16) (inputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return &portAudioStream{Stream: stream}, nil
}

// portAudioStream terminates PortAudio when the stream is closed
type portAudioStream struct {
	*portaudio.Stream
}

func (s *portAudioStream) Close() error {
	err := s.Stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}

// Acquire implements capture.Device
func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]int16, d.cfg.FramesPerBuffer)
	in, err := d.open(d.cfg.SampleRate, d.cfg.FramesPerBuffer, buf)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to open input stream")
		return nil, fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}

	d.logger.Debug().
		Int("sample_rate", d.cfg.SampleRate).
		Int("frames_per_buffer", d.cfg.FramesPerBuffer).
		Msg("Input stream opened")
	return &stream{device: d, in: in, buf: buf}, nil
}

type stream struct {
	device *Device
	in     inputStream
	buf    []int16

	once     sync.Once
	recorder *recorder
}

func (s *stream) NewRecorder(h capture.Handlers) (capture.Recorder, error) {
	r := &recorder{
		stream:   s,
		handlers: h,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.device.cfg.VAD != nil {
		r.vad = audio.NewVADDetector(s.device.cfg.VAD)
	}
	s.recorder = r
	return r, nil
}

// Release stops any read loop and closes the stream
func (s *stream) Release() {
	s.once.Do(func() {
		if s.recorder != nil {
			s.recorder.halt()
		}
		if err := s.in.Stop(); err != nil && !errors.Is(err, portaudio.StreamIsStopped) {
			s.device.logger.Debug().Err(err).Msg("Failed to stop input stream")
		}
		if err := s.in.Close(); err != nil {
			s.device.logger.Warn().Err(err).Msg("Failed to close input stream")
		}
	})
}

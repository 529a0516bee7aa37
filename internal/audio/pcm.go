// Package audio holds PCM helpers for microphone capture: level analysis,
// voice activity detection and WAV encoding.
package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVMediaType is the media type of EncodeWAV output
const WAVMediaType = "audio/wav"

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// EncodeWAV wraps 16-bit PCM samples in a WAV container. The encoder needs
// a seekable writer, so the container is assembled in a temporary file.
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	f, err := os.CreateTemp("", "capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}

	return os.ReadFile(f.Name())
}

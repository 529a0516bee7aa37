package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame (320 for 16kHz = 20ms)
}

// DefaultVADConfig returns a default VAD configuration for 16kHz microphone input
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   50,  // 1s of silence (50 frames * 20ms)
		FrameSize:       320, // 20ms at 16kHz
	}
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
	pending        []int16 // samples short of a full frame
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultVADConfig().FrameSize
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Process splits an arbitrary device buffer into frames and reports whether
// speech ended anywhere inside it. Leftover samples carry over to the next call.
func (v *VADDetector) Process(samples []int16) (speechEnded bool) {
	size := v.config.FrameSize
	buf := append(v.pending, samples...)

	for len(buf) >= size {
		if _, _, ended := v.ProcessFrame(buf[:size]); ended {
			speechEnded = true
		}
		buf = buf[size:]
	}
	v.pending = append(v.pending[:0:0], buf...)
	return speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
	v.pending = nil
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// DetectSilence detects if audio samples represent silence
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}

package audio

import (
	"testing"
)

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	config := &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	vad := NewVADDetector(config)

	// Create high-energy audio (should be detected as speech)
	samples := make([]int16, 160) // 20ms at 8kHz
	for i := range samples {
		samples[i] = 5000 // High amplitude
	}

	// Process multiple frames
	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	config := &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	vad := NewVADDetector(config)

	// Create low-energy audio (should be detected as silence)
	samples := make([]int16, 160) // 20ms at 8kHz
	for i := range samples {
		samples[i] = 10 // Low amplitude
	}

	// Process multiple frames (should not detect speech)
	for i := 0; i < 15; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(samples)
		if isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	config := &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	vad := NewVADDetector(config)

	// Create high-energy audio
	highSamples := make([]int16, 160)
	for i := range highSamples {
		highSamples[i] = 5000
	}

	// Create low-energy audio
	lowSamples := make([]int16, 160)
	for i := range lowSamples {
		lowSamples[i] = 10
	}

	// Process speech frames
	for i := 0; i < 5; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(highSamples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
	}

	// Process silence frames (should eventually mark as non-speech)
	speechEnded := false
	for i := 0; i < 15; i++ {
		_, _, ended := vad.ProcessFrame(lowSamples)
		if ended {
			speechEnded = true
			break
		}
	}

	// After silenceFrames (10) of silence, should mark speech as ended
	if !speechEnded {
		t.Error("Expected speech to end after silence frames")
	}
}

func TestVADDetector_IsSpeaking(t *testing.T) {
	config := &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	vad := NewVADDetector(config)

	// Initially should be false
	if vad.IsSpeaking() {
		t.Error("Expected initial speech state to be false")
	}

	// Process high-energy audio
	highSamples := make([]int16, 160)
	for i := range highSamples {
		highSamples[i] = 5000
	}

	vad.ProcessFrame(highSamples)
	if !vad.IsSpeaking() {
		t.Error("Expected speech state to be true after processing high-energy audio")
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	// Test with different thresholds
	lowConfig := &VADConfig{
		EnergyThreshold: 100.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	lowThreshold := NewVADDetector(lowConfig)

	highConfig := &VADConfig{
		EnergyThreshold: 5000.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	highThreshold := NewVADDetector(highConfig)

	// Create medium-energy audio
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 1000
	}

	// Low threshold should detect speech
	isSpeaking, _, _ := lowThreshold.ProcessFrame(samples)
	if !isSpeaking {
		t.Error("Expected low threshold to detect speech")
	}

	// High threshold should not detect speech
	isSpeaking, _, _ = highThreshold.ProcessFrame(samples)
	if isSpeaking {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	config := &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       160,
	}
	vad := NewVADDetector(config)

	// Process speech
	highSamples := make([]int16, 160)
	for i := range highSamples {
		highSamples[i] = 5000
	}
	vad.ProcessFrame(highSamples)

	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	// Reset
	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 500.0 {
		t.Errorf("Expected default EnergyThreshold 500.0, got %f", config.EnergyThreshold)
	}
	if config.SilenceFrames != 50 {
		t.Errorf("Expected default SilenceFrames 50, got %d", config.SilenceFrames)
	}
	if config.FrameSize != 320 {
		t.Errorf("Expected default FrameSize 320, got %d", config.FrameSize)
	}
}

func TestVADDetector_ProcessSplitsBuffers(t *testing.T) {
	vad := NewVADDetector(&VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   4,
		FrameSize:       100,
	})

	speech := make([]int16, 150)
	for i := range speech {
		speech[i] = 5000
	}
	if vad.Process(speech) {
		t.Fatal("Expected no speech end while speaking")
	}
	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	// 50 leftover speech samples plus 50 silent ones form a loud frame;
	// four more silent frames are needed after that.
	silence := make([]int16, 450)
	if !vad.Process(silence) {
		t.Error("Expected speech to end within the buffer")
	}
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after silence")
	}
}

func TestVADDetector_ProcessSilenceOnly(t *testing.T) {
	vad := NewVADDetector(nil)

	if vad.Process(make([]int16, 16000)) {
		t.Error("Expected no speech end without prior speech")
	}
}

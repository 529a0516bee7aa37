package speech

import (
	"fmt"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
)

// NewBackend creates the backend selected by TRANSCRIBE_BACKEND, wrapped in
// the configured circuit breaker and retry policy.
func NewBackend(cfg *config.Config) (Backend, error) {
	var backend Backend
	switch cfg.TranscribeBackend {
	case config.BackendOpenAI:
		backend = NewOpenAIBackend(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
	case config.BackendDeepgram:
		backend = NewDeepgramBackend(DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.DeepgramLanguage,
		})
	default:
		return nil, fmt.Errorf("unsupported transcription backend %q", cfg.TranscribeBackend)
	}

	return Guard(backend, cfg), nil
}

// Guard wraps backend with the circuit breaker and retry settings from cfg
func Guard(backend Backend, cfg *config.Config) Backend {
	breaker := resilience.NewCircuitBreaker(
		backend.Name(),
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	return newGuardedBackend(backend, breaker, retryConfigFromMillis(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff))
}

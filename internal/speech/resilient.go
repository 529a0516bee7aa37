package speech

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
)

// guardedBackend runs a backend behind a circuit breaker and retries
// transient failures with backoff.
type guardedBackend struct {
	backend        Backend
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         zerolog.Logger
}

func newGuardedBackend(backend Backend, breaker *resilience.CircuitBreaker, retryConfig *resilience.RetryConfig) *guardedBackend {
	breaker.
		WithFailurePredicate(countsAgainstCircuit).
		OnStateChange(func(name string, state resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(state))
		})

	return &guardedBackend{
		backend:        backend,
		circuitBreaker: breaker,
		retryConfig:    retryConfig,
		logger:         observability.WithComponent("speech").With().Str("backend", backend.Name()).Logger(),
	}
}

func (g *guardedBackend) Name() string {
	return g.backend.Name()
}

func (g *guardedBackend) Transcribe(ctx context.Context, file AudioFile) (string, error) {
	var text string
	attempt := 0

	err := g.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			attempt++
			var err error
			text, err = g.backend.Transcribe(ctx, file)
			if err != nil && attempt < g.retryConfig.MaxAttempts && isTransient(err) {
				g.logger.Warn().Err(err).Int("attempt", attempt).Msg("Transient backend failure, retrying")
			}
			return err
		}, g.retryConfig, isTransient)
	})
	if err != nil {
		if countsAgainstCircuit(err) {
			observability.IncrementCircuitBreakerFailures(g.circuitBreaker.Name())
		}
		return "", err
	}
	return text, nil
}

// isTransient reports whether another attempt could succeed
func isTransient(err error) bool {
	if errors.Is(err, ErrEmptyAudio) {
		return false
	}
	switch status := statusOf(err); {
	case status == http.StatusTooManyRequests || status >= 500:
		return true
	case status >= 400:
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}

// countsAgainstCircuit excludes request problems and caller cancellation
func countsAgainstCircuit(err error) bool {
	if errors.Is(err, ErrEmptyAudio) || errors.Is(err, context.Canceled) {
		return false
	}
	status := statusOf(err)
	return !(status >= 400 && status < 500 && status != http.StatusTooManyRequests)
}

func retryConfigFromMillis(attempts, initialBackoffMs int) *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	return cfg
}

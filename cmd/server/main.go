package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/httpapi"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/speech"
	"github.com/lexiqai/voice-transcribe/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.TranscribeBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Transcribe Service starting")

	backend, err := speech.NewBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech backend")
	}

	mux := http.NewServeMux()

	// Upload route used by recorders
	mux.HandleFunc("/api/transcript", httpapi.HandleTranscript(backend, cfg.MaxUploadBytes))

	// Remote capture over WebSocket
	mux.HandleFunc("/streams/capture", stream.HandleCapture(speech.NewPayloadTranscriber(backend)))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks configuration only
	backendCheck := func(ctx context.Context) (bool, error) {
		switch cfg.TranscribeBackend {
		case config.BackendOpenAI:
			if cfg.OpenAIAPIKey == "" {
				return false, fmt.Errorf("OPENAI_API_KEY is not set")
			}
		case config.BackendDeepgram:
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("DEEPGRAM_API_KEY is not set")
			}
		}
		return true, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		backend.Name(): backendCheck,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("upload", fmt.Sprintf("http://localhost:%s/api/transcript", cfg.Port)).
			Str("stream", fmt.Sprintf("ws://localhost:%s/streams/capture", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported server-side transcription backends
const (
	BackendOpenAI   = "openai"
	BackendDeepgram = "deepgram"
)

// Config holds all configuration for the transcription server and the recorder client
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"` // 25 MiB, the Whisper upload limit

	// Speech backend used by the server (openai, deepgram)
	TranscribeBackend string `envconfig:"TRANSCRIBE_BACKEND" default:"openai"`

	// OpenAI Whisper configuration
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""` // Optional; empty uses the public API
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"whisper-1"`

	// Deepgram prerecorded configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Recorder client configuration
	TranscribeURL      string `envconfig:"TRANSCRIBE_URL" default:"http://localhost:8080/api/transcript"`
	TranscribeAPIToken string `envconfig:"TRANSCRIBE_API_TOKEN" default:""` // Optional bearer token
	TranscribeTimeout  int    `envconfig:"TRANSCRIBE_TIMEOUT" default:"60"` // seconds

	// Microphone configuration
	MicSampleRate      int `envconfig:"MIC_SAMPLE_RATE" default:"16000"`
	MicFramesPerBuffer int `envconfig:"MIC_FRAMES_PER_BUFFER" default:"1024"`

	// Silence auto-stop for the recorder
	VADAutoStop        bool    `envconfig:"VAD_AUTO_STOP" default:"false"`
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`      // Frames of silence to mark speech end

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Backend attempts, server only
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads server configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads server configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads recorder configuration. Backend API keys are not required.
func LoadClient() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if cfg.TranscribeURL == "" {
		return nil, fmt.Errorf("TRANSCRIBE_URL is required")
	}
	if cfg.TranscribeTimeout <= 0 {
		return nil, fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %d", cfg.TranscribeTimeout)
	}
	if cfg.MicSampleRate <= 0 {
		return nil, fmt.Errorf("MIC_SAMPLE_RATE must be positive, got %d", cfg.MicSampleRate)
	}
	return cfg, nil
}

func process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.TranscribeBackend = strings.ToLower(strings.TrimSpace(cfg.TranscribeBackend))
	return &cfg, nil
}

func (c *Config) validateServer() error {
	switch c.TranscribeBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required")
		}
	default:
		return fmt.Errorf("unsupported TRANSCRIBE_BACKEND %q", c.TranscribeBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// UploadTimeout returns the client upload timeout as a duration
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeout) * time.Second
}

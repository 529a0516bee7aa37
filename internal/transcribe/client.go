package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
)

// FormField is the multipart field carrying the audio payload
const FormField = "audio"

// maxDetailBytes bounds how much of an error body is kept as failure detail
const maxDetailBytes = 4096

// Transcriber converts an assembled payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload *capture.Payload) (string, error)
}

// ClientConfig configures the HTTP transcription client. It is passed in
// explicitly; the client reads no global state.
type ClientConfig struct {
	URL      string
	APIToken string // optional bearer token

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration

	HTTPClient *http.Client // optional; defaults to a client without timeout
}

// NewClientConfig derives a ClientConfig from the process configuration
func NewClientConfig(cfg *config.Config) ClientConfig {
	return ClientConfig{
		URL:                        cfg.TranscribeURL,
		APIToken:                   cfg.TranscribeAPIToken,
		CircuitBreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		CircuitBreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
	}
}

// Client uploads payloads to the transcription service over HTTP.
// It never retries; a failed upload is reported once.
type Client struct {
	cfg            ClientConfig
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

type transcriptResponse struct {
	Transcript *string `json:"transcript"`
}

// NewClient creates a transcription service client
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.CircuitBreakerResetTimeout <= 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	breaker := resilience.NewCircuitBreaker("transcription-service", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout).
		WithFailurePredicate(countsAgainstCircuit).
		OnStateChange(func(name string, state resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(state))
		})

	return &Client{
		cfg:            cfg,
		httpClient:     httpClient,
		circuitBreaker: breaker,
		logger:         observability.WithComponent("transcribe-client"),
	}
}

// Transcribe posts the payload as multipart field "audio" and returns the
// transcript. Every failure is a *ServiceError.
func (c *Client) Transcribe(ctx context.Context, payload *capture.Payload) (string, error) {
	var transcript string

	err := c.circuitBreaker.Call(func() error {
		var err error
		transcript, err = c.upload(ctx, payload)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = &ServiceError{Detail: "service temporarily unavailable (circuit open)", Err: err}
		} else if countsAgainstCircuit(err) {
			observability.IncrementCircuitBreakerFailures(c.circuitBreaker.Name())
		}
		c.logger.Warn().Err(err).Int("bytes", payload.Size()).Msg("Transcription upload failed")
		return "", asServiceError(err)
	}

	c.logger.Debug().Int("bytes", payload.Size()).Int("chars", len(transcript)).Msg("Transcription received")
	return transcript, nil
}

// countsAgainstCircuit excludes 4xx responses and caller cancellation
func countsAgainstCircuit(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode >= 400 && svcErr.StatusCode < 500 {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) upload(ctx context.Context, payload *capture.Payload) (string, error) {
	body, contentType, err := encodeForm(payload)
	if err != nil {
		return "", &ServiceError{Detail: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return "", &ServiceError{Detail: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ServiceError{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ServiceError{StatusCode: resp.StatusCode, Detail: readDetail(resp)}
	}

	var decoded transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &ServiceError{Detail: "malformed response body", Err: err}
	}
	if decoded.Transcript == nil {
		return "", &ServiceError{Detail: "malformed response body: missing transcript"}
	}
	return *decoded.Transcript, nil
}

func encodeForm(payload *capture.Payload) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, payload.FileName()))
	header.Set("Content-Type", payload.MediaType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// readDetail returns the error body as text, falling back to the status text
func readDetail(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	detail := strings.TrimSpace(string(b))

	// Prefer the "error" field of a JSON error body
	var jsonErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &jsonErr) == nil && jsonErr.Error != "" {
		detail = jsonErr.Error
	}

	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return detail
}

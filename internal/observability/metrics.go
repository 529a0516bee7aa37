package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture outcomes
const (
	OutcomePayload   = "payload"
	OutcomeNoAudio   = "no_audio"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

var (
	// Capture metrics
	activeCaptures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_transcribe_active_captures",
		Help: "Number of capture sessions currently holding a microphone stream",
	})

	captureOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_captures_total",
		Help: "Total number of capture sessions by outcome",
	}, []string{"outcome"})

	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_transcribe_capture_duration_seconds",
		Help:    "Duration of capture sessions in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"component", "status"})

	transcriptionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_transcribe_transcription_latency_seconds",
		Help:    "Transcription round trip latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"component"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_transcribe_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_audio_bytes_total",
		Help: "Total audio bytes captured or received",
	}, []string{"source"}) // source: "capture" or "upload"
)

// Metrics tracks metrics for a single capture-and-transcribe cycle
type Metrics struct {
	component           string
	captureStartTime    time.Time
	transcribeStartTime time.Time
	mu                  sync.Mutex
}

// NewMetrics creates a new metrics tracker labelled with a component name
func NewMetrics(component string) *Metrics {
	return &Metrics{component: component}
}

// RecordCaptureStart records that a capture session acquired the microphone
func (m *Metrics) RecordCaptureStart() {
	m.mu.Lock()
	m.captureStartTime = time.Now()
	m.mu.Unlock()
	activeCaptures.Inc()
}

// RecordCaptureEnd records the release of the microphone and the session outcome
func (m *Metrics) RecordCaptureEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.captureStartTime.IsZero() {
		activeCaptures.Dec()
		captureDuration.Observe(time.Since(m.captureStartTime).Seconds())
		m.captureStartTime = time.Time{}
	}
	captureOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTranscriptionStart records the start of a transcription request
func (m *Metrics) RecordTranscriptionStart() {
	m.mu.Lock()
	m.transcribeStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTranscriptionEnd records the end of a transcription request
func (m *Metrics) RecordTranscriptionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.transcribeStartTime.IsZero() {
		transcriptionLatency.WithLabelValues(m.component).Observe(time.Since(m.transcribeStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	transcriptionRequests.WithLabelValues(m.component, status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType, m.component).Inc()
}

// RecordAudioBytes records audio bytes captured or received
func (m *Metrics) RecordAudioBytes(source string, bytes int64) {
	audioBytesCaptured.WithLabelValues(source).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

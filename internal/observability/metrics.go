package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topic_gateway_active_sessions",
		Help: "Number of sessions currently recording",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topic_gateway_sessions_total",
		Help: "Total number of recording sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "topic_gateway_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
	})

	// Segmentation metrics
	silenceBoundaries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topic_gateway_silence_boundaries_total",
		Help: "Total number of silence boundary events",
	})

	segmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_segments_created_total",
		Help: "Total number of transcript segments created",
	}, []string{"trigger"}) // trigger: "silence" or "stop"

	// Suggestion metrics
	suggestionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_suggestion_requests_total",
		Help: "Total number of suggestion requests by outcome",
	}, []string{"status"})

	suggestionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "topic_gateway_suggestion_latency_seconds",
		Help:    "Suggestion endpoint latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Transcription metrics
	transcriptionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_transcription_results_total",
		Help: "Total number of transcription results",
	}, []string{"kind"}) // kind: "final" or "interim"

	transcriptionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_transcription_errors_total",
		Help: "Total number of transcription runtime errors",
	}, []string{"kind"})

	// Storage metrics
	storageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_storage_errors_total",
		Help: "Total number of failed storage writes",
	}, []string{"operation"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_errors_total",
		Help: "Total number of errors surfaced to clients",
	}, []string{"code", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "topic_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topic_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "transcriber"

	audioFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topic_gateway_audio_frames_dropped_total",
		Help: "Audio frames dropped because the transcription queue was full",
	})
)

// SessionMetrics tracks metrics for a single recording session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordBoundary records a silence boundary event
func (m *SessionMetrics) RecordBoundary() {
	silenceBoundaries.Inc()
}

// RecordTranscription records one transcription result
func (m *SessionMetrics) RecordTranscription(final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	transcriptionResults.WithLabelValues(kind).Inc()
}

// RecordTranscriptionError records a transcription runtime error
func (m *SessionMetrics) RecordTranscriptionError(kind string) {
	transcriptionErrors.WithLabelValues(kind).Inc()
}

// RecordError records an error surfaced to the client
func (m *SessionMetrics) RecordError(code, component string) {
	errorsTotal.WithLabelValues(code, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameDropped counts a frame that never reached transcription
func RecordFrameDropped() {
	audioFramesDropped.Inc()
}

// RecordSegmentCreated records a new transcript segment
func RecordSegmentCreated(trigger string) {
	segmentsCreated.WithLabelValues(trigger).Inc()
}

// RecordSuggestionRequest records the outcome and latency of a suggestion request
func RecordSuggestionRequest(status string, latency time.Duration) {
	suggestionRequests.WithLabelValues(status).Inc()
	if latency > 0 {
		suggestionLatency.Observe(latency.Seconds())
	}
}

// RecordStorageError records a failed storage write
func RecordStorageError(operation string) {
	storageErrors.WithLabelValues(operation).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

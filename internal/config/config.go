package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the topic gateway service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service

	// Browser origins allowed to call the API and open the session socket.
	// Entries are exact origins, "scheme://*" prefixes, or "*".
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"chrome-extension://*,moz-extension://*"`

	// Gemini suggestion endpoint. The API key is optional here: it can also be
	// stored through the settings API, and a request without one fails with
	// MissingCredential rather than failing startup.
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`

	// Suggestion behaviour
	SuggestionTemperature    float64 `envconfig:"SUGGESTION_TEMPERATURE" default:"0.7"`
	SuggestionMaxTokens      int     `envconfig:"SUGGESTION_MAX_TOKENS" default:"300"`
	SuggestionWindowSegments int     `envconfig:"SUGGESTION_WINDOW_SEGMENTS" default:"2"`
	SuggestionHistoryLimit   int     `envconfig:"SUGGESTION_HISTORY_LIMIT" default:"20"`
	SuggestionTimeout        int     `envconfig:"SUGGESTION_TIMEOUT" default:"30"` // seconds

	// Deepgram STT. Without a key the transcription capability is unsupported.
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"ja"`

	// Audio / segmentation
	AudioSampleRate           int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	MonitorIntervalMs         int     `envconfig:"MONITOR_INTERVAL_MS" default:"200"`
	MonitorWindowSize         int     `envconfig:"MONITOR_WINDOW_SIZE" default:"2048"` // samples, power of two
	SilenceThreshold          float64 `envconfig:"SILENCE_THRESHOLD" default:"10.0"`   // RMS deviation from 128
	SilenceDurationMs         int     `envconfig:"SILENCE_DURATION_MS" default:"2000"` // silence run that closes a segment
	MinRecordingMs            int     `envconfig:"MIN_RECORDING_MS" default:"30000"`   // 0 disables the guard
	TranscriptionRetryDelayMs int     `envconfig:"TRANSCRIPTION_RETRY_DELAY_MS" default:"1000"`

	// Transcript normalization
	FillerRemoval bool     `envconfig:"FILLER_REMOVAL" default:"false"`
	FillerWords   []string `envconfig:"FILLER_WORDS" default:""` // empty uses the built-in list

	// Persistence
	DatabasePath   string `envconfig:"DATABASE_PATH" default:"topic-gateway.sqlite"`
	SaveRecordings bool   `envconfig:"SAVE_RECORDINGS" default:"false"`
	RecordingsDir  string `envconfig:"RECORDINGS_DIR" default:"recordings"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	if c.MonitorWindowSize <= 0 || c.MonitorWindowSize&(c.MonitorWindowSize-1) != 0 {
		return fmt.Errorf("MONITOR_WINDOW_SIZE must be a power of two, got %d", c.MonitorWindowSize)
	}
	if c.MonitorIntervalMs <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL_MS must be positive, got %d", c.MonitorIntervalMs)
	}
	if c.SilenceDurationMs <= 0 {
		return fmt.Errorf("SILENCE_DURATION_MS must be positive, got %d", c.SilenceDurationMs)
	}
	if c.MinRecordingMs < 0 {
		return fmt.Errorf("MIN_RECORDING_MS must not be negative, got %d", c.MinRecordingMs)
	}
	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate)
	}
	if c.SuggestionHistoryLimit <= 0 {
		return fmt.Errorf("SUGGESTION_HISTORY_LIMIT must be positive, got %d", c.SuggestionHistoryLimit)
	}
	if c.SuggestionWindowSegments <= 0 {
		return fmt.Errorf("SUGGESTION_WINDOW_SEGMENTS must be positive, got %d", c.SuggestionWindowSegments)
	}
	return nil
}

// MonitorInterval returns the energy sampling cadence
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalMs) * time.Millisecond
}

// SilenceDuration returns how long a silent run lasts before a boundary fires
func (c *Config) SilenceDuration() time.Duration {
	return time.Duration(c.SilenceDurationMs) * time.Millisecond
}

// MinRecording returns the segmentation guard duration
func (c *Config) MinRecording() time.Duration {
	return time.Duration(c.MinRecordingMs) * time.Millisecond
}

// TranscriptionRetryDelay returns the wait before restarting transcription
func (c *Config) TranscriptionRetryDelay() time.Duration {
	return time.Duration(c.TranscriptionRetryDelayMs) * time.Millisecond
}

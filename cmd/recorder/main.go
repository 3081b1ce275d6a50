// Command recorder runs a topic suggestion session against the local
// microphone and prints transcript, segments and suggestions to the log.
// Build with -tags portaudio for microphone support.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/capture"
	"github.com/vrcneta/topic-gateway/internal/config"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/resilience"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/session"
	"github.com/vrcneta/topic-gateway/internal/storage"
	"github.com/vrcneta/topic-gateway/internal/stt"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

// logObserver prints session events
type logObserver struct {
	logger zerolog.Logger
}

func (o logObserver) OnTranscriptUpdate(u session.TranscriptUpdate) {
	if u.IsFinal {
		o.logger.Info().Str("text", u.Text).Msg("Transcript")
	}
}

func (o logObserver) OnSegmentCreated(seg segment.Segment) {
	o.logger.Info().Int("sequence", seg.Sequence).Str("text", seg.Text).Msg("Segment")
}

func (o logObserver) OnSuggestions(set *suggestion.Set) {
	for _, s := range set.Suggestions {
		event := o.logger.Info().Str("topic", s.Topic)
		if s.DeepDive != "" {
			event = event.Str("deep_dive", s.DeepDive)
		}
		event.Msg("Suggestion")
	}
}

func (o logObserver) OnRecordingStateChanged(change session.StateChange) {
	o.logger.Info().Str("state", string(change.State)).Dur("elapsed", change.Elapsed).Msg("Recording state")
}

func (o logObserver) OnError(sessionID string, err *apperr.Error) {
	o.logger.Warn().Str("code", string(err.Code)).Msg(err.Message)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, true)
	logger := observability.GetLogger()

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	breaker := resilience.NewCircuitBreaker("gemini", cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)

	controller := session.NewController(session.OptionsFromConfig(cfg), session.Dependencies{
		Capture:       capture.NewLocalProvider(),
		Transcription: stt.NewProvider(cfg, logger),
		Generator: suggestion.NewClient(suggestion.ClientConfig{
			BaseURL:     cfg.GeminiBaseURL,
			Model:       cfg.GeminiModel,
			Temperature: cfg.SuggestionTemperature,
			MaxTokens:   cfg.SuggestionMaxTokens,
			Timeout:     time.Duration(cfg.SuggestionTimeout) * time.Second,
		}, breaker),
		Settings: storage.NewSettings(store, cfg.GeminiAPIKey, cfg.FillerRemoval),
		Store:    store,
	}, logObserver{logger: logger}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := controller.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start recording")
		os.Exit(1)
	}
	logger.Info().Msg("Recording, press Ctrl+C to stop")

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := controller.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close session")
	}
}

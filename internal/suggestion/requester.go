package suggestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/segment"
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// SettingsSource supplies the credential and the user prompt template
type SettingsSource interface {
	APIKey(ctx context.Context) (string, error)
	PromptTemplate(ctx context.Context) (string, error)
}

// HistoryWriter stores suggestion sets newest first, capped at limit
type HistoryWriter interface {
	PrependSuggestionSet(ctx context.Context, set Set, limit int) error
}

// Listener receives request outcomes
type Listener interface {
	OnSuggestions(set *Set)
	OnSuggestionError(sessionID string, err *apperr.Error)
}

// RequesterConfig holds configuration for the Requester
type RequesterConfig struct {
	WindowSegments int           // Segments included in the window
	HistoryLimit   int           // Maximum stored suggestion sets
	Timeout        time.Duration // Per-request deadline
}

// DefaultRequesterConfig returns a default requester configuration
func DefaultRequesterConfig() RequesterConfig {
	return RequesterConfig{
		WindowSegments: 2,
		HistoryLimit:   20,
		Timeout:        30 * time.Second,
	}
}

// Requester builds the conversation window, calls the generator and
// publishes the parsed suggestions. It is the only writer of the
// suggestion history.
type Requester struct {
	config    RequesterConfig
	generator Generator
	settings  SettingsSource
	history   HistoryWriter
	listener  Listener
	logger    zerolog.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

// NewRequester creates a requester; history and listener may be nil
func NewRequester(config RequesterConfig, generator Generator, settings SettingsSource,
	history HistoryWriter, listener Listener, logger zerolog.Logger) *Requester {
	defaults := DefaultRequesterConfig()
	if config.WindowSegments <= 0 {
		config.WindowSegments = defaults.WindowSegments
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Requester{
		config:    config,
		generator: generator,
		settings:  settings,
		history:   history,
		listener:  listener,
		logger:    observability.WithComponent(logger, "suggestion"),
		now:       time.Now,
	}
}

// Request runs one suggestion request. It returns (nil, nil) when the
// window is empty and no request was made. Any error is an *apperr.Error
// and has already been published to the listener.
func (r *Requester) Request(ctx context.Context, sessionID string, segments []segment.Segment, partial string) (*Set, error) {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	window := BuildWindow(texts, partial, r.config.WindowSegments)
	if window == "" {
		return nil, nil
	}

	apiKey, err := r.settings.APIKey(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read API key setting, using configured default")
	}
	if apiKey == "" {
		return nil, r.fail(sessionID, apperr.New(apperr.MissingCredential, "API key is not configured"), 0)
	}

	template, err := r.settings.PromptTemplate(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read prompt setting, using default template")
		template = ""
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.generator.Generate(ctx, apiKey, BuildPrompt(template, window))
	latency := time.Since(start)
	if err != nil {
		return nil, r.fail(sessionID, apperr.From(err, apperr.SuggestionRequestFailed), latency)
	}

	suggestions := ParseSuggestions(text)
	if len(suggestions) == 0 {
		return nil, r.fail(sessionID, apperr.New(apperr.NoSuggestions, "response contained no list items"), latency)
	}

	set := &Set{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		CreatedAt:   r.now(),
		Suggestions: suggestions,
	}

	if r.history != nil {
		if err := r.history.PrependSuggestionSet(ctx, *set, r.config.HistoryLimit); err != nil {
			observability.RecordStorageError("suggestion_history")
			r.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to store suggestion history")
		}
	}

	observability.RecordSuggestionRequest("success", latency)
	r.logger.Info().
		Str("session_id", sessionID).
		Int("suggestions", len(suggestions)).
		Dur("latency", latency).
		Msg("Suggestions received")

	if r.listener != nil {
		r.listener.OnSuggestions(set)
	}
	return set, nil
}

func (r *Requester) fail(sessionID string, err *apperr.Error, latency time.Duration) *apperr.Error {
	observability.RecordSuggestionRequest(string(err.Code), latency)
	r.logger.Warn().Err(err).Str("session_id", sessionID).Str("code", string(err.Code)).Msg("Suggestion request failed")

	if r.listener != nil {
		r.listener.OnSuggestionError(sessionID, err)
	}
	return err
}

// RequestAsync runs Request in its own goroutine on a context detached from
// the caller, so a request issued at stop still completes. Overlapping
// requests race; the listener sees results in completion order.
func (r *Requester) RequestAsync(sessionID string, segments []segment.Segment, partial string) {
	snapshot := make([]segment.Segment, len(segments))
	copy(snapshot, segments)

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				r.fail(sessionID, apperr.Newf(apperr.SuggestionRequestFailed, "request panicked: %v", p), 0)
			}
		}()

		r.Request(context.Background(), sessionID, snapshot, partial)
	}()
}

// Wait blocks until every in-flight asynchronous request has finished or
// ctx is done.
func (r *Requester) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for suggestion requests: %w", ctx.Err())
	}
}

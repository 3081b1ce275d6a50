package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
	"github.com/vrcneta/topic-gateway/internal/capture"
	"github.com/vrcneta/topic-gateway/internal/config"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/resilience"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/stt"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
	"github.com/vrcneta/topic-gateway/internal/transcript"
)

// Settings is the persisted user configuration a session reads
type Settings interface {
	suggestion.SettingsSource
	FillerRemoval(ctx context.Context) (bool, error)
}

// Store persists conversations, segments and suggestion history
type Store interface {
	segment.Persister
	suggestion.HistoryWriter
	BeginConversation(ctx context.Context, id string, startedAt time.Time) error
	EndConversation(ctx context.Context, id string, endedAt time.Time) error
}

// Dependencies are the capabilities a Controller drives. Store may be nil.
type Dependencies struct {
	Capture       capture.Provider
	Transcription stt.Provider
	Generator     suggestion.Generator
	Settings      Settings
	Store         Store
}

// Options tune a Controller
type Options struct {
	Constraints     capture.Constraints
	Monitor         audio.MonitorConfig
	SilenceDuration time.Duration
	MinRecording    time.Duration
	RetryDelay      time.Duration
	Language        string
	FillerWords     []string
	Requester       suggestion.RequesterConfig
	SaveRecordings  bool
	RecordingsDir   string
}

// OptionsFromConfig builds controller options from service configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Constraints: capture.Constraints{
			SampleRate: cfg.AudioSampleRate,
			Encoding:   capture.EncodingLinear16,
			WindowSize: cfg.MonitorWindowSize,
		},
		Monitor: audio.MonitorConfig{
			Interval:   cfg.MonitorInterval(),
			WindowSize: cfg.MonitorWindowSize,
			Threshold:  cfg.SilenceThreshold,
		},
		SilenceDuration: cfg.SilenceDuration(),
		MinRecording:    cfg.MinRecording(),
		RetryDelay:      cfg.TranscriptionRetryDelay(),
		Language:        cfg.DeepgramLanguage,
		FillerWords:     cfg.FillerWords,
		Requester: suggestion.RequesterConfig{
			WindowSegments: cfg.SuggestionWindowSegments,
			HistoryLimit:   cfg.SuggestionHistoryLimit,
			Timeout:        time.Duration(cfg.SuggestionTimeout) * time.Second,
		},
		SaveRecordings: cfg.SaveRecordings,
		RecordingsDir:  cfg.RecordingsDir,
	}
}

// Controller owns the Idle -> Recording -> Idle lifecycle of one client.
// A single loop goroutine serializes monitor readings and transcription
// events while recording; Start and Stop are serialized with each other.
type Controller struct {
	options  Options
	deps     Dependencies
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time

	filter    *transcript.FillerFilter
	buffer    *transcript.Buffer
	segments  *segment.Store
	requester *suggestion.Requester

	lifecycle sync.Mutex

	mu          sync.RWMutex
	state       State
	sessionID   string
	startedAt   time.Time
	stream      capture.Stream
	transcriber stt.Transcriber
	recorder    *audio.Recorder
	metrics     *observability.SessionMetrics
	cancel      context.CancelFunc
	loopDone    chan struct{}
	workers     sync.WaitGroup
}

// NewController creates an idle controller. observer may be nil.
func NewController(options Options, deps Dependencies, observer Observer, logger zerolog.Logger) *Controller {
	if observer == nil {
		observer = NopObserver{}
	}

	c := &Controller{
		options:  options,
		deps:     deps,
		observer: observer,
		logger:   observability.WithComponent(logger, "session"),
		now:      time.Now,
		state:    StateIdle,
	}

	c.filter = transcript.NewFillerFilter(false, options.FillerWords)
	c.buffer = transcript.NewBuffer(c.filter)

	var persister segment.Persister
	var history suggestion.HistoryWriter
	if deps.Store != nil {
		persister = deps.Store
		history = deps.Store
	}

	c.requester = suggestion.NewRequester(options.Requester, deps.Generator, deps.Settings, history, c, logger)
	c.segments = segment.NewStore(c.buffer, options.MinRecording, persister, c.requester, c, logger)
	return c
}

// State returns the current recording state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID returns the id of the current or most recent session
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// IsLive reports whether sessionID is the session currently recording
func (c *Controller) IsLive(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateRecording && c.sessionID == sessionID
}

// Segments returns the segment log of the current or most recent session
func (c *Controller) Segments() []segment.Segment {
	return c.segments.Segments()
}

// Start begins a recording session and returns its id. When already
// recording it returns the live session id. On failure everything acquired
// so far is released, the typed error is published, and the controller
// stays idle.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.RLock()
	state, current := c.state, c.sessionID
	c.mu.RUnlock()
	if state == StateRecording {
		c.logger.Warn().Str("session_id", current).Msg("Start requested while already recording")
		return current, nil
	}

	sessionID := uuid.New().String()
	startedAt := c.now()
	logger := observability.WithSessionID(c.logger, sessionID)
	metrics := observability.NewSessionMetrics(sessionID)

	fail := func(code apperr.Code, component string, err error) (string, error) {
		appErr := apperr.From(err, code)
		metrics.RecordError(string(appErr.Code), component)
		logger.Error().Err(appErr).Str("code", string(appErr.Code)).Msg("Failed to start session")
		c.observer.OnError(sessionID, appErr)
		return "", appErr
	}

	stream, err := c.deps.Capture.AcquireStream(ctx, c.options.Constraints)
	if err != nil {
		return fail(apperr.CapabilityUnsupported, "capture", err)
	}

	monitor, err := audio.NewEnergyMonitor(stream, &c.options.Monitor)
	if err != nil {
		stream.Release()
		return fail(apperr.InvalidArgument, "monitor", err)
	}

	transcriber, err := c.deps.Transcription.NewTranscriber(stt.Options{
		SampleRate: stream.SampleRate(),
		Encoding:   string(capture.EncodingLinear16),
		Language:   c.options.Language,
	})
	if err != nil {
		stream.Release()
		return fail(apperr.CapabilityUnsupported, "transcription", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	if err := transcriber.Start(sessionCtx); err != nil {
		cancel()
		transcriber.Stop()
		stream.Release()
		return fail(apperr.TranscriptionFailed, "transcription", err)
	}

	if enabled, err := c.deps.Settings.FillerRemoval(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to read filler removal setting")
	} else {
		c.filter.SetEnabled(enabled)
	}

	c.buffer.Reset()
	c.segments.Reset(sessionID, startedAt)

	if c.deps.Store != nil {
		if err := c.deps.Store.BeginConversation(ctx, sessionID, startedAt); err != nil {
			observability.RecordStorageError("begin_conversation")
			logger.Error().Err(err).Msg("Failed to record conversation start")
		}
	}

	var recorder *audio.Recorder
	if c.options.SaveRecordings {
		recorder = audio.NewRecorder(stream.SampleRate())
	}

	loopDone := make(chan struct{})

	c.mu.Lock()
	c.state = StateRecording
	c.sessionID = sessionID
	c.startedAt = startedAt
	c.stream = stream
	c.transcriber = transcriber
	c.recorder = recorder
	c.metrics = metrics
	c.cancel = cancel
	c.loopDone = loopDone
	c.mu.Unlock()

	metrics.RecordSessionStart()

	c.workers.Add(1)
	go c.forwardAudio(stream, transcriber, recorder, metrics, logger)

	readings := monitor.Run(sessionCtx)
	go c.run(sessionCtx, sessionID, readings, transcriber, metrics, logger, loopDone)

	logger.Info().
		Int("sample_rate", stream.SampleRate()).
		Dur("silence_duration", c.options.SilenceDuration).
		Msg("Recording started")

	c.observer.OnRecordingStateChanged(StateChange{
		SessionID: sessionID,
		State:     StateRecording,
		StartedAt: startedAt,
	})
	return sessionID, nil
}

// Stop ends the current session. Stopping while idle does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stop(ctx, "")
}

// stop ends the live session, or only the named one when sessionID is set
func (c *Controller) stop(ctx context.Context, only string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state != StateRecording || (only != "" && c.sessionID != only) {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	startedAt := c.startedAt
	stream := c.stream
	transcriber := c.transcriber
	recorder := c.recorder
	metrics := c.metrics
	cancel := c.cancel
	loopDone := c.loopDone
	c.mu.Unlock()

	logger := observability.WithSessionID(c.logger, sessionID)

	cancel()
	<-loopDone

	if err := transcriber.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error stopping transcription")
	}
	c.drainResults(sessionID, transcriber, metrics)

	stream.Release()
	c.workers.Wait()

	if counter, ok := stream.(droppedCounter); ok {
		if dropped := counter.Dropped(); dropped > 0 {
			logger.Warn().Int("frames", dropped).Msg("Audio frames dropped before transcription")
		}
	}

	// A retry racing the stop may have reopened the connection
	transcriber.Stop()

	c.mu.Lock()
	c.state = StateIdle
	c.stream = nil
	c.transcriber = nil
	c.recorder = nil
	c.cancel = nil
	c.mu.Unlock()

	c.segments.Flush(ctx)
	c.requester.RequestAsync(sessionID, c.segments.Segments(), c.buffer.LiveText())

	endedAt := c.now()
	if c.deps.Store != nil {
		if err := c.deps.Store.EndConversation(ctx, sessionID, endedAt); err != nil {
			observability.RecordStorageError("end_conversation")
			logger.Error().Err(err).Msg("Failed to record conversation end")
		}
	}

	if recorder != nil && recorder.Len() > 0 {
		path := filepath.Join(c.options.RecordingsDir, sessionID+".wav")
		if err := recorder.SaveFile(path); err != nil {
			observability.RecordStorageError("save_recording")
			logger.Error().Err(err).Str("path", path).Msg("Failed to save recording")
		} else {
			logger.Info().Str("path", path).Dur("duration", recorder.Duration()).Msg("Recording saved")
		}
	}

	metrics.RecordSessionEnd()
	logger.Info().
		Int("segments", c.segments.Len()).
		Dur("elapsed", endedAt.Sub(startedAt)).
		Msg("Recording stopped")

	c.observer.OnRecordingStateChanged(StateChange{
		SessionID: sessionID,
		State:     StateIdle,
		StartedAt: startedAt,
		Elapsed:   endedAt.Sub(startedAt),
	})
	return nil
}

// droppedCounter is implemented by streams that shed frames under backpressure
type droppedCounter interface {
	Dropped() int
}

// Close stops any live session and waits for in-flight suggestion requests
func (c *Controller) Close(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.requester.Wait(ctx)
}

// run is the session loop. It owns the silence detector and serializes
// boundary handling with transcript updates.
func (c *Controller) run(ctx context.Context, sessionID string, readings <-chan audio.Reading,
	transcriber stt.Transcriber, metrics *observability.SessionMetrics, logger zerolog.Logger, done chan struct{}) {
	defer close(done)

	detector := audio.NewSilenceDetector(c.options.SilenceDuration)
	defer func() {
		logger.Debug().Int("boundaries", detector.Boundaries()).Msg("Session loop finished")
	}()

	results := transcriber.Results()
	errs := transcriber.Errors()

	for {
		select {
		case <-ctx.Done():
			return

		case reading, ok := <-readings:
			if !ok {
				if ctx.Err() == nil {
					logger.Warn().Msg("Audio stream ended, stopping session")
					go c.stopSession(sessionID)
				}
				return
			}
			if detector.Observe(reading) {
				metrics.RecordBoundary()
				logger.Debug().Float64("level", reading.Level).Msg("Silence boundary")
				c.segments.OnBoundary(ctx)
			}

		case result := <-results:
			c.applyResult(sessionID, result, metrics)

		case err := <-errs:
			c.handleTranscriptionError(ctx, sessionID, transcriber, err, metrics, logger)
		}
	}
}

func (c *Controller) applyResult(sessionID string, result *stt.Result, metrics *observability.SessionMetrics) {
	if result == nil {
		return
	}

	if result.IsFinal {
		c.buffer.Append(result.Text)
	} else {
		c.buffer.SetInterim(result.Text)
	}
	metrics.RecordTranscription(result.IsFinal)

	c.observer.OnTranscriptUpdate(TranscriptUpdate{
		SessionID: sessionID,
		Text:      result.Text,
		IsFinal:   result.IsFinal,
		Live:      c.buffer.LiveText(),
	})
}

func (c *Controller) drainResults(sessionID string, transcriber stt.Transcriber, metrics *observability.SessionMetrics) {
	results := transcriber.Results()
	for {
		select {
		case result := <-results:
			c.applyResult(sessionID, result, metrics)
		default:
			return
		}
	}
}

// handleTranscriptionError publishes a runtime failure and schedules one
// restart after the retry delay while the same session is still recording.
// If the restart fails recording continues without transcription.
func (c *Controller) handleTranscriptionError(ctx context.Context, sessionID string, transcriber stt.Transcriber,
	err error, metrics *observability.SessionMetrics, logger zerolog.Logger) {
	kind := stt.KindOf(err)
	metrics.RecordTranscriptionError(kind)

	appErr := apperr.Wrap(err, apperr.TranscriptionFailed, "transcription interrupted").WithMetadata("kind", kind)
	logger.Warn().Err(err).Str("kind", kind).Msg("Transcription error")
	c.observer.OnError(sessionID, appErr)

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()

		retry := func(ctx context.Context) error {
			return transcriber.Start(ctx)
		}
		live := func() bool {
			return c.IsLive(sessionID)
		}

		err := resilience.After(ctx, c.options.RetryDelay, retry, live)
		switch {
		case err == nil:
			logger.Info().Msg("Transcription restarted")
		case errors.Is(err, resilience.ErrAbandoned), errors.Is(err, context.Canceled):
		default:
			logger.Error().Err(err).Msg("Transcription restart failed, continuing without transcription")
			c.observer.OnError(sessionID, apperr.From(err, apperr.TranscriptionFailed))
		}
	}()
}

// forwardAudio pumps linear16 frames to the transcriber and the recorder
// until the stream is released.
func (c *Controller) forwardAudio(stream capture.Stream, transcriber stt.Transcriber, recorder *audio.Recorder,
	metrics *observability.SessionMetrics, logger zerolog.Logger) {
	defer c.workers.Done()

	for frame := range stream.Audio() {
		metrics.RecordAudioBytes("in", int64(len(frame)))

		if err := transcriber.SendAudio(frame); err != nil && !errors.Is(err, stt.ErrNotActive) {
			logger.Debug().Err(err).Msg("Failed to send audio to transcription")
		}

		if recorder != nil {
			if samples, err := audio.DecodePCM16(frame); err == nil {
				recorder.Write(samples)
			}
		}
	}
}

// stopSession stops the session if it is still the live one
func (c *Controller) stopSession(sessionID string) {
	if err := c.stop(context.Background(), sessionID); err != nil {
		c.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to stop session")
	}
}

// OnSegmentCreated implements segment.Listener
func (c *Controller) OnSegmentCreated(seg segment.Segment) {
	c.observer.OnSegmentCreated(seg)
}

// OnSuggestions implements suggestion.Listener
func (c *Controller) OnSuggestions(set *suggestion.Set) {
	c.observer.OnSuggestions(set)
}

// OnSuggestionError implements suggestion.Listener
func (c *Controller) OnSuggestionError(sessionID string, err *apperr.Error) {
	c.observer.OnError(sessionID, err)
}

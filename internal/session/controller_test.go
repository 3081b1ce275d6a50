package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
	"github.com/vrcneta/topic-gateway/internal/capture"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/stt"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr []error // consumed per Start call
	sent     int

	results chan *stt.Result
	errors  chan error
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{
		results: make(chan *stt.Result, 16),
		errors:  make(chan error, 4),
	}
}

func (f *fakeTranscriber) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if len(f.startErr) > 0 {
		err := f.startErr[0]
		f.startErr = f.startErr[1:]
		return err
	}
	return nil
}

func (f *fakeTranscriber) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeTranscriber) Results() <-chan *stt.Result { return f.results }
func (f *fakeTranscriber) Errors() <-chan error        { return f.errors }

func (f *fakeTranscriber) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTranscriber) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeSTTProvider struct {
	transcriber *fakeTranscriber
}

func (p *fakeSTTProvider) Name() string    { return "fake" }
func (p *fakeSTTProvider) Supported() bool { return true }

func (p *fakeSTTProvider) NewTranscriber(opts stt.Options) (stt.Transcriber, error) {
	return p.transcriber, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return "- Topic A\n- Topic B", nil
}

func (f *fakeGenerator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeSettings struct{}

func (fakeSettings) APIKey(ctx context.Context) (string, error)         { return "test-key", nil }
func (fakeSettings) PromptTemplate(ctx context.Context) (string, error) { return "", nil }
func (fakeSettings) FillerRemoval(ctx context.Context) (bool, error)    { return false, nil }

type fakeStore struct {
	mu       sync.Mutex
	begun    []string
	ended    []string
	segments []segment.Segment
	sets     []suggestion.Set
}

func (f *fakeStore) AppendSegment(ctx context.Context, seg segment.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, seg)
	return nil
}

func (f *fakeStore) PrependSuggestionSet(ctx context.Context, set suggestion.Set, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append([]suggestion.Set{set}, f.sets...)
	return nil
}

func (f *fakeStore) BeginConversation(ctx context.Context, id string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, id)
	return nil
}

func (f *fakeStore) EndConversation(ctx context.Context, id string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transcripts []TranscriptUpdate
	segments    []segment.Segment
	suggestions []*suggestion.Set
	states      []StateChange
	errors      []*apperr.Error
}

func (o *recordingObserver) OnTranscriptUpdate(u TranscriptUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, u)
}

func (o *recordingObserver) OnSegmentCreated(seg segment.Segment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = append(o.segments, seg)
}

func (o *recordingObserver) OnSuggestions(set *suggestion.Set) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suggestions = append(o.suggestions, set)
}

func (o *recordingObserver) OnRecordingStateChanged(change StateChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, change)
}

func (o *recordingObserver) OnError(sessionID string, err *apperr.Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

func (o *recordingObserver) count(f func(o *recordingObserver) int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return f(o)
}

type harness struct {
	controller  *Controller
	capture     *capture.PushProvider
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	store       *fakeStore
	observer    *recordingObserver
}

func testOptions() Options {
	return Options{
		Constraints: capture.Constraints{
			SampleRate: 16000,
			Encoding:   capture.EncodingLinear16,
			WindowSize: 256,
		},
		Monitor: audio.MonitorConfig{
			Interval:   10 * time.Millisecond,
			WindowSize: 256,
			Threshold:  10,
		},
		SilenceDuration: 50 * time.Millisecond,
		RetryDelay:      20 * time.Millisecond,
		Requester:       suggestion.DefaultRequesterConfig(),
	}
}

func newHarness(t *testing.T, options Options) *harness {
	t.Helper()

	h := &harness{
		capture:     capture.NewPushProvider(),
		transcriber: newFakeTranscriber(),
		generator:   &fakeGenerator{},
		store:       &fakeStore{},
		observer:    &recordingObserver{},
	}

	deps := Dependencies{
		Capture:       h.capture,
		Transcription: &fakeSTTProvider{transcriber: h.transcriber},
		Generator:     h.generator,
		Settings:      fakeSettings{},
		Store:         h.store,
	}
	h.controller = NewController(options, deps, h.observer, zerolog.Nop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.controller.Close(ctx)
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestController_StopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, testOptions())

	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("Stop while idle returned %v", err)
	}
	if h.controller.State() != StateIdle {
		t.Error("Expected idle state")
	}
	if n := h.observer.count(func(o *recordingObserver) int { return len(o.states) + len(o.errors) }); n != 0 {
		t.Errorf("Expected no callbacks, got %d", n)
	}
}

func TestController_StartStopLifecycle(t *testing.T) {
	h := newHarness(t, testOptions())
	ctx := context.Background()

	id, err := h.controller.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.controller.State() != StateRecording || !h.controller.IsLive(id) {
		t.Fatal("Expected recording state")
	}

	again, err := h.controller.Start(ctx)
	if err != nil || again != id {
		t.Errorf("Second Start should return the live session, got %q, %v", again, err)
	}
	if h.transcriber.startCount() != 1 {
		t.Errorf("Expected one transcriber start, got %d", h.transcriber.startCount())
	}

	if err := h.capture.Push(make([]byte, 320)); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if err := h.controller.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.controller.State() != StateIdle || h.controller.IsLive(id) {
		t.Error("Expected idle after Stop")
	}

	if err := h.capture.Push(make([]byte, 320)); !errors.Is(err, audio.ErrStreamClosed) {
		t.Errorf("Expected released stream, got %v", err)
	}

	h.observer.mu.Lock()
	states := h.observer.states
	h.observer.mu.Unlock()
	if len(states) != 2 || states[0].State != StateRecording || states[1].State != StateIdle {
		t.Errorf("Unexpected state changes %+v", states)
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.begun) != 1 || len(h.store.ended) != 1 || h.store.ended[0] != id {
		t.Errorf("Expected one conversation record, got begun=%v ended=%v", h.store.begun, h.store.ended)
	}
}

func TestController_SilenceClosesSegmentAndRequestsSuggestions(t *testing.T) {
	h := newHarness(t, testOptions())

	if _, err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.transcriber.results <- &stt.Result{Text: "Hello", IsFinal: false}
	h.transcriber.results <- &stt.Result{Text: "Hello there", IsFinal: true}

	waitFor(t, "segment", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.segments) }) > 0
	})
	waitFor(t, "suggestions", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.suggestions) }) > 0
	})

	h.observer.mu.Lock()
	seg := h.observer.segments[0]
	set := h.observer.suggestions[0]
	transcripts := len(h.observer.transcripts)
	h.observer.mu.Unlock()

	if seg.Text != "Hello there" {
		t.Errorf("Expected segment text 'Hello there', got %q", seg.Text)
	}
	if len(set.Suggestions) != 2 {
		t.Errorf("Expected 2 suggestions, got %d", len(set.Suggestions))
	}
	if transcripts != 2 {
		t.Errorf("Expected 2 transcript updates, got %d", transcripts)
	}
	if prompts := h.generator.calls(); !strings.Contains(prompts[0], "Hello there") {
		t.Errorf("Prompt missing conversation: %q", prompts[0])
	}
}

func TestController_StopFlushesAndRequestsOnce(t *testing.T) {
	options := testOptions()
	options.MinRecording = time.Hour
	h := newHarness(t, options)
	ctx := context.Background()

	if _, err := h.controller.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.transcriber.results <- &stt.Result{Text: "final words", IsFinal: true}
	waitFor(t, "transcript", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.transcripts) }) > 0
	})

	if err := h.controller.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.controller.requester.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	segments := h.controller.Segments()
	if len(segments) != 1 || segments[0].Text != "final words" {
		t.Errorf("Expected flushed segment, got %+v", segments)
	}

	prompts := h.generator.calls()
	if len(prompts) != 1 {
		t.Fatalf("Expected exactly one final request, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "final words") {
		t.Errorf("Final prompt missing flushed text: %q", prompts[0])
	}
}

func TestController_CaptureFailure(t *testing.T) {
	h := newHarness(t, testOptions())
	h.capture.Fail(capture.ErrorFromDOMException("NotAllowedError"))

	_, err := h.controller.Start(context.Background())
	if !apperr.IsCode(err, apperr.PermissionDenied) {
		t.Fatalf("Expected PermissionDenied, got %v", err)
	}
	if h.controller.State() != StateIdle {
		t.Error("Expected idle after failed start")
	}
	if h.transcriber.startCount() != 0 {
		t.Error("Transcription must not start without a stream")
	}

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.errors) != 1 || h.observer.errors[0].Code != apperr.PermissionDenied {
		t.Errorf("Expected PermissionDenied published, got %+v", h.observer.errors)
	}
}

func TestController_TranscriptionUnsupportedReleasesStream(t *testing.T) {
	provider := capture.NewPushProvider()
	observer := &recordingObserver{}
	controller := NewController(testOptions(), Dependencies{
		Capture:       provider,
		Transcription: stt.Unsupported{},
		Generator:     &fakeGenerator{},
		Settings:      fakeSettings{},
	}, observer, zerolog.Nop())

	_, err := controller.Start(context.Background())
	if !apperr.IsCode(err, apperr.CapabilityUnsupported) {
		t.Fatalf("Expected CapabilityUnsupported, got %v", err)
	}
	if err := provider.Push(make([]byte, 320)); !errors.Is(err, audio.ErrStreamClosed) {
		t.Errorf("Expected stream released on failure, got %v", err)
	}
	if controller.State() != StateIdle {
		t.Error("Expected idle after failed start")
	}
}

func TestController_TranscriptionStartFailure(t *testing.T) {
	h := newHarness(t, testOptions())
	h.transcriber.startErr = []error{errors.New("handshake refused")}

	_, err := h.controller.Start(context.Background())
	if !apperr.IsCode(err, apperr.TranscriptionFailed) {
		t.Fatalf("Expected TranscriptionFailed, got %v", err)
	}
	if err := h.capture.Push(make([]byte, 320)); !errors.Is(err, audio.ErrStreamClosed) {
		t.Errorf("Expected stream released on failure, got %v", err)
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.begun) != 0 {
		t.Error("No conversation should be recorded for a failed start")
	}
}

func TestController_TranscriptionErrorRetriesOnce(t *testing.T) {
	h := newHarness(t, testOptions())

	if _, err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.transcriber.errors <- &stt.RuntimeError{Kind: stt.KindNetwork, Err: errors.New("connection reset")}

	waitFor(t, "restart", func() bool { return h.transcriber.startCount() == 2 })

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.errors) != 1 {
		t.Fatalf("Expected one published error, got %d", len(h.observer.errors))
	}
	published := h.observer.errors[0]
	if published.Code != apperr.TranscriptionFailed || published.Metadata["kind"] != stt.KindNetwork {
		t.Errorf("Unexpected published error %+v", published)
	}
	if h.controller.State() != StateRecording {
		t.Error("Recording should continue through a transcription error")
	}
}

func TestController_FailedRetryContinuesWithoutTranscription(t *testing.T) {
	options := testOptions()
	options.MinRecording = time.Hour
	h := newHarness(t, options)
	ctx := context.Background()

	h.transcriber.startErr = []error{nil, errors.New("reconnect refused")}

	if _, err := h.controller.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.transcriber.errors <- &stt.RuntimeError{Kind: stt.KindNetwork, Err: errors.New("connection reset")}

	waitFor(t, "failed restart", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.errors) }) == 2
	})
	if h.transcriber.startCount() != 2 {
		t.Errorf("Expected exactly one retry, got %d starts", h.transcriber.startCount())
	}
	if h.controller.State() != StateRecording {
		t.Fatal("Recording should continue after a failed retry")
	}

	h.observer.mu.Lock()
	for i, err := range h.observer.errors {
		if err.Code != apperr.TranscriptionFailed {
			t.Errorf("Error %d: expected TranscriptionFailed, got %s", i, err.Code)
		}
	}
	h.observer.mu.Unlock()

	h.transcriber.results <- &stt.Result{Text: "late words", IsFinal: true}
	waitFor(t, "transcript", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.transcripts) }) > 0
	})

	if err := h.controller.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	segments := h.controller.Segments()
	if len(segments) != 1 || segments[0].Text != "late words" {
		t.Errorf("Expected Stop to flush the pending text, got %+v", segments)
	}
	if h.controller.State() != StateIdle {
		t.Error("Expected idle after Stop")
	}
}

func TestController_StreamEndStopsSession(t *testing.T) {
	h := newHarness(t, testOptions())

	if _, err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.capture.Close()

	waitFor(t, "auto stop", func() bool {
		return h.observer.count(func(o *recordingObserver) int { return len(o.states) }) == 2
	})
	if h.controller.State() != StateIdle {
		t.Error("Expected idle after stream end")
	}

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	last := h.observer.states[len(h.observer.states)-1]
	if last.State != StateIdle {
		t.Errorf("Expected idle published, got %+v", last)
	}
}

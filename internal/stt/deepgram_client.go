package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/config"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/resilience"
)

const (
	resultQueueSize = 100
	errorQueueSize  = 4
)

// ErrNotActive is returned by SendAudio outside a started session
var ErrNotActive = errors.New("deepgram client is not active")

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler // Embed default handler for methods we don't override
	handler                                func(*msginterfaces.MessageResponse)
	errorHandler                           func(*msginterfaces.ErrorResponse)
}

// Message overrides the default handler to send transcriptions to our channel
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error overrides the default handler to surface runtime errors
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.errorHandler(errorResponse)
	return nil
}

// DeepgramProvider creates Deepgram streaming transcribers sharing one
// circuit breaker
type DeepgramProvider struct {
	config         *config.Config
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramProvider creates a Deepgram provider
func NewDeepgramProvider(cfg *config.Config, logger zerolog.Logger) *DeepgramProvider {
	circuitBreaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	circuitBreaker.OnStateChange(func(name string, state resilience.CircuitState, success bool) {
		observability.UpdateCircuitBreakerState(name, int(state))
		if !success {
			observability.IncrementCircuitBreakerFailures(name)
		}
	})

	return &DeepgramProvider{
		config:         cfg,
		logger:         observability.WithComponent(logger, "deepgram"),
		circuitBreaker: circuitBreaker,
	}
}

// Name implements Provider
func (p *DeepgramProvider) Name() string { return "deepgram" }

// Supported implements Provider
func (p *DeepgramProvider) Supported() bool { return true }

// NewTranscriber implements Provider
func (p *DeepgramProvider) NewTranscriber(opts Options) (Transcriber, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = p.config.AudioSampleRate
	}
	if opts.Encoding == "" {
		opts.Encoding = "linear16"
	}
	if opts.Language == "" {
		opts.Language = p.config.DeepgramLanguage
	}

	return &DeepgramClient{
		apiKey:         p.config.DeepgramAPIKey,
		model:          p.config.DeepgramModel,
		options:        opts,
		logger:         p.logger,
		circuitBreaker: p.circuitBreaker,
		results:        make(chan *Result, resultQueueSize),
		errors:         make(chan error, errorQueueSize),
	}, nil
}

// DeepgramClient implements Transcriber using Deepgram's streaming API
type DeepgramClient struct {
	apiKey         string
	model          string
	options        Options
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker

	client   *listenClient.WSCallback
	results  chan *Result
	errors   chan error
	mu       sync.RWMutex
	isActive bool
	cancel   context.CancelFunc
	// generation invalidates callbacks from a connection that has been replaced
	generation int
}

// Start begins a new Deepgram streaming transcription session
func (d *DeepgramClient) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram client is already active")
	}

	d.generation++
	generation := d.generation

	// Create Deepgram transcription options (v3 API)
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       d.options.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       d.options.Encoding,
		Channels:       1,
		SampleRate:     d.options.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler: func(msg *msginterfaces.MessageResponse) {
			d.handleDeepgramMessage(generation, msg)
		},
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) {
			kind := KindProvider
			if errorResponse != nil && errorResponse.ErrCode != "" {
				kind = errorResponse.ErrCode
			}
			d.fail(generation, &RuntimeError{Kind: kind, Err: fmt.Errorf("%+v", errorResponse)})
		},
	}

	clientCtx, cancel := context.WithCancel(ctx)

	err := d.circuitBreaker.Call(func() error {
		client, err := listenClient.NewWSUsingCallback(
			clientCtx,
			d.apiKey,
			nil, // ClientOptions - nil uses defaults
			tOptions,
			callback,
		)
		if err != nil {
			return fmt.Errorf("failed to create Deepgram client: %w", err)
		}

		if !client.Connect() {
			return fmt.Errorf("failed to connect to Deepgram")
		}

		d.client = client
		return nil
	})
	if err != nil {
		cancel()
		return apperr.Wrap(err, apperr.TranscriptionFailed, "start transcription")
	}

	d.cancel = cancel
	d.isActive = true

	d.logger.Info().
		Str("model", d.model).
		Str("language", d.options.Language).
		Int("sample_rate", d.options.SampleRate).
		Msg("Deepgram streaming client started")
	return nil
}

// handleDeepgramMessage processes messages from Deepgram
func (d *DeepgramClient) handleDeepgramMessage(generation int, msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	d.mu.RLock()
	current := generation == d.generation && d.isActive
	d.mu.RUnlock()
	if !current {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}

		// Get the best alternative (first one)
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		// Extract timing information
		startTime := msg.Start
		duration := msg.Duration
		if len(alt.Words) > 0 && duration == 0 {
			// Fallback: calculate duration from words if not provided
			startTime = alt.Words[0].Start
			lastWord := alt.Words[len(alt.Words)-1]
			duration = lastWord.End - startTime
		}

		result := &Result{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: alt.Confidence,
			StartTime:  startTime,
			Duration:   duration,
		}

		// Send to results channel (non-blocking)
		select {
		case d.results <- result:
			d.logger.Debug().Bool("final", result.IsFinal).Str("text", result.Text).Msg("Deepgram transcription")
		default:
			d.logger.Warn().Msg("Result channel full, dropping transcription")
		}

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Deepgram message")
	}
}

// fail marks the session inactive and reports a runtime error once per connection
func (d *DeepgramClient) fail(generation int, err *RuntimeError) {
	d.mu.Lock()
	if generation != d.generation || !d.isActive {
		d.mu.Unlock()
		return
	}
	d.isActive = false
	d.mu.Unlock()

	d.circuitBreaker.RecordResult(false)
	d.logger.Error().Err(err.Err).Str("kind", err.Kind).Msg("Deepgram runtime error")

	select {
	case d.errors <- err:
	default:
		d.logger.Warn().Msg("Error channel full, dropping runtime error")
	}
}

// SendAudio sends an audio chunk to Deepgram
func (d *DeepgramClient) SendAudio(audioData []byte) error {
	d.mu.RLock()
	active := d.isActive
	client := d.client
	generation := d.generation
	d.mu.RUnlock()

	if !active || client == nil {
		return ErrNotActive
	}

	// WSCallback uses Write method for sending audio (returns bytes written and error)
	if _, err := client.Write(audioData); err != nil {
		d.fail(generation, &RuntimeError{Kind: KindNetwork, Err: err})
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}

	return nil
}

// Results implements Transcriber
func (d *DeepgramClient) Results() <-chan *Result {
	return d.results
}

// Errors implements Transcriber
func (d *DeepgramClient) Errors() <-chan error {
	return d.errors
}

// Stop stops the Deepgram streaming session
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		defer d.cancel()
		d.cancel = nil
	}

	if !d.isActive {
		return nil // Already stopped
	}

	// WSCallback Finish() doesn't return an error
	d.client.Finish()

	d.isActive = false
	d.logger.Info().Msg("Deepgram streaming client stopped")
	return nil
}

// IsActive returns whether the client is currently active
func (d *DeepgramClient) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}

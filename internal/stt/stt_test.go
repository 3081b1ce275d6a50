package stt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "ja",
		AudioSampleRate:            16000,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	provider := NewProvider(testConfig(), zerolog.Nop())

	if provider.Supported() {
		t.Error("Expected unsupported provider without API key")
	}

	_, err := provider.NewTranscriber(Options{})
	if !apperr.IsCode(err, apperr.CapabilityUnsupported) {
		t.Errorf("Expected CapabilityUnsupported, got %v", err)
	}
}

func TestNewProvider_Deepgram(t *testing.T) {
	cfg := testConfig()
	cfg.DeepgramAPIKey = "test-key"

	provider := NewProvider(cfg, zerolog.Nop())
	if provider.Name() != "deepgram" || !provider.Supported() {
		t.Fatalf("Expected deepgram provider, got %s", provider.Name())
	}

	transcriber, err := provider.NewTranscriber(Options{})
	if err != nil {
		t.Fatalf("NewTranscriber failed: %v", err)
	}

	client := transcriber.(*DeepgramClient)
	if client.options.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", client.options.SampleRate)
	}
	if client.options.Encoding != "linear16" {
		t.Errorf("Expected linear16 encoding, got %s", client.options.Encoding)
	}
	if client.options.Language != "ja" {
		t.Errorf("Expected language ja, got %s", client.options.Language)
	}
}

func TestDeepgramClient_NotStarted(t *testing.T) {
	cfg := testConfig()
	cfg.DeepgramAPIKey = "test-key"
	transcriber, _ := NewDeepgramProvider(cfg, zerolog.Nop()).NewTranscriber(Options{SampleRate: 8000})

	if err := transcriber.SendAudio([]byte{0, 0}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive, got %v", err)
	}
	if err := transcriber.Stop(); err != nil {
		t.Errorf("Stop on idle client should succeed, got %v", err)
	}
	if err := transcriber.Stop(); err != nil {
		t.Errorf("Second Stop should succeed, got %v", err)
	}
}

func TestDeepgramClient_FailReportsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.DeepgramAPIKey = "test-key"
	transcriber, _ := NewDeepgramProvider(cfg, zerolog.Nop()).NewTranscriber(Options{})
	client := transcriber.(*DeepgramClient)

	client.isActive = true
	client.generation = 1

	client.fail(1, &RuntimeError{Kind: KindNetwork, Err: errors.New("connection reset")})
	client.fail(1, &RuntimeError{Kind: KindNetwork, Err: errors.New("connection reset")})

	if client.IsActive() {
		t.Error("Expected client to be inactive after failure")
	}

	select {
	case err := <-client.Errors():
		if KindOf(err) != KindNetwork {
			t.Errorf("Expected network kind, got %s", KindOf(err))
		}
	default:
		t.Fatal("Expected a runtime error")
	}

	select {
	case err := <-client.Errors():
		t.Errorf("Expected a single runtime error, got second: %v", err)
	default:
	}
}

func TestDeepgramClient_StaleGenerationIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.DeepgramAPIKey = "test-key"
	transcriber, _ := NewDeepgramProvider(cfg, zerolog.Nop()).NewTranscriber(Options{})
	client := transcriber.(*DeepgramClient)

	client.isActive = true
	client.generation = 2

	client.fail(1, &RuntimeError{Kind: KindProvider, Err: errors.New("old connection")})

	if !client.IsActive() {
		t.Error("Stale failure should not deactivate the current connection")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", &RuntimeError{Kind: KindAborted, Err: errors.New("x")})
	if KindOf(wrapped) != KindAborted {
		t.Errorf("Expected aborted, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindProvider {
		t.Error("Expected provider kind for foreign errors")
	}
}

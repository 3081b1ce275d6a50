package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/vrcneta/topic-gateway/internal/apperr"
)

// Result represents one transcription result
type Result struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// Runtime error kinds reported by a running transcriber
const (
	KindNetwork  = "network"
	KindProvider = "provider"
	KindAborted  = "aborted"
)

// RuntimeError is a failure reported after Start succeeded
type RuntimeError struct {
	Kind string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("transcription %s error: %v", e.Kind, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// KindOf returns the runtime error kind, or KindProvider for foreign errors
func KindOf(err error) string {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindProvider
}

// Options configure one transcription session
type Options struct {
	SampleRate int
	Encoding   string // linear16
	Language   string
}

// Transcriber is a live speech-to-text session.
// Results and Errors stay open for the transcriber's lifetime and are never
// closed; callers stop reading after Stop.
type Transcriber interface {
	// Start opens the session. It may be called again after a runtime error.
	Start(ctx context.Context) error

	// SendAudio sends a linear16 chunk to the service
	SendAudio(audioData []byte) error

	Results() <-chan *Result
	Errors() <-chan error

	// Stop ends the session. Safe to call more than once.
	Stop() error
}

// Provider creates transcribers. It is resolved once at startup.
type Provider interface {
	Name() string
	Supported() bool
	NewTranscriber(opts Options) (Transcriber, error)
}

// Unsupported is the provider used when no transcription service is configured
type Unsupported struct {
	Reason string
}

// Name implements Provider
func (Unsupported) Name() string { return "unsupported" }

// Supported implements Provider
func (Unsupported) Supported() bool { return false }

// NewTranscriber always fails with CapabilityUnsupported
func (u Unsupported) NewTranscriber(opts Options) (Transcriber, error) {
	reason := u.Reason
	if reason == "" {
		reason = "speech recognition is not supported"
	}
	return nil, apperr.New(apperr.CapabilityUnsupported, reason)
}

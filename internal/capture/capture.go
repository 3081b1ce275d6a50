// Package capture provides the audio capture capability: a live stream of
// PCM frames plus the time-domain window the energy monitor samples.
package capture

import (
	"context"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
)

// Encoding is the wire encoding of incoming audio frames
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16" // 16-bit little-endian PCM
	EncodingMulaw    Encoding = "mulaw"    // G.711 μ-law
)

// Constraints describe the stream a caller wants
type Constraints struct {
	SampleRate int
	Encoding   Encoding
	WindowSize int // time-domain samples retained for the monitor
}

// Stream is a live audio stream handle
type Stream interface {
	audio.SampleSource

	// Audio delivers linear16 frames for transcription. Closed on Release.
	Audio() <-chan []byte
	SampleRate() int
	Release()
}

// Provider acquires audio streams
type Provider interface {
	AcquireStream(ctx context.Context, c Constraints) (Stream, error)
}

// Unsupported is the provider used when the host has no capture capability
type Unsupported struct {
	Reason string
}

// AcquireStream always fails with CapabilityUnsupported
func (u Unsupported) AcquireStream(ctx context.Context, c Constraints) (Stream, error) {
	reason := u.Reason
	if reason == "" {
		reason = "audio capture is not supported"
	}
	return nil, apperr.New(apperr.CapabilityUnsupported, reason)
}

// ErrorFromDOMException maps a getUserMedia DOMException name reported by a
// browser client onto the capture error taxonomy.
func ErrorFromDOMException(name string) *apperr.Error {
	switch name {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return apperr.Newf(apperr.PermissionDenied, "microphone access denied (%s)", name)
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError", "NotReadableError":
		return apperr.Newf(apperr.DeviceNotFound, "no usable microphone (%s)", name)
	default:
		return apperr.Newf(apperr.CapabilityUnsupported, "audio capture unavailable (%s)", name)
	}
}
